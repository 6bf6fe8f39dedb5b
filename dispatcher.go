package mailcore

import "context"

// CommandParser splits one raw command line into a verb and its argument
// string. Each protocol supplies its own (smtp.Parser, pop3.Parser) since
// the grammar differs, but the dispatcher only needs this much.
type CommandParser interface {
	Parse(line []byte) (verb string, args string, err error)
}

// CannedResponses are the protocol-specific replies the dispatcher sends
// for conditions it detects generically (malformed input, limit
// violations, unknown verbs) so mailcore never hard-codes SMTP or POP3
// reply text.
type CannedResponses struct {
	SyntaxError    Response
	CommandTooLong Response
	LineTooLong    Response
	TooManyErrors  Response // EndSession should be true
	UnknownCommand Response
	BadSequence    Response
	InternalError  Response
}

// Dispatcher is the per-connection command dispatch loop (C4): it routes
// each incoming line either to the active LineHandler or, when none is
// active, through CommandParser and into the matching CommandHandler from
// the HandlerChain, while enforcing command-length and consecutive-error
// limits.
type Dispatcher struct {
	Chain     *HandlerChain
	Parser    CommandParser
	Limits    LimitChecker
	Responses CannedResponses
	Logger    Logger
	Metrics   *Metrics

	// StateCheck, if set, vets a parsed verb against the session's current
	// protocol state before the handler runs (e.g. smtp.IsStateValidForCommand),
	// so "RCPT before MAIL" is rejected generically instead of each handler
	// re-deriving its own precondition.
	StateCheck func(verb string, state State) bool
}

// NewDispatcher builds a Dispatcher over a handler chain. metrics may be
// nil; every observer call on a nil *Metrics is a no-op.
func NewDispatcher(chain *HandlerChain, parser CommandParser, limits LimitChecker, responses CannedResponses, logger Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = NullLogger{}
	}
	return &Dispatcher{Chain: chain, Parser: parser, Limits: limits, Responses: responses, Logger: logger, Metrics: metrics}
}

// ProcessLine handles exactly one line of input and returns the response to
// write back (which may be empty/zero if nothing should be sent) along
// with whether the session should end after it's flushed. A panic escaping
// the matched handler is recovered here, not left to the transport's
// connection-level recover: a handler fault is a protocol-level failure,
// not a transport-class one, so it is reported as the protocol's generic
// internal-error response and the session continues rather than the
// connection being dropped.
func (d *Dispatcher) ProcessLine(ctx context.Context, sess *Session, line []byte) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error(ctx, "command handler panic", Attr("panic", r))
			resp = d.Responses.InternalError
		}
	}()

	if r, _, handled := sess.Lines.Dispatch(ctx, sess, line); handled {
		return r
	}

	if err := d.Limits.CheckCommandLength(len(line)); err != nil {
		return d.countError(sess, "", "command_too_long", d.Responses.CommandTooLong)
	}

	verb, args, err := d.Parser.Parse(line)
	if err != nil {
		return d.countError(sess, "", "syntax_error", d.Responses.SyntaxError)
	}

	handler, ok := d.Chain.Lookup(verb)
	if !ok {
		return d.countError(sess, verb, "unknown_command", d.Responses.UnknownCommand)
	}

	if d.StateCheck != nil && !d.StateCheck(verb, sess.State()) {
		return d.countError(sess, verb, "bad_sequence", d.Responses.BadSequence)
	}

	r, err := handler.HandleCommand(ctx, sess, verb, args)
	if err != nil {
		return d.handleError(sess, verb, err)
	}

	sess.ResetErrorCount()
	d.Metrics.ObserveCommand(verb, "ok")
	return r
}

// countError increments the session's consecutive-error counter and
// escalates to the disconnect response once the configured limit is hit.
func (d *Dispatcher) countError(sess *Session, verb, outcome string, base Response) Response {
	d.Metrics.ObserveCommand(verb, outcome)
	count := sess.IncrementErrorCount()
	if err := d.Limits.CheckErrorCount(count); err != nil {
		return d.Responses.TooManyErrors
	}
	return base
}

// handleError maps a returned error to a response per mailcore's error
// taxonomy: policy rejections and protocol errors render their own
// response when one is attached, backend and transport faults fall back to
// the protocol's generic internal-error reply.
func (d *Dispatcher) handleError(sess *Session, verb string, err error) Response {
	switch e := err.(type) {
	case *PolicyError:
		d.Metrics.ObserveCommand(verb, "policy_denied")
		if e.Result.Response != nil {
			return *e.Result.Response
		}
		return d.Responses.InternalError
	case *ProtocolError:
		return d.countError(sess, verb, "protocol_error", d.Responses.SyntaxError)
	case *TransientBackendError, *FatalBackendError:
		d.Metrics.ObserveCommand(verb, "backend_error")
		return d.Responses.InternalError
	case *TransportError:
		d.Metrics.ObserveCommand(verb, "transport_error")
		r := d.Responses.InternalError
		r.EndSession = true
		return r
	default:
		d.Metrics.ObserveCommand(verb, "error")
		return d.Responses.InternalError
	}
}
