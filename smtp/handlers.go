package smtp

import (
	"context"
	"sync"

	"github.com/mailforge/mailcore"
)

// EHLOHandler implements HELO and EHLO. EHLO additionally advertises the
// session's extension set, which other handlers (STARTTLSHandler,
// AUTHHandler) extend via ExtensibleHandler when the chain is wired.
type EHLOHandler struct {
	mailcore.HookableCommandHandler[HeloHook]

	Hostname       string
	baseExtensions []string

	mu    sync.Mutex
	extra []string
}

// NewEHLOHandler creates the HELO/EHLO handler advertising the given
// static extensions (e.g. "SIZE 26214400", "8BITMIME", "PIPELINING",
// "ENHANCEDSTATUSCODES", "SMTPUTF8").
func NewEHLOHandler(hostname string, baseExtensions ...string) *EHLOHandler {
	return &EHLOHandler{Hostname: hostname, baseExtensions: baseExtensions}
}

// AddExtension registers an additional capability line, called by other
// handlers' WireExtensions during chain setup.
func (h *EHLOHandler) AddExtension(ext string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.extra = append(h.extra, ext)
}

func (h *EHLOHandler) Verbs() []string { return []string{"HELO", "EHLO"} }

func (h *EHLOHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	hostname, err := ParseHeloHostname(args)
	if err != nil {
		return RespSyntaxErrorParams, nil
	}
	extended := verb == "EHLO"

	resp := h.Execute(func() mailcore.Response {
		sess.SetConnState(keyHostname, hostname)
		sess.SetConnState(keyExtendedHello, extended)
		sess.SetTxState(keyEnvelope, nil)
		Advance(sess, StateIdentified)

		if !extended {
			return NewResponse(Reply250OK, h.Hostname)
		}
		lines := append([]string{h.Hostname}, h.baseExtensions...)
		h.mu.Lock()
		lines = append(lines, h.extra...)
		h.mu.Unlock()
		return NewMultilineResponse(Reply250OK, lines...)
	}, func(hook HeloHook) mailcore.HookResult {
		return hook.Helo(ctx, sess, hostname, extended)
	})
	return resp, nil
}

var _ mailcore.CommandHandler = (*EHLOHandler)(nil)

// MAILHandler implements MAIL FROM.
type MAILHandler struct {
	mailcore.HookableCommandHandler[MailHook]
	Limits mailcore.LimitChecker
}

func (h *MAILHandler) Verbs() []string { return []string{"MAIL"} }

func (h *MAILHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	path, params, err := ParseMailPath(args, "FROM:")
	if err != nil {
		return RespSyntaxErrorParams, nil
	}

	resp := h.Execute(func() mailcore.Response {
		sess.SetTxState(keyEnvelope, &Envelope{From: path, FromParams: params})
		Advance(sess, StateMailFrom)
		return RespOK
	}, func(hook MailHook) mailcore.HookResult {
		return hook.Mail(ctx, sess, path, params)
	})
	return resp, nil
}

var _ mailcore.CommandHandler = (*MAILHandler)(nil)

// RCPTHandler implements RCPT TO.
type RCPTHandler struct {
	mailcore.HookableCommandHandler[RcptHook]
	Limits mailcore.LimitChecker
}

func (h *RCPTHandler) Verbs() []string { return []string{"RCPT"} }

func (h *RCPTHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	path, params, err := ParseMailPath(args, "TO:")
	if err != nil {
		return RespSyntaxErrorParams, nil
	}

	env := currentEnvelope(sess)
	if env == nil {
		return RespBadSequence, nil
	}
	if cerr := h.Limits.CheckRecipientCount(len(env.Recipients) + 1); cerr != nil {
		return NewResponse(Reply452InsufficientStorage, "Too many recipients"), nil
	}

	resp := h.Execute(func() mailcore.Response {
		env.AddRecipient(path, params)
		Advance(sess, StateRcptTo)
		return RespOK
	}, func(hook RcptHook) mailcore.HookResult {
		return hook.Rcpt(ctx, sess, path, params)
	})
	return resp, nil
}

var _ mailcore.CommandHandler = (*RCPTHandler)(nil)

// RSETHandler implements RSET: abort the transaction and return to the
// Identified state, preserving the HELO/EHLO hostname and AUTH identity.
type RSETHandler struct{}

func (RSETHandler) Verbs() []string { return []string{"RSET"} }

func (RSETHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	sess.ResetState()
	Advance(sess, StateIdentified)
	return RespOK, nil
}

var _ mailcore.CommandHandler = RSETHandler{}

// NOOPHandler implements NOOP.
type NOOPHandler struct{}

func (NOOPHandler) Verbs() []string { return []string{"NOOP"} }

func (NOOPHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	return RespOK, nil
}

var _ mailcore.CommandHandler = NOOPHandler{}

// QUITHandler implements QUIT.
type QUITHandler struct {
	mailcore.HookableCommandHandler[QuitHook]
}

func (h *QUITHandler) Verbs() []string { return []string{"QUIT"} }

func (h *QUITHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	Advance(sess, StateTerminating)
	resp := h.Execute(func() mailcore.Response {
		return RespBye
	}, func(hook QuitHook) mailcore.HookResult {
		return hook.Quit(ctx, sess, mailcore.DisconnectQuit)
	})
	resp.EndSession = true
	return resp, nil
}

var _ mailcore.CommandHandler = (*QUITHandler)(nil)

// VRFYHandler implements VRFY. Per RFC 5321 §3.5.1's security guidance, a
// cautious deployment returns 252 unconditionally rather than confirming
// or denying specific mailboxes.
type VRFYHandler struct{}

func (VRFYHandler) Verbs() []string { return []string{"VRFY"} }

func (VRFYHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	if args == "" {
		return RespSyntaxErrorParams, nil
	}
	return NewResponse(Reply252CannotVRFY, "Cannot VRFY user; try RCPT to attempt delivery"), nil
}

var _ mailcore.CommandHandler = VRFYHandler{}

// HELPHandler implements HELP.
type HELPHandler struct{}

func (HELPHandler) Verbs() []string { return []string{"HELP"} }

func (HELPHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	return NewResponse(Reply214HelpMessage, "See RFC 5321 for command syntax"), nil
}

var _ mailcore.CommandHandler = HELPHandler{}

// CurrentEnvelope returns the in-progress Envelope for sess, or nil if no
// mail transaction is open. Exported for the lmtp package, which reuses
// this package's MAIL/RCPT handlers and envelope state verbatim.
func CurrentEnvelope(sess *mailcore.Session) *Envelope {
	return currentEnvelope(sess)
}

// currentEnvelope returns the in-progress Envelope, or nil if none.
func currentEnvelope(sess *mailcore.Session) *Envelope {
	v, ok := sess.TxState(keyEnvelope)
	if !ok || v == nil {
		return nil
	}
	env, _ := v.(*Envelope)
	return env
}
