package lmtp

import (
	"bytes"
	"context"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/smtp"
)

// RecipientHook is LMTP's per-recipient specialization of smtp.MessageHook
// (RFC 2033 §4.2): instead of one verdict for the whole message, DATA
// completion invokes this hook once per accepted recipient, so a backend
// can accept delivery to some mailboxes and bounce others within the same
// transaction.
type RecipientHook interface {
	mailcore.Hook
	DeliverTo(ctx context.Context, sess *mailcore.Session, env *smtp.Envelope, rcpt smtp.MailPath, body []byte) mailcore.HookResult
}

// DATAHandler implements DATA for LMTP: the body is collected exactly as
// in smtp.DATAHandler (dot-stuffing codec, size limits), but completion
// runs the RecipientHook chain once per recipient and merges the results
// into a mailcore.MultiResponse instead of one shared Response.
type DATAHandler struct {
	mailcore.HookableCommandHandler[RecipientHook]
	Limits mailcore.LimitChecker
}

func (h *DATAHandler) Verbs() []string { return []string{"DATA"} }

func (h *DATAHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	env := smtp.CurrentEnvelope(sess)
	if env == nil || len(env.Recipients) == 0 {
		return smtp.RespBadSequence, nil
	}

	smtp.Advance(sess, smtp.StateData)
	sess.Lines.Push(&dataLineHandler{handler: h, env: env, limits: h.Limits})
	return smtp.RespStartMailInput, nil
}

var _ mailcore.CommandHandler = (*DATAHandler)(nil)

type dataLineHandler struct {
	handler  *DATAHandler
	env      *smtp.Envelope
	limits   mailcore.LimitChecker
	codec    smtp.DataLineReader
	buf      bytes.Buffer
	size     int64
	oversize bool
}

func (d *dataLineHandler) Name() string { return "DATA" }

func (d *dataLineHandler) HandleLine(ctx context.Context, sess *mailcore.Session, line []byte) (bool, mailcore.Response, error) {
	if d.codec.IsTerminator(line) {
		return true, d.finish(ctx, sess), nil
	}

	unstuffed := d.codec.UnstuffLine(line)
	if err := d.limits.CheckLineLength(len(unstuffed)); err != nil {
		d.oversize = true
		return false, mailcore.Response{}, nil
	}

	d.size += int64(len(unstuffed))
	if err := d.limits.CheckMessageSize(d.size); err != nil {
		d.oversize = true
		return false, mailcore.Response{}, nil
	}

	d.buf.Write(unstuffed)
	return false, mailcore.Response{}, nil
}

// finish runs the RecipientHook chain once per recipient and merges the
// per-recipient sub-responses into a single merged response, one reply
// block per recipient in RCPT order (RFC 2033 §4.2).
func (d *dataLineHandler) finish(ctx context.Context, sess *mailcore.Session) mailcore.Response {
	smtp.Advance(sess, smtp.StateDataDone)
	defer func() {
		sess.ResetState()
		smtp.Advance(sess, smtp.StateIdentified)
	}()

	body := d.buf.Bytes()
	d.handler.Metrics.ObserveMessageSize(len(body))
	subs := make([]mailcore.Response, len(d.env.Recipients))
	for i, rcpt := range d.env.Recipients {
		subs[i] = d.deliverOne(ctx, sess, rcpt)
	}
	return mailcore.Merge(subs)
}

func (d *dataLineHandler) deliverOne(ctx context.Context, sess *mailcore.Session, rcpt smtp.MailPath) mailcore.Response {
	if d.oversize {
		return smtp.NewResponse(smtp.Reply552ExceededStorage, "5.3.4 "+rcpt.Address+" message size exceeds fixed maximum message size")
	}

	result := d.handler.RunHooks(func(hook RecipientHook) mailcore.HookResult {
		return hook.DeliverTo(ctx, sess, d.env, rcpt, d.buf.Bytes())
	})

	if result.Terminates() {
		if result.Response != nil {
			return *result.Response
		}
		return smtp.NewResponse(smtp.Reply451LocalError, "4.3.0 "+rcpt.Address+" temporary delivery failure")
	}
	if result.Action == mailcore.HookOK && result.Response != nil {
		return *result.Response
	}
	return smtp.NewResponse(smtp.Reply250OK, "2.1.5 "+rcpt.Address+" delivered")
}

var _ mailcore.LineHandler = (*dataLineHandler)(nil)
