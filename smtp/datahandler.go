package smtp

import (
	"bytes"
	"context"

	"github.com/mailforge/mailcore"
)

// DATAHandler implements DATA: after the 354 response, it hands line
// input over to a dataLineHandler (mailcore's LineHandler stack, C5) that
// un-stuffs dot-escaped lines and accumulates the body until the
// "<CRLF>.<CRLF>" terminator, then runs the MessageHook chain.
type DATAHandler struct {
	mailcore.HookableCommandHandler[MessageHook]
	Limits mailcore.LimitChecker
}

func (h *DATAHandler) Verbs() []string { return []string{"DATA"} }

func (h *DATAHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	env := currentEnvelope(sess)
	if env == nil || len(env.Recipients) == 0 {
		return RespBadSequence, nil
	}

	Advance(sess, StateData)
	sess.Lines.Push(&dataLineHandler{
		handler: h,
		env:     env,
		limits:  h.Limits,
	})
	return RespStartMailInput, nil
}

var _ mailcore.CommandHandler = (*DATAHandler)(nil)

type dataLineHandler struct {
	handler  *DATAHandler
	env      *Envelope
	limits   mailcore.LimitChecker
	codec    DataLineReader
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

func (d *dataLineHandler) finish(ctx context.Context, sess *mailcore.Session) mailcore.Response {
	Advance(sess, StateDataDone)
	defer func() {
		sess.ResetState()
		Advance(sess, StateIdentified)
	}()

	if d.oversize {
		return NewResponse(Reply552ExceededStorage, "Message size exceeds fixed maximum message size")
	}

	body := d.buf.Bytes()
	d.handler.Metrics.ObserveMessageSize(len(body))
	return d.handler.Execute(func() mailcore.Response {
		return NewResponse(Reply250OK, "Message accepted for delivery")
	}, func(hook MessageHook) mailcore.HookResult {
		return hook.Message(ctx, sess, d.env, body)
	})
}

var _ mailcore.LineHandler = (*dataLineHandler)(nil)
