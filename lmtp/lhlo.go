package lmtp

import (
	"context"
	"sync"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/smtp"
)

// LHLOHandler implements LHLO, LMTP's sole greeting verb (RFC 2033 §4.1):
// unlike SMTP there is no plain-HELO fallback, so the response is always
// the multi-line capability listing EHLO would produce. It shares smtp's
// HeloHook capability so a hook written against SMTP's HELO/EHLO hostname
// checks works unmodified against LMTP.
type LHLOHandler struct {
	mailcore.HookableCommandHandler[smtp.HeloHook]

	Hostname       string
	baseExtensions []string

	mu    sync.Mutex
	extra []string
}

// NewLHLOHandler creates the LHLO handler advertising the given static
// extensions.
func NewLHLOHandler(hostname string, baseExtensions ...string) *LHLOHandler {
	return &LHLOHandler{Hostname: hostname, baseExtensions: baseExtensions}
}

// AddExtension registers an additional capability line, called by other
// handlers' WireExtensions during chain setup.
func (h *LHLOHandler) AddExtension(ext string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.extra = append(h.extra, ext)
}

func (h *LHLOHandler) Verbs() []string { return []string{"LHLO"} }

func (h *LHLOHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	hostname, err := smtp.ParseHeloHostname(args)
	if err != nil {
		return smtp.RespSyntaxErrorParams, nil
	}

	resp := h.Execute(func() mailcore.Response {
		sess.SetConnState(keyHostname, hostname)
		sess.SetTxState(keyEnvelope, nil)
		smtp.Advance(sess, smtp.StateIdentified)

		lines := append([]string{h.Hostname}, h.baseExtensions...)
		h.mu.Lock()
		lines = append(lines, h.extra...)
		h.mu.Unlock()
		return smtp.NewMultilineResponse(smtp.Reply250OK, lines...)
	}, func(hook smtp.HeloHook) mailcore.HookResult {
		return hook.Helo(ctx, sess, hostname, true)
	})
	return resp, nil
}

var _ mailcore.CommandHandler = (*LHLOHandler)(nil)
