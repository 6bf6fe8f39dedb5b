package pop3

import (
	"context"

	"github.com/mailforge/mailcore"
)

// STLSHandler implements STLS (RFC 2595): it upgrades the connection in
// place. Unlike SMTP's STARTTLS, POP3 has no EHLO-equivalent
// re-negotiation requirement beyond clearing any claimed username so a
// pre-upgrade USER can't be trusted post-upgrade.
type STLSHandler struct {
	Provider mailcore.TLSProvider
}

// NewSTLSHandler builds an STLSHandler sourcing its tls.Config from
// provider.
func NewSTLSHandler(provider mailcore.TLSProvider) *STLSHandler {
	return &STLSHandler{Provider: provider}
}

func (h *STLSHandler) Verbs() []string { return []string{"STLS"} }

// WireExtensions registers "STLS" into the CAPA handler's capability list,
// unless the configured policy has TLS disabled.
func (h *STLSHandler) WireExtensions(chain *mailcore.HandlerChain) error {
	if h.Provider == nil || h.Provider.Policy() == mailcore.TLSDisabled {
		return nil
	}
	handler, ok := chain.Lookup("CAPA")
	if !ok {
		return nil
	}
	capa, ok := handler.(*CAPAHandler)
	if !ok {
		return &mailcore.WiringError{Component: "STLSHandler", Reason: "CAPA handler is not *pop3.CAPAHandler"}
	}
	capa.AddExtension("STLS")
	return nil
}

func (h *STLSHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	if args != "" {
		return RespSyntaxError, nil
	}
	if sess.TLSState() != nil {
		return RespBadSequence, nil
	}
	if h.Provider == nil || h.Provider.Policy() == mailcore.TLSDisabled {
		return NewResponse(ERR, "command not implemented"), nil
	}

	config, err := h.Provider.GetConfig(ctx, &mailcore.TLSClientHello{})
	if err != nil {
		return NewResponse(ERR, "TLS not available"), nil
	}

	// The +OK must reach the client before the handshake begins, so it is
	// flushed directly rather than returned for ProcessLine to write after
	// the (by-then-already-upgraded) connection no longer speaks plaintext.
	if sess.WriteResponse != nil {
		if werr := sess.WriteResponse(NewResponse(OK, "Begin TLS negotiation")); werr != nil {
			return mailcore.Response{}, &mailcore.TransportError{Op: "stls", Cause: werr}
		}
	}

	state, err := sess.Conn.UpgradeTLS(config)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransportError{Op: "stls", Cause: err}
	}

	sess.SetTLSState(&state)
	if sess.ResetReader != nil {
		sess.ResetReader()
	}
	sess.Logger.Info(ctx, "TLS established",
		mailcore.Attr(mailcore.AttrTLSVersion, state.VersionString()),
		mailcore.Attr(mailcore.AttrCipherSuite, state.CipherSuiteString()))
	sess.SetConnState(keyUsername, nil)

	return mailcore.Response{}, nil
}

var _ mailcore.CommandHandler = (*STLSHandler)(nil)
var _ mailcore.ExtensibleHandler = (*STLSHandler)(nil)
