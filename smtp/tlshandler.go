package smtp

import (
	"context"

	"github.com/mailforge/mailcore"
)

// STARTTLSHandler implements STARTTLS (RFC 3207): it upgrades the
// connection in place and resets the protocol state machine, requiring the
// client to re-issue EHLO/HELO over the encrypted channel per RFC 3207 §4.2
// so capabilities negotiated in plaintext can't be trusted post-upgrade.
type STARTTLSHandler struct {
	Provider mailcore.TLSProvider
}

// NewSTARTTLSHandler builds a STARTTLSHandler sourcing its tls.Config from
// provider.
func NewSTARTTLSHandler(provider mailcore.TLSProvider) *STARTTLSHandler {
	return &STARTTLSHandler{Provider: provider}
}

func (h *STARTTLSHandler) Verbs() []string { return []string{"STARTTLS"} }

// WireExtensions registers "STARTTLS" into the EHLO handler's capability
// list, unless the configured policy has TLS disabled.
func (h *STARTTLSHandler) WireExtensions(chain *mailcore.HandlerChain) error {
	if h.Provider == nil || h.Provider.Policy() == mailcore.TLSDisabled {
		return nil
	}
	handler, ok := chain.Lookup("EHLO")
	if !ok {
		return nil
	}
	ehlo, ok := handler.(*EHLOHandler)
	if !ok {
		return &mailcore.WiringError{Component: "STARTTLSHandler", Reason: "EHLO handler is not *smtp.EHLOHandler"}
	}
	ehlo.AddExtension("STARTTLS")
	return nil
}

func (h *STARTTLSHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	if args != "" {
		return RespSyntaxErrorParams, nil
	}
	if sess.TLSState() != nil {
		return RespBadSequence, nil
	}
	if h.Provider == nil || h.Provider.Policy() == mailcore.TLSDisabled {
		return NewResponse(Reply502CommandNotImplemented, "Command not implemented"), nil
	}

	config, err := h.Provider.GetConfig(ctx, &mailcore.TLSClientHello{})
	if err != nil {
		return RespTLSUnavailable, nil
	}

	// The 220 must reach the client before the handshake begins, so it is
	// flushed directly rather than returned for ProcessLine to write after
	// the (by-then-already-upgraded) connection no longer speaks plaintext.
	if sess.WriteResponse != nil {
		if werr := sess.WriteResponse(RespServiceReady); werr != nil {
			return mailcore.Response{}, &mailcore.TransportError{Op: "starttls", Cause: werr}
		}
	}

	Advance(sess, StateStartTLS)
	state, err := sess.Conn.UpgradeTLS(config)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransportError{Op: "starttls", Cause: err}
	}

	sess.SetTLSState(&state)
	if sess.ResetReader != nil {
		sess.ResetReader()
	}
	sess.Logger.Info(ctx, "TLS established",
		mailcore.Attr(mailcore.AttrTLSVersion, state.VersionString()),
		mailcore.Attr(mailcore.AttrCipherSuite, state.CipherSuiteString()))

	sess.ResetState()
	Advance(sess, StateGreeted)
	sess.SetConnState(keyHostname, nil)
	sess.SetConnState(keyExtendedHello, nil)

	return mailcore.Response{}, nil
}

var _ mailcore.CommandHandler = (*STARTTLSHandler)(nil)
var _ mailcore.ExtensibleHandler = (*STARTTLSHandler)(nil)
