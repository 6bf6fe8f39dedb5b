package smtp

import (
	"context"

	"github.com/mailforge/mailcore"
)

// HeloHook inspects a HELO/EHLO hostname claim, e.g. to reject forged or
// malformed identities.
type HeloHook interface {
	mailcore.Hook
	Helo(ctx context.Context, sess *mailcore.Session, hostname string, extended bool) mailcore.HookResult
}

// MailHook inspects a MAIL FROM reverse-path before the transaction is
// accepted, e.g. a DNS-backed sender-domain fast-fail check.
type MailHook interface {
	mailcore.Hook
	Mail(ctx context.Context, sess *mailcore.Session, from MailPath, params ESMTPParams) mailcore.HookResult
}

// RcptHook inspects each RCPT TO forward-path, e.g. relay and
// auth-required policy checks, or local-mailbox existence.
type RcptHook interface {
	mailcore.Hook
	Rcpt(ctx context.Context, sess *mailcore.Session, to MailPath, params ESMTPParams) mailcore.HookResult
}

// MessageHook inspects the complete message body once DATA has finished,
// e.g. content filtering or storage.
type MessageHook interface {
	mailcore.Hook
	Message(ctx context.Context, sess *mailcore.Session, env *Envelope, body []byte) mailcore.HookResult
}

// AuthHook verifies SASL credentials submitted via AUTH.
type AuthHook interface {
	mailcore.Hook
	Auth(ctx context.Context, sess *mailcore.Session, mechanism, username, password string) mailcore.HookResult
}

// QuitHook runs when a session ends, successfully or not, for cleanup and
// accounting.
type QuitHook interface {
	mailcore.Hook
	Quit(ctx context.Context, sess *mailcore.Session, reason mailcore.DisconnectReason) mailcore.HookResult
}
