package pop3

import (
	"context"

	"github.com/mailforge/mailcore"
)

// AuthHook inspects a USER/PASS credential pair before PASSHandler consults
// the configured mailcore.AuthBackend, letting a deployment apply rate
// limiting or IP denylisting ahead of the password check.
type AuthHook interface {
	mailcore.Hook
	Auth(ctx context.Context, sess *mailcore.Session, username, password string) mailcore.HookResult
}

// QuitHook observes session termination, mirroring smtp.QuitHook.
type QuitHook interface {
	mailcore.Hook
	Quit(ctx context.Context, sess *mailcore.Session, reason mailcore.DisconnectReason) mailcore.HookResult
}
