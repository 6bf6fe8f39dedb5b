package smtp

import (
	"context"
	"strings"

	"github.com/mailforge/mailcore"
)

// DNSMailHook fast-fails MAIL FROM for sender domains that don't resolve
// at all, per RFC 5321's recommendation against accepting unroutable
// bounces. A DNS lookup failure (as opposed to an empty result) is a
// TransientBackendError, not a rejection, since the server may simply be
// unreachable right now.
type DNSMailHook struct {
	DNS mailcore.DNSService
}

func (DNSMailHook) HookName() string { return "dns-sender-fastfail" }

func (h DNSMailHook) Mail(ctx context.Context, sess *mailcore.Session, from MailPath, params ESMTPParams) mailcore.HookResult {
	if h.DNS == nil || from.IsNull {
		return mailcore.Declined()
	}
	domain := domainOf(strings.ToLower(from.Address))
	if domain == "" {
		return mailcore.Declined()
	}

	ok, err := h.DNS.HasAnyRecord(ctx, domain)
	if err != nil {
		return mailcore.DenySoft(NewResponse(Reply451LocalError, "Temporary failure resolving sender domain"))
	}
	if !ok {
		return mailcore.Deny(NewResponse(Reply501SyntaxErrorParams, "5.1.7 sender domain "+domain+" has no valid MX records"))
	}
	return mailcore.Declined()
}

var _ MailHook = DNSMailHook{}
