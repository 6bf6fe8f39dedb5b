package mailcore

import "context"

// DNSService resolves mail-routing DNS records. Used by a MailHook for
// fast-fail sender-domain validation before a message is accepted.
// mailcore/dnsresolve provides the miekg/dns-backed implementation.
type DNSService interface {
	// LookupMX returns the MX records for domain, sorted by preference.
	LookupMX(ctx context.Context, domain string) ([]MXRecord, error)

	// HasAnyRecord reports whether domain resolves at all (MX, A, or AAAA),
	// used to fast-fail senders in domains that don't exist.
	HasAnyRecord(ctx context.Context, domain string) (bool, error)
}

// MXRecord is one mail-exchanger record.
type MXRecord struct {
	Host string
	Pref uint16
}

// AuthBackend verifies SASL credentials for the AUTH command. mailcore/
// authmem provides an in-memory, bcrypt-backed implementation.
type AuthBackend interface {
	// Authenticate verifies a username/password pair decoded from a SASL
	// mechanism (PLAIN, LOGIN). Returns an identity opaque to the caller
	// on success.
	Authenticate(ctx context.Context, username, password string) (Identity, error)
}

// Identity is an authenticated principal, opaque outside the AuthBackend
// that produced it.
type Identity struct {
	Username string
}

// Configuration supplies the runtime policy knobs a session consults:
// per-domain relay/auth-required decisions, session limits, and the TLS
// policy in effect. mailcore/config provides a TOML-backed implementation.
type Configuration interface {
	// IsRelayingAllowed reports whether mail may be relayed to an
	// external domain from the given remote IP without authentication.
	IsRelayingAllowed(remoteIP string, rcptDomain string) bool

	// IsAuthRequired reports whether AUTH must succeed before MAIL is
	// accepted from the given remote IP.
	IsAuthRequired(remoteIP string) bool

	// Limits returns the SessionLimits to apply to new sessions.
	Limits() SessionLimits

	// TLSPolicy returns the configured TLS policy.
	TLSPolicy() TLSPolicy

	// Hostname returns the hostname to use in greetings and Received
	// headers.
	Hostname() string
}
