package lmtp

// Session-state keys shared with the smtp package's MAIL/RCPT/RSET
// handlers, which this package reuses unmodified: the key strings must
// match smtp's own (unexported) constants exactly since mailcore.Session
// state is a plain map[string]any keyed by string, not a typed namespace
// per package.
const (
	keyHostname = "smtp.hostname"
	keyEnvelope = "smtp.envelope"
)
