package smtp

// Keys into mailcore.Session's connection-scoped state (hostname claim,
// auth identity: both live for the whole TCP connection) and
// transaction-scoped state (the envelope: cleared by RSET/new MAIL).
const (
	// keyHostname is the HELO/EHLO hostname claim.
	keyHostname = "smtp.hostname"

	// keyExtendedHello records whether the client sent EHLO (true) or
	// HELO (false).
	keyExtendedHello = "smtp.extended_hello"

	// keyEnvelope is the in-progress mail transaction.
	keyEnvelope = "smtp.envelope"

	// keyIdentity is the authenticated identity from AUTH, per RFC 4954
	// surviving RSET since authentication is connection-scoped.
	keyIdentity = "smtp.identity"
)
