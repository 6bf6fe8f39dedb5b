package pop3

// Session-state keys. USER/identity are connection-scoped (they outlive
// the command that sets them, for the lifetime of the TCP connection); the
// open mailbox is connection-scoped too, since POP3 has no notion of a
// mail transaction distinct from the whole session.
const (
	keyUsername = "pop3.username"
	keyIdentity = "pop3.identity"
	keyMailbox  = "pop3.mailbox"
)
