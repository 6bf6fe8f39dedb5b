package smtp

import "strings"

// ESMTPParams holds the ESMTP extension parameters trailing a MAIL FROM or
// RCPT TO command, e.g. SIZE=1000 in "MAIL FROM:<a@b> SIZE=1000".
type ESMTPParams map[string]string

// MailPath is a parsed reverse-path (MAIL FROM) or forward-path (RCPT TO).
type MailPath struct {
	// Address is the local-part@domain email address.
	Address string

	// IsNull marks the null reverse-path (<>), used for bounces and DSNs.
	IsNull bool
}

// Envelope is the state of an in-progress mail transaction: the sender,
// the accumulated recipients, and their ESMTP parameters.
type Envelope struct {
	From       MailPath
	FromParams ESMTPParams
	Recipients []MailPath
	RcptParams []ESMTPParams
}

// AddRecipient appends a recipient and its ESMTP parameters.
func (e *Envelope) AddRecipient(path MailPath, params ESMTPParams) {
	e.Recipients = append(e.Recipients, path)
	e.RcptParams = append(e.RcptParams, params)
}

// knownVerbs is the set of verbs this package's handlers register for;
// used by the parser to decide whether an unrecognized verb is reported as
// a syntax error or an unknown command.
var knownVerbs = map[string]struct{}{
	"HELO": {}, "EHLO": {}, "MAIL": {}, "RCPT": {}, "DATA": {},
	"RSET": {}, "NOOP": {}, "QUIT": {}, "VRFY": {}, "HELP": {},
	"STARTTLS": {}, "AUTH": {},
}

// IsKnownVerb reports whether verb is implemented by this package.
func IsKnownVerb(verb string) bool {
	_, ok := knownVerbs[strings.ToUpper(verb)]
	return ok
}
