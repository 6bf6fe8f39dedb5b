// Package lmtp implements LMTP (RFC 2033) as a thin specialization of the
// smtp package: it reuses smtp's MAIL/RCPT/RSET/NOOP/QUIT/VRFY/HELP command
// handlers and Envelope state verbatim, replacing only the greeting verb
// (LHLO instead of HELO/EHLO) and DATA's completion behavior, which must
// produce one reply per accepted recipient instead of one reply for the
// whole transaction (RFC 2033 §4.2).
package lmtp

import (
	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/smtp"
)

// CommandStateRequirements mirrors smtp.CommandStateRequirements with LHLO
// in place of HELO/EHLO.
var CommandStateRequirements = map[string][]mailcore.State{
	"LHLO": {smtp.StateGreeted, smtp.StateIdentified},
	"MAIL": {smtp.StateIdentified},
	"RCPT": {smtp.StateMailFrom, smtp.StateRcptTo},
	"DATA": {smtp.StateRcptTo},
	"RSET": {smtp.StateGreeted, smtp.StateIdentified, smtp.StateMailFrom, smtp.StateRcptTo},
	"NOOP": {smtp.StateGreeted, smtp.StateIdentified, smtp.StateMailFrom, smtp.StateRcptTo},
	"QUIT": {smtp.StateGreeted, smtp.StateIdentified, smtp.StateMailFrom, smtp.StateRcptTo},
	"VRFY": {smtp.StateIdentified},
	"HELP": {smtp.StateGreeted, smtp.StateIdentified, smtp.StateMailFrom, smtp.StateRcptTo},

	"STARTTLS": {smtp.StateIdentified},
}

// IsStateValidForCommand reports whether state is a permitted state for
// verb, per CommandStateRequirements. The (verb, state) argument order
// matches mailcore.Dispatcher.StateCheck's signature so it can be assigned
// directly.
func IsStateValidForCommand(verb string, state mailcore.State) bool {
	for _, s := range CommandStateRequirements[verb] {
		if s == state {
			return true
		}
	}
	return false
}
