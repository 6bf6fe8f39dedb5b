// Package pop3 implements POP3 (RFC 1939) and STLS (RFC 2595) on top of
// mailcore's transport, session, and hookable command dispatch, following
// the same handler-chain shape as the smtp package but with POP3's
// three-state session machine (Authorization/Transaction/Update) and
// +OK/-ERR reply grammar in place of SMTP's numeric codes and MAIL/RCPT/
// DATA transaction model.
package pop3

import "github.com/mailforge/mailcore"

// Session states, expressed as mailcore.State values per RFC 1939 §3.
const (
	StateAuthorization mailcore.State = iota
	StateTransaction
	StateUpdate
	StateClosed
)

var stateNames = map[mailcore.State]string{
	StateAuthorization: "Authorization",
	StateTransaction:   "Transaction",
	StateUpdate:        "Update",
	StateClosed:        "Closed",
}

// StateName returns the human-readable name of a session state, for
// logging.
func StateName(s mailcore.State) string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// CommandStateRequirements lists which states each command verb is valid
// in (RFC 1939 §§4-6): Authorization permits only USER, PASS, CAPA, STLS,
// QUIT, NOOP; Transaction permits the mailbox commands plus QUIT (which
// moves to Update and applies pending deletes).
var CommandStateRequirements = map[string][]mailcore.State{
	"USER": {StateAuthorization},
	"PASS": {StateAuthorization},
	"CAPA": {StateAuthorization, StateTransaction},
	"STLS": {StateAuthorization},
	"NOOP": {StateAuthorization, StateTransaction},
	"QUIT": {StateAuthorization, StateTransaction},

	"STAT": {StateTransaction},
	"LIST": {StateTransaction},
	"RETR": {StateTransaction},
	"DELE": {StateTransaction},
	"RSET": {StateTransaction},
	"TOP":  {StateTransaction},
	"UIDL": {StateTransaction},
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
