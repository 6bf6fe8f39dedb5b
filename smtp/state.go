// Package smtp implements the SMTP protocol (RFC 5321) on top of
// mailcore's transport, session, and hookable command dispatch. LMTP
// reuses most of this package, overriding only the greeting verb and the
// DATA completion response shape.
package smtp

import (
	"fmt"

	"github.com/mailforge/mailcore"
)

// State is an alias for mailcore.State so SessionInfo implementations in
// this package don't need to import mailcore just to name the type.
type State = mailcore.State

// Session states, expressed as mailcore.State values so mailcore's
// Session.State/SetState can carry them without smtp needing its own
// state field.
const (
	StateConnected mailcore.State = iota
	StateGreeted
	StateIdentified
	StateMailFrom
	StateRcptTo
	StateData
	StateDataDone
	StateStartTLS
	StateTerminating
	StateTerminated
	StateAborted
)

var stateNames = map[mailcore.State]string{
	StateConnected:   "Connected",
	StateGreeted:     "Greeted",
	StateIdentified:  "Identified",
	StateMailFrom:    "MailFrom",
	StateRcptTo:      "RcptTo",
	StateData:        "Data",
	StateDataDone:    "DataDone",
	StateStartTLS:    "StartTLS",
	StateTerminating: "Terminating",
	StateTerminated:  "Terminated",
	StateAborted:     "Aborted",
}

// StateName returns the human-readable name of a session state, for
// logging.
func StateName(s mailcore.State) string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// InTransaction reports whether the session is within a mail transaction:
// MAIL FROM accepted through DATA completion or RSET.
func InTransaction(s mailcore.State) bool {
	return s == StateMailFrom || s == StateRcptTo || s == StateData
}

// validTransitions enumerates the states reachable from each state,
// enforced by the command dispatcher before a handler runs.
var validTransitions = map[mailcore.State][]mailcore.State{
	StateConnected:   {StateGreeted, StateTerminated, StateAborted},
	StateGreeted:     {StateIdentified, StateTerminating, StateAborted},
	StateIdentified:  {StateIdentified, StateMailFrom, StateStartTLS, StateTerminating, StateAborted},
	StateMailFrom:    {StateRcptTo, StateIdentified, StateTerminating, StateAborted},
	StateRcptTo:      {StateRcptTo, StateData, StateIdentified, StateTerminating, StateAborted},
	StateData:        {StateDataDone, StateAborted},
	StateDataDone:    {StateIdentified, StateTerminating, StateAborted},
	StateStartTLS:    {StateGreeted, StateAborted},
	StateTerminating: {StateTerminated},
	StateTerminated:  {},
	StateAborted:     {},
}

// CommandStateRequirements lists which states each command verb is valid
// in. A command reaching the dispatcher outside these states gets a 503
// Bad sequence of commands response.
var CommandStateRequirements = map[string][]mailcore.State{
	"HELO":     {StateGreeted, StateIdentified},
	"EHLO":     {StateGreeted, StateIdentified},
	"MAIL":     {StateIdentified},
	"RCPT":     {StateMailFrom, StateRcptTo},
	"DATA":     {StateRcptTo},
	"RSET":     {StateGreeted, StateIdentified, StateMailFrom, StateRcptTo},
	"NOOP":     {StateGreeted, StateIdentified, StateMailFrom, StateRcptTo},
	"QUIT":     {StateGreeted, StateIdentified, StateMailFrom, StateRcptTo},
	"VRFY":     {StateIdentified},
	"HELP":     {StateGreeted, StateIdentified, StateMailFrom, StateRcptTo},
	"STARTTLS": {StateIdentified},
	"AUTH":     {StateIdentified},
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

// CanTransition reports whether the state machine allows moving from
// current to next.
func CanTransition(current, next mailcore.State) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// Advance moves the session to next, enforcing validTransitions. An
// illegal transition is a handler bug, never client input (the dispatcher
// has already vetted the verb against CommandStateRequirements), so it
// panics; the dispatcher's recover turns that into the generic internal
// error without tearing the connection down.
func Advance(sess *mailcore.Session, next mailcore.State) {
	current := sess.State()
	if !CanTransition(current, next) {
		panic(fmt.Sprintf("smtp: invalid state transition %s -> %s", StateName(current), StateName(next)))
	}
	sess.SetState(next)
}
