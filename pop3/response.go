package pop3

import (
	"fmt"
	"strings"

	"github.com/mailforge/mailcore"
)

// Status renders POP3's "+OK"/"-ERR" reply lines (RFC 1939 §3). Unlike
// SMTP's three-digit codes, POP3 carries only these two statuses; the
// multi-line responses LIST, RETR, TOP, and UIDL use MultilineStatus
// instead, since they always end in a lone "." terminator regardless of
// body length.
type Status int

const (
	OK Status = iota
	ERR
)

func (s Status) label() string {
	if s == OK {
		return "+OK"
	}
	return "-ERR"
}

// Render implements mailcore.Status.
func (s Status) Render(lines []string) []byte {
	if len(lines) == 0 || lines[0] == "" {
		return []byte(s.label() + "\r\n")
	}
	return []byte(s.label() + " " + lines[0] + "\r\n")
}

// MultilineStatus renders a "+OK ..." header line followed by dot-stuffed
// body lines and the "<CRLF>.<CRLF>" terminator. RFC 1939's multi-line
// commands only ever succeed this way; a failure is always a single-line
// -ERR, so MultilineStatus never needs an error form.
type MultilineStatus struct{}

// Render implements mailcore.Status.
func (MultilineStatus) Render(lines []string) []byte {
	var b strings.Builder
	if len(lines) == 0 {
		b.WriteString("+OK\r\n.\r\n")
		return []byte(b.String())
	}
	fmt.Fprintf(&b, "+OK %s\r\n", lines[0])
	for _, line := range lines[1:] {
		b.WriteString(stuffLine(line))
		b.WriteString("\r\n")
	}
	b.WriteString(".\r\n")
	return []byte(b.String())
}

// stuffLine dot-stuffs a single outgoing body line (RFC 1939 §3's
// byte-stuffing rule, shared with SMTP DATA's termination convention).
func stuffLine(line string) string {
	if strings.HasPrefix(line, ".") {
		return "." + line
	}
	return line
}

// NewResponse builds a single-line response.
func NewResponse(status Status, text string) mailcore.Response {
	return mailcore.NewResponse(status, text)
}

// NewMultilineResponse builds a multi-line "+OK" response: header is the
// greeting line after "+OK ", body is rendered dot-stuffed with the
// terminator appended.
func NewMultilineResponse(header string, body ...string) mailcore.Response {
	lines := append([]string{header}, body...)
	return mailcore.NewMultilineResponse(MultilineStatus{}, lines...)
}

// Pre-built responses reused across handlers.
var (
	RespSyntaxError    = NewResponse(ERR, "syntax error")
	RespBadSequence    = NewResponse(ERR, "command not valid in this state")
	RespCommandTooLong = withEnd(NewResponse(ERR, "line too long"))
	RespLineTooLong    = withEnd(NewResponse(ERR, "line too long"))
	RespTooManyErrors  = withEnd(NewResponse(ERR, "too many errors, closing connection"))
	RespInternalError  = NewResponse(ERR, "action aborted, local error in processing")
	RespUnknownCommand = NewResponse(ERR, "unknown command")
	RespNoSuchMessage  = NewResponse(ERR, "no such message")
	RespOK             = NewResponse(OK, "")
)

func withEnd(r mailcore.Response) mailcore.Response {
	r.EndSession = true
	return r
}

var (
	_ mailcore.Status = Status(0)
	_ mailcore.Status = MultilineStatus{}
)
