package pop3

import (
	"strings"

	"github.com/mailforge/mailcore"
)

// Parser implements mailcore.CommandParser for POP3 command-line syntax:
// VERB [argument...], trimmed of the trailing CRLF (RFC 1939 §3).
type Parser struct{}

// Parse implements mailcore.CommandParser.
func (Parser) Parse(line []byte) (verb string, args string, err error) {
	trimmed := strings.TrimRight(string(line), "\r\n")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return "", "", &mailcore.ProtocolError{Command: "", Reason: "empty command line"}
	}

	sp := strings.IndexByte(trimmed, ' ')
	if sp < 0 {
		return strings.ToUpper(trimmed), "", nil
	}
	return strings.ToUpper(trimmed[:sp]), strings.TrimSpace(trimmed[sp+1:]), nil
}

var _ mailcore.CommandParser = Parser{}
