package smtp

import (
	"bytes"
	"strings"

	"github.com/mailforge/mailcore"
)

// Parser implements mailcore.CommandParser for SMTP/LMTP command-line
// syntax: VERB [arguments], trimmed of the trailing CRLF.
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

// ParseMailPath parses the "FROM:<addr> [PARAMS]" or "TO:<addr> [PARAMS]"
// argument of a MAIL or RCPT command.
func ParseMailPath(arg string, prefix string) (MailPath, ESMTPParams, error) {
	if !strings.HasPrefix(strings.ToUpper(arg), prefix) {
		return MailPath{}, nil, &mailcore.ProtocolError{Command: prefix, Reason: "missing " + prefix + " prefix"}
	}
	rest := strings.TrimSpace(arg[len(prefix):])

	start := strings.IndexByte(rest, '<')
	end := strings.IndexByte(rest, '>')
	if start < 0 || end < 0 || end < start {
		return MailPath{}, nil, &mailcore.ProtocolError{Command: prefix, Reason: "missing angle-bracketed address"}
	}

	addr := rest[start+1 : end]
	params := parseESMTPParams(strings.TrimSpace(rest[end+1:]))

	if addr == "" {
		return MailPath{IsNull: true}, params, nil
	}
	if !isValidAddress(addr) {
		return MailPath{}, nil, &mailcore.ProtocolError{Command: prefix, Reason: "invalid address syntax"}
	}
	return MailPath{Address: addr}, params, nil
}

func parseESMTPParams(s string) ESMTPParams {
	if s == "" {
		return nil
	}
	params := make(ESMTPParams)
	for _, tok := range strings.Fields(s) {
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			params[strings.ToUpper(tok[:eq])] = tok[eq+1:]
		} else {
			params[strings.ToUpper(tok)] = ""
		}
	}
	return params
}

func isValidAddress(addr string) bool {
	at := strings.IndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return false
	}
	return isValidHostname(addr[at+1:])
}

// ParseHeloHostname extracts and validates the hostname argument of a
// HELO/EHLO command.
func ParseHeloHostname(arg string) (string, error) {
	hostname := strings.TrimSpace(arg)
	if hostname == "" || !isValidHostname(hostname) {
		return "", &mailcore.ProtocolError{Command: "HELO", Reason: "invalid hostname"}
	}
	return hostname, nil
}

func isValidHostname(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	labels := strings.Split(s, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(rune(label[0])) || !isAlphanumeric(rune(label[len(label)-1])) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(c) && c != '-' {
				return false
			}
		}
	}
	return true
}

func isAlphanumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// DataLineReader implements the DATA-phase dot-stuffing codec shared by
// SMTP and LMTP: a leading "." on an input line escapes it from being
// mistaken for the "<CRLF>.<CRLF>" terminator, and must be stripped on
// receipt and re-added when the message is ever re-serialized to the
// wire.
type DataLineReader struct{}

// IsTerminator reports whether line (including its trailing CRLF) is the
// lone-dot DATA terminator.
func (DataLineReader) IsTerminator(line []byte) bool {
	line = bytes.TrimSuffix(line, []byte("\r\n"))
	line = bytes.TrimSuffix(line, []byte("\n"))
	return len(line) == 1 && line[0] == '.'
}

// UnstuffLine removes one layer of dot-stuffing from a received line.
func (DataLineReader) UnstuffLine(line []byte) []byte {
	if len(line) > 0 && line[0] == '.' {
		return line[1:]
	}
	return line
}

// StuffLine adds dot-stuffing to an outgoing line that starts with a dot.
func (DataLineReader) StuffLine(line []byte) []byte {
	if len(line) > 0 && line[0] == '.' {
		out := make([]byte, len(line)+1)
		out[0] = '.'
		copy(out[1:], line)
		return out
	}
	return line
}

var _ mailcore.CommandParser = Parser{}
