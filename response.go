// Package mailcore implements the protocol-agnostic core shared by the
// SMTP, LMTP, and POP3 servers built on top of it: a non-blocking TCP
// transport, per-connection session state, a handler chain with typed
// hook extension points, and the hookable-command/line-handler stack that
// drives the receive path for every concrete protocol.
package mailcore

import "bytes"

// Status renders a Response's reply code and text into wire bytes. Each
// protocol package supplies its own implementation (smtp.ReplyCode renders
// three-digit codes with an optional enhanced status; pop3.Status renders
// "+OK"/"-ERR"), which keeps this package free of protocol-specific text.
type Status interface {
	// Render returns the wire-format bytes for the given response lines.
	Render(lines []string) []byte
}

// Response is a protocol reply: a status, its text lines, and whether the
// session should end once the response has been flushed.
type Response struct {
	Status     Status
	Lines      []string
	EndSession bool

	// rendered holds pre-formatted bytes when Status is nil: the
	// concatenation of independently-rendered per-recipient sub-responses,
	// since each sub-response may carry a different status.
	rendered []byte
}

// NewResponse builds a single-line response.
func NewResponse(status Status, line string) Response {
	return Response{Status: status, Lines: []string{line}}
}

// NewMultilineResponse builds a multi-line response for one status code.
func NewMultilineResponse(status Status, lines ...string) Response {
	return Response{Status: status, Lines: lines}
}

// Bytes renders the response to wire format.
func (r Response) Bytes() []byte {
	if r.Status == nil {
		return r.rendered
	}
	return r.Status.Render(r.Lines)
}

// IsEndSession reports whether the connection should close after this
// response is flushed.
func (r Response) IsEndSession() bool {
	return r.EndSession
}

// Merge concatenates the rendered bytes of per-recipient sub-responses into
// a single multi-response, preserving recipient order. The result's
// end-session flag is the disjunction of the sub-responses'.
func Merge(parts []Response) Response {
	var buf bytes.Buffer
	end := false
	for _, p := range parts {
		buf.Write(p.Bytes())
		end = end || p.EndSession
	}
	return Response{rendered: buf.Bytes(), EndSession: end}
}
