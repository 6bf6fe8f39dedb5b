package smtp

import (
	"fmt"
	"strings"

	"github.com/mailforge/mailcore"
)

// ReplyCode is a three-digit SMTP reply code (RFC 5321 §4.2) and
// implements mailcore.Status, rendering lines in the "code-space-text"/
// "code-hyphen-text" continuation format.
type ReplyCode int

const (
	Reply211SystemStatus   ReplyCode = 211
	Reply214HelpMessage    ReplyCode = 214
	Reply220ServiceReady   ReplyCode = 220
	Reply221ServiceClosing ReplyCode = 221
	Reply235AuthSucceeded  ReplyCode = 235
	Reply250OK             ReplyCode = 250
	Reply251UserNotLocal   ReplyCode = 251
	Reply252CannotVRFY     ReplyCode = 252

	Reply334AuthContinue   ReplyCode = 334
	Reply354StartMailInput ReplyCode = 354

	Reply421ServiceNotAvailable   ReplyCode = 421
	Reply432PasswordTransition    ReplyCode = 432
	Reply450MailboxUnavailable    ReplyCode = 450
	Reply451LocalError            ReplyCode = 451
	Reply452InsufficientStorage   ReplyCode = 452
	Reply454TLSUnavailable        ReplyCode = 454
	Reply455ParamsNotAccommodated ReplyCode = 455

	Reply500SyntaxError           ReplyCode = 500
	Reply501SyntaxErrorParams     ReplyCode = 501
	Reply502CommandNotImplemented ReplyCode = 502
	Reply503BadSequence           ReplyCode = 503
	Reply504ParamNotImplemented   ReplyCode = 504
	Reply530AuthRequired          ReplyCode = 530
	Reply534AuthMechanismWeak     ReplyCode = 534
	Reply535AuthFailed            ReplyCode = 535
	Reply550MailboxUnavailable    ReplyCode = 550
	Reply551UserNotLocal          ReplyCode = 551
	Reply552ExceededStorage       ReplyCode = 552
	Reply553MailboxNameInvalid    ReplyCode = 553
	Reply554TransactionFailed     ReplyCode = 554
)

// IsPositive reports a 2xx/3xx reply code.
func (c ReplyCode) IsPositive() bool { return c >= 200 && c < 400 }

// IsTransient reports a 4xx reply code.
func (c ReplyCode) IsTransient() bool { return c >= 400 && c < 500 }

// IsPermanent reports a 5xx reply code.
func (c ReplyCode) IsPermanent() bool { return c >= 500 }

// Render implements mailcore.Status.
func (c ReplyCode) Render(lines []string) []byte {
	if len(lines) == 0 {
		return []byte(fmt.Sprintf("%d\r\n", c))
	}
	var b strings.Builder
	last := len(lines) - 1
	for i, line := range lines {
		sep := byte('-')
		if i == last {
			sep = ' '
		}
		fmt.Fprintf(&b, "%d%c%s\r\n", c, sep, line)
	}
	return []byte(b.String())
}

// NewResponse builds a single-line response.
func NewResponse(code ReplyCode, text string) mailcore.Response {
	return mailcore.NewResponse(code, text)
}

// NewMultilineResponse builds a multi-line response sharing one code.
func NewMultilineResponse(code ReplyCode, lines ...string) mailcore.Response {
	return mailcore.NewMultilineResponse(code, lines...)
}

// Pre-built responses reused across handlers. Error replies carry their
// RFC 3463 enhanced status, matching the ENHANCEDSTATUSCODES capability
// advertised on EHLO.
var (
	RespServiceReady      = NewResponse(Reply220ServiceReady, "Service ready")
	RespBye               = withEnd(NewResponse(Reply221ServiceClosing, "2.0.0 Bye"))
	RespOK                = NewResponse(Reply250OK, "OK")
	RespStartMailInput    = NewResponse(Reply354StartMailInput, "Start mail input; end with <CRLF>.<CRLF>")
	RespSyntaxError       = NewResponse(Reply500SyntaxError, "5.5.2 Syntax error, command unrecognized")
	RespSyntaxErrorParams = NewResponse(Reply501SyntaxErrorParams, "5.5.4 Syntax error in parameters or arguments")
	RespBadSequence       = NewResponse(Reply503BadSequence, "5.5.1 Bad sequence of commands")
	RespTooManyErrors     = withEnd(NewResponse(Reply421ServiceNotAvailable, "4.7.0 Too many errors, closing connection"))
	RespCommandTooLong    = withEnd(NewResponse(Reply500SyntaxError, "5.5.2 Line too long"))
	RespLineTooLong       = withEnd(NewResponse(Reply500SyntaxError, "5.5.2 Line too long"))
	RespInternalError     = NewResponse(Reply451LocalError, "4.3.0 Requested action aborted: local error in processing")
	RespAuthRequired      = NewResponse(Reply530AuthRequired, "5.7.0 Authentication required")
	RespAuthSucceeded     = NewResponse(Reply235AuthSucceeded, "2.7.0 Authentication succeeded")
	RespAuthFailed        = NewResponse(Reply535AuthFailed, "5.7.8 Authentication credentials invalid")
	RespTLSUnavailable    = NewResponse(Reply454TLSUnavailable, "4.7.0 TLS not available")
)

func withEnd(r mailcore.Response) mailcore.Response {
	r.EndSession = true
	return r
}

var _ mailcore.Status = ReplyCode(0)
