package pop3

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mailforge/mailcore"
)

// currentMailbox returns the open Mailbox for sess, or nil if USER/PASS
// hasn't completed.
func currentMailbox(sess *mailcore.Session) Mailbox {
	v, ok := sess.ConnState(keyMailbox)
	if !ok {
		return nil
	}
	mbox, _ := v.(Mailbox)
	return mbox
}

// USERHandler implements USER (RFC 1939 §7): it only records the claimed
// username; PASSHandler does the actual authentication, so a bad USER
// never by itself reveals whether an account exists.
type USERHandler struct{}

func (USERHandler) Verbs() []string { return []string{"USER"} }

func (USERHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	if args == "" {
		return RespSyntaxError, nil
	}
	sess.SetConnState(keyUsername, args)
	return NewResponse(OK, "send PASS"), nil
}

var _ mailcore.CommandHandler = USERHandler{}

// PASSHandler implements PASS (RFC 1939 §7): it authenticates against the
// configured mailcore.AuthBackend and, on success, opens the user's
// Mailbox and advances the session to the Transaction state.
type PASSHandler struct {
	mailcore.HookableCommandHandler[AuthHook]
	Backend mailcore.AuthBackend
	Factory MailboxFactory
}

func (h *PASSHandler) Verbs() []string { return []string{"PASS"} }

func (h *PASSHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	v, ok := sess.ConnState(keyUsername)
	username, _ := v.(string)
	if !ok || username == "" {
		return RespBadSequence, nil
	}
	if args == "" {
		return RespSyntaxError, nil
	}

	result := h.RunHooks(func(hook AuthHook) mailcore.HookResult {
		return hook.Auth(ctx, sess, username, args)
	})
	if result.Terminates() {
		if result.Response != nil {
			return *result.Response, nil
		}
		return NewResponse(ERR, "authentication denied"), nil
	}

	identity, err := h.Backend.Authenticate(ctx, username, args)
	if err != nil {
		return NewResponse(ERR, "authentication failed"), nil
	}
	if h.Factory == nil {
		return mailcore.Response{}, &mailcore.WiringError{Component: "pop3.PASSHandler", Reason: "no MailboxFactory configured"}
	}
	mbox, err := h.Factory.Open(ctx, identity.Username)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.MailboxFactory", Cause: err}
	}

	infos, err := mbox.List(ctx)
	if err != nil {
		mbox.Close(ctx)
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}

	sess.SetConnState(keyIdentity, identity)
	sess.SetConnState(keyMailbox, mbox)
	sess.SetState(StateTransaction)

	count, size := summarize(infos)
	return NewResponse(OK, fmt.Sprintf("%s has %d messages (%d octets)", username, count, size)), nil
}

var _ mailcore.CommandHandler = (*PASSHandler)(nil)

// STATHandler implements STAT (RFC 1939 §5): the maildrop's message count
// and total size, excluding messages already marked for deletion.
type STATHandler struct{}

func (STATHandler) Verbs() []string { return []string{"STAT"} }

func (STATHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	if mbox == nil {
		return RespBadSequence, nil
	}
	infos, err := mbox.List(ctx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}
	count, size := summarize(infos)
	return NewResponse(OK, fmt.Sprintf("%d %d", count, size)), nil
}

var _ mailcore.CommandHandler = STATHandler{}

// LISTHandler implements LIST (RFC 1939 §5): with no argument, a
// multi-line scan listing of every undeleted message; with a message
// number, a single-line reply for that message alone.
type LISTHandler struct{}

func (LISTHandler) Verbs() []string { return []string{"LIST"} }

func (LISTHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	if mbox == nil {
		return RespBadSequence, nil
	}
	infos, err := mbox.List(ctx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}

	if args != "" {
		idx, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			return RespSyntaxError, nil
		}
		info, ok := findMessage(infos, idx)
		if !ok || info.Deleted {
			return RespNoSuchMessage, nil
		}
		return NewResponse(OK, fmt.Sprintf("%d %d", info.Index, info.Size)), nil
	}

	count, size := summarize(infos)
	lines := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d %d", info.Index, info.Size))
	}
	return NewMultilineResponse(fmt.Sprintf("%d messages (%d octets)", count, size), lines...), nil
}

var _ mailcore.CommandHandler = LISTHandler{}

// RETRHandler implements RETR (RFC 1939 §5): streams message index,
// dot-stuffed, terminated by the lone-dot marker.
type RETRHandler struct {
	Limits mailcore.LimitChecker
}

func (h *RETRHandler) Verbs() []string { return []string{"RETR"} }

func (h *RETRHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	if mbox == nil {
		return RespBadSequence, nil
	}
	idx, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || idx < 1 {
		return RespSyntaxError, nil
	}

	infos, err := mbox.List(ctx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}
	info, ok := findMessage(infos, idx)
	if !ok || info.Deleted {
		return RespNoSuchMessage, nil
	}
	if h.Limits != nil {
		if err := h.Limits.CheckMessageSize(info.Size); err != nil {
			return NewResponse(ERR, "message exceeds maximum size accepted by this server"), nil
		}
	}

	rc, err := mbox.Retrieve(ctx, idx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}

	return NewMultilineResponse(fmt.Sprintf("%d octets", info.Size), splitLines(data)...), nil
}

var _ mailcore.CommandHandler = (*RETRHandler)(nil)

// DELEHandler implements DELE (RFC 1939 §5): marks a message for deletion,
// applied only once QUIT commits the Transaction.
type DELEHandler struct{}

func (DELEHandler) Verbs() []string { return []string{"DELE"} }

func (DELEHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	if mbox == nil {
		return RespBadSequence, nil
	}
	idx, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return RespSyntaxError, nil
	}
	if err := mbox.Delete(ctx, idx); err != nil {
		return RespNoSuchMessage, nil
	}
	return NewResponse(OK, "message deleted"), nil
}

var _ mailcore.CommandHandler = DELEHandler{}

// NOOPHandler implements NOOP: valid in both Authorization and Transaction,
// always +OK.
type NOOPHandler struct{}

func (NOOPHandler) Verbs() []string { return []string{"NOOP"} }

func (NOOPHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	return RespOK, nil
}

var _ mailcore.CommandHandler = NOOPHandler{}

// RSETHandler implements RSET (RFC 1939 §5): unmarks every pending
// deletion for the remainder of the Transaction state, without closing the
// mailbox or ending the session.
type RSETHandler struct{}

func (RSETHandler) Verbs() []string { return []string{"RSET"} }

func (RSETHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	if mbox == nil {
		return RespBadSequence, nil
	}
	if err := mbox.Rollback(ctx); err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}

	infos, err := mbox.List(ctx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}
	count, size := summarize(infos)
	return NewResponse(OK, fmt.Sprintf("maildrop has %d messages (%d octets)", count, size)), nil
}

var _ mailcore.CommandHandler = RSETHandler{}

// TOPHandler implements TOP (RFC 1939 §7): the message's header plus the
// first n lines of its body.
type TOPHandler struct{}

func (TOPHandler) Verbs() []string { return []string{"TOP"} }

func (TOPHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	if mbox == nil {
		return RespBadSequence, nil
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return RespSyntaxError, nil
	}
	idx, err1 := strconv.Atoi(fields[0])
	n, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || idx < 1 || n < 0 {
		return RespSyntaxError, nil
	}

	infos, err := mbox.List(ctx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}
	info, ok := findMessage(infos, idx)
	if !ok || info.Deleted {
		return RespNoSuchMessage, nil
	}

	rc, err := mbox.Retrieve(ctx, idx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}

	header, body := splitMessage(data)
	if n < len(body) {
		body = body[:n]
	}
	lines := append(header, "")
	lines = append(lines, body...)
	return NewMultilineResponse("top of message follows", lines...), nil
}

var _ mailcore.CommandHandler = TOPHandler{}

// UIDLHandler implements UIDL (RFC 1939 §7): stable message identifiers
// surviving across sessions, used by clients to avoid re-downloading mail
// already retrieved.
type UIDLHandler struct{}

func (UIDLHandler) Verbs() []string { return []string{"UIDL"} }

func (UIDLHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	if mbox == nil {
		return RespBadSequence, nil
	}
	infos, err := mbox.List(ctx)
	if err != nil {
		return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
	}

	if args != "" {
		idx, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			return RespSyntaxError, nil
		}
		info, ok := findMessage(infos, idx)
		if !ok || info.Deleted {
			return RespNoSuchMessage, nil
		}
		uid, err := mbox.Uidl(ctx, idx)
		if err != nil {
			return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
		}
		return NewResponse(OK, fmt.Sprintf("%d %s", info.Index, uid)), nil
	}

	lines := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		uid, err := mbox.Uidl(ctx, info.Index)
		if err != nil {
			return mailcore.Response{}, &mailcore.TransientBackendError{Backend: "pop3.Mailbox", Cause: err}
		}
		lines = append(lines, fmt.Sprintf("%d %s", info.Index, uid))
	}
	return NewMultilineResponse("unique-id listing follows", lines...), nil
}

var _ mailcore.CommandHandler = UIDLHandler{}

// CAPAHandler implements CAPA (RFC 2449), advertising capability names the
// same way smtp's EHLOHandler advertises extensions; other handlers
// register into it via WireExtensions.
type CAPAHandler struct {
	base  []string
	extra []string
}

// NewCAPAHandler builds the CAPA handler advertising the given static
// capability names.
func NewCAPAHandler(base ...string) *CAPAHandler {
	return &CAPAHandler{base: base}
}

// AddExtension registers an additional capability line.
func (h *CAPAHandler) AddExtension(ext string) {
	h.extra = append(h.extra, ext)
}

func (h *CAPAHandler) Verbs() []string { return []string{"CAPA"} }

func (h *CAPAHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	lines := append(append([]string{}, h.base...), h.extra...)
	return NewMultilineResponse("Capability list follows", lines...), nil
}

var _ mailcore.CommandHandler = (*CAPAHandler)(nil)

// QUITHandler implements QUIT: from Authorization it closes with no side
// effects; from Transaction it advances to Update, committing every
// pending deletion (RFC 1939 §3).
type QUITHandler struct {
	mailcore.HookableCommandHandler[QuitHook]
}

func (h *QUITHandler) Verbs() []string { return []string{"QUIT"} }

func (h *QUITHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	mbox := currentMailbox(sess)
	var resp mailcore.Response
	if mbox != nil {
		sess.SetState(StateUpdate)
		commitErr := mbox.CommitDeletes(ctx)
		mbox.Close(ctx)
		if commitErr != nil {
			resp = NewResponse(ERR, "some deleted messages not removed")
		} else {
			resp = NewResponse(OK, "dewey POP3 server signing off")
		}
	} else {
		resp = NewResponse(OK, "dewey POP3 server signing off")
	}
	sess.SetState(StateClosed)

	resp = h.Execute(func() mailcore.Response {
		return resp
	}, func(hook QuitHook) mailcore.HookResult {
		return hook.Quit(ctx, sess, mailcore.DisconnectQuit)
	})
	resp.EndSession = true
	return resp, nil
}

var _ mailcore.CommandHandler = (*QUITHandler)(nil)

// splitLines splits raw message bytes into individual lines with their
// line endings stripped, for multi-line response bodies.
func splitLines(data []byte) []string {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// splitMessage splits a message into its header lines (everything before
// the first blank line) and its body lines, per RFC 5322's separation.
func splitMessage(data []byte) (header, body []string) {
	lines := splitLines(data)
	for i, line := range lines {
		if line == "" {
			return lines[:i], lines[i+1:]
		}
	}
	return lines, nil
}
