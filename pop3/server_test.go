package pop3_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/authmem"
	"github.com/mailforge/mailcore/harness"
	"github.com/mailforge/mailcore/pop3"
	"github.com/mailforge/mailcore/pop3mem"
)

func newTestServer(t *testing.T, backend mailcore.AuthBackend, factory pop3.MailboxFactory) *pop3.Server {
	t.Helper()
	limits := mailcore.DefaultSessionLimits()
	chain, err := pop3.NewDefaultChain(pop3.ChainConfig{
		Hostname: "pop.example.com",
		Limits:   limits,
		Backend:  backend,
		Factory:  factory,
	})
	require.NoError(t, err)
	return pop3.NewServer(mailcore.TransportConfig{}, "pop.example.com", limits, chain, mailcore.NullLogger{}, nil)
}

func newAuthedFactory(t *testing.T) (*authmem.Backend, *pop3mem.Factory) {
	t.Helper()
	backend := authmem.New()
	require.NoError(t, backend.AddUser("alice", "hunter2"))
	factory := pop3mem.NewFactory()
	factory.Deliver("alice", []byte("Subject: one\r\n\r\nfirst message body\r\n"))
	factory.Deliver("alice", []byte("Subject: two\r\n\r\nsecond message body\r\n"))
	return backend, factory
}

// TestPOP3AuthAndRetrieve drives a full Authorization-to-Update session:
// USER/PASS, STAT, LIST, RETR, DELE, then QUIT committing the deletion.
func TestPOP3AuthAndRetrieve(t *testing.T) {
	backend, factory := newAuthedFactory(t)
	server := newTestServer(t, backend, factory)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	h.Send("USER alice")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	h.Send("PASS hunter2")
	line, err := h.ExpectSingleLine("+OK")
	require.NoError(t, err)
	assert.Contains(t, line, "2 messages")

	h.Send("STAT")
	line, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)
	assert.Contains(t, line, "2 ")

	h.Send("LIST")
	lines, err := h.ExpectMultiline()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(lines[0], "+OK 2 messages"))
	require.Len(t, lines, 3)

	h.Send("RETR 1")
	body, err := h.ExpectMultiline()
	require.NoError(t, err)
	joined := strings.Join(body, "")
	assert.Contains(t, joined, "first message body")

	h.Send("DELE 1")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	// The deleted message is absent from LIST but the mailbox isn't
	// committed until QUIT.
	h.Send("LIST")
	lines, err = h.ExpectMultiline()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(lines[0], "+OK 1 messages"))

	h.Send("QUIT")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	// Reconnecting confirms the deletion was committed permanently.
	mbox, err := factory.Open(context.Background(), "alice")
	require.NoError(t, err)
	infos, err := mbox.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

// TestPOP3RsetUndoesPendingDeletes confirms RSET rolls back DELE marks
// within the same session, without closing the mailbox.
func TestPOP3RsetUndoesPendingDeletes(t *testing.T) {
	backend, factory := newAuthedFactory(t)
	server := newTestServer(t, backend, factory)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.ExpectSingleLine("+OK")
	require.NoError(t, err)
	h.Send("USER alice")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)
	h.Send("PASS hunter2")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	h.Send("DELE 1")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	h.Send("RSET")
	line, err := h.ExpectSingleLine("+OK")
	require.NoError(t, err)
	assert.Contains(t, line, "2 messages")

	h.Send("QUIT")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	mbox, err := factory.Open(context.Background(), "alice")
	require.NoError(t, err)
	infos, err := mbox.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2, "RSET should have undone the pending DELE before QUIT")
}

// TestPOP3BadPasswordIsRejected confirms a wrong password keeps the
// session in Authorization and doesn't open a mailbox.
func TestPOP3BadPasswordIsRejected(t *testing.T) {
	backend, factory := newAuthedFactory(t)
	server := newTestServer(t, backend, factory)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.ExpectSingleLine("+OK")
	require.NoError(t, err)
	h.Send("USER alice")
	_, err = h.ExpectSingleLine("+OK")
	require.NoError(t, err)

	h.Send("PASS wrongpassword")
	_, err = h.ExpectSingleLine("-ERR")
	require.NoError(t, err)

	// Still in Authorization: STAT is out of sequence.
	h.Send("STAT")
	_, err = h.ExpectSingleLine("-ERR")
	require.NoError(t, err)
}

// TestPOP3MailboxLockedRejectsSecondSession confirms RFC 1939's
// exclusive-access guarantee surfaces as a failed PASS for a second
// concurrent login to the same mailbox.
func TestPOP3MailboxLockedRejectsSecondSession(t *testing.T) {
	backend, factory := newAuthedFactory(t)

	ctx := context.Background()
	held, err := factory.Open(ctx, "alice")
	require.NoError(t, err)
	defer held.Close(ctx)

	server := newTestServer(t, backend, factory)
	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(tctx, server.HandleConnection)
	defer h.Close()

	_, lerr := h.ExpectSingleLine("+OK")
	require.NoError(t, lerr)
	h.Send("USER alice")
	_, lerr = h.ExpectSingleLine("+OK")
	require.NoError(t, lerr)

	h.Send("PASS hunter2")
	_, lerr = h.ExpectSingleLine("-ERR")
	require.NoError(t, lerr)
}
