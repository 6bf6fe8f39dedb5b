package smtp_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/harness"
	"github.com/mailforge/mailcore/smtp"
)

func newTestServer(t *testing.T, cfg smtp.ChainConfig) *smtp.Server {
	t.Helper()
	if cfg.Hostname == "" {
		cfg.Hostname = "mx.example.com"
	}
	if cfg.Limits == (mailcore.SessionLimits{}) {
		cfg.Limits = mailcore.DefaultSessionLimits()
	}
	chain, err := smtp.NewDefaultChain(cfg)
	require.NoError(t, err)
	return smtp.NewServer(mailcore.TransportConfig{}, cfg.Hostname, cfg.Limits, chain, mailcore.NullLogger{}, nil)
}

// TestSMTPHappyPath exercises EHLO, MAIL, RCPT, DATA, QUIT end to end
// against a static mailbox and in-memory storage.
func TestSMTPHappyPath(t *testing.T) {
	mailbox := smtp.NewStaticMailbox("example.com")
	mailbox.AddAddress("user@example.com")
	storage := &recordingStorage{}

	server := newTestServer(t, smtp.ChainConfig{
		Mailbox: mailbox,
		Storage: storage,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("EHLO client.example.com")
	lines, err := h.Expect("250")
	require.NoError(t, err)
	assert.Contains(t, strings.Join(lines, ""), "250")

	h.Send("MAIL FROM:<sender@example.com>")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("RCPT TO:<user@example.com>")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("DATA")
	_, err = h.Expect("354")
	require.NoError(t, err)

	h.SendData("Subject: hello\r\n\r\nBody line one.\nBody line two.\n")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("QUIT")
	_, err = h.Expect("221")
	require.NoError(t, err)

	require.Len(t, storage.received, 1)
	assert.Contains(t, string(storage.received[0]), "Body line one.")
}

// TestSMTPBadSequenceRejectsOutOfOrderCommands confirms RCPT before MAIL
// is rejected with a 503 rather than silently accepted.
func TestSMTPBadSequenceRejectsOutOfOrderCommands(t *testing.T) {
	server := newTestServer(t, smtp.ChainConfig{Mailbox: smtp.AcceptAllMailbox{}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("RCPT TO:<anyone@example.com>")
	_, err = h.Expect("503")
	require.NoError(t, err)
}

// TestSMTPRsetPreservesHelo confirms RSET returns to the Identified state
// (clearing the envelope) without forcing a fresh EHLO.
func TestSMTPRsetPreservesHelo(t *testing.T) {
	server := newTestServer(t, smtp.ChainConfig{Mailbox: smtp.AcceptAllMailbox{}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("EHLO client.example.com")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("MAIL FROM:<sender@example.com>")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("RSET")
	_, err = h.Expect("250")
	require.NoError(t, err)

	// MAIL is valid again without a second EHLO, proving HELO state
	// carried over the reset.
	h.Send("MAIL FROM:<sender@example.com>")
	_, err = h.Expect("250")
	require.NoError(t, err)
}

// TestSMTPDNSSenderFastFail confirms a sender domain with no DNS records
// is rejected at MAIL FROM time before any recipient is accepted.
func TestSMTPDNSSenderFastFail(t *testing.T) {
	server := newTestServer(t, smtp.ChainConfig{
		Mailbox: smtp.AcceptAllMailbox{},
		DNS:     stubDNS{hasRecord: false},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("EHLO client.example.com")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("MAIL FROM:<sender@nonexistent.invalid>")
	lines, err := h.Expect("501")
	require.NoError(t, err)
	assert.Contains(t, strings.Join(lines, ""), "5.1.7")
}

// TestSMTPAuthPlainSucceeds drives an AUTH PLAIN exchange with an initial
// response and confirms a subsequent MAIL FROM is accepted.
func TestSMTPAuthPlainSucceeds(t *testing.T) {
	backend := &stubAuthBackend{validUser: "alice", validPass: "hunter2"}
	server := newTestServer(t, smtp.ChainConfig{
		Mailbox:     smtp.AcceptAllMailbox{},
		AuthBackend: backend,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("EHLO client.example.com")
	lines, err := h.Expect("250")
	require.NoError(t, err)
	assert.True(t, containsLinePrefix(lines, "AUTH"))

	initial := "\x00alice\x00hunter2"
	h.Send("AUTH PLAIN " + base64Encode(initial))
	_, err = h.Expect("235")
	require.NoError(t, err)
}

// TestSMTPStartTLSRequiresFreshHello confirms STARTTLS resets the
// negotiated state so the client must EHLO again post-handshake.
func TestSMTPStartTLSRequiresFreshHello(t *testing.T) {
	provider := stubTLSProvider{policy: mailcore.TLSOptional}
	server := newTestServer(t, smtp.ChainConfig{
		Mailbox:     smtp.AcceptAllMailbox{},
		TLSProvider: provider,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.StartWithTLS(ctx, server.HandleConnection, fakeTLSUpgrade)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("EHLO client.example.com")
	lines, err := h.Expect("250")
	require.NoError(t, err)
	assert.True(t, containsLinePrefix(lines, "STARTTLS"))

	h.Send("STARTTLS")
	_, err = h.Expect("220")
	require.NoError(t, err)

	h.Send("MAIL FROM:<sender@example.com>")
	_, err = h.Expect("503")
	require.NoError(t, err)
}

func containsLinePrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.Contains(l, prefix) {
			return true
		}
	}
	return false
}

func base64Encode(s string) string {
	const table = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	var out strings.Builder
	data := []byte(s)
	for i := 0; i < len(data); i += 3 {
		var b [3]byte
		n := copy(b[:], data[i:])
		out.WriteByte(table[b[0]>>2])
		out.WriteByte(table[(b[0]&0x03)<<4|(b[1]>>4)])
		if n > 1 {
			out.WriteByte(table[(b[1]&0x0f)<<2|(b[2]>>6)])
		} else {
			out.WriteByte('=')
		}
		if n > 2 {
			out.WriteByte(table[b[2]&0x3f])
		} else {
			out.WriteByte('=')
		}
	}
	return out.String()
}

type recordingStorage struct {
	received [][]byte
}

func (s *recordingStorage) Store(_ context.Context, _ *smtp.Envelope, data []byte) (smtp.StorageReceipt, error) {
	s.received = append(s.received, append([]byte(nil), data...))
	return smtp.StorageReceipt{MessageID: "test", BytesWritten: int64(len(data))}, nil
}

func (s *recordingStorage) StoreStream(ctx context.Context, env *smtp.Envelope, data io.Reader) (smtp.StorageReceipt, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return smtp.StorageReceipt{}, err
	}
	return s.Store(ctx, env, body)
}

type stubDNS struct {
	hasRecord bool
}

func (s stubDNS) LookupMX(context.Context, string) ([]mailcore.MXRecord, error) { return nil, nil }

func (s stubDNS) HasAnyRecord(context.Context, string) (bool, error) { return s.hasRecord, nil }

type stubAuthBackend struct {
	validUser string
	validPass string
}

func (b *stubAuthBackend) Authenticate(_ context.Context, username, password string) (mailcore.Identity, error) {
	if username == b.validUser && password == b.validPass {
		return mailcore.Identity{Username: username}, nil
	}
	return mailcore.Identity{}, errors.New("smtp_test: invalid credentials")
}

type stubTLSProvider struct {
	policy mailcore.TLSPolicy
}

func (p stubTLSProvider) GetConfig(context.Context, *mailcore.TLSClientHello) (*tls.Config, error) {
	return &tls.Config{}, nil
}

func (p stubTLSProvider) Policy() mailcore.TLSPolicy { return p.policy }

// fakeTLSUpgrade stands in for a real handshake: the session keeps its
// plaintext pipes, since what's under test is the protocol state
// transition STARTTLS triggers, not the crypto/tls handshake itself.
func fakeTLSUpgrade(*tls.Config) (mailcore.TLSConnectionState, error) {
	return mailcore.TLSConnectionState{Version: tls.VersionTLS13}, nil
}
