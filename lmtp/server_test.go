package lmtp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/harness"
	"github.com/mailforge/mailcore/lmtp"
	"github.com/mailforge/mailcore/smtp"
)

func newTestServer(t *testing.T, cfg lmtp.ChainConfig) *lmtp.Server {
	t.Helper()
	if cfg.Hostname == "" {
		cfg.Hostname = "lmtp.example.com"
	}
	if cfg.Limits == (mailcore.SessionLimits{}) {
		cfg.Limits = mailcore.DefaultSessionLimits()
	}
	chain, err := lmtp.NewDefaultChain(cfg)
	require.NoError(t, err)
	return lmtp.NewServer(mailcore.TransportConfig{}, cfg.Hostname, cfg.Limits, chain, mailcore.NullLogger{}, nil)
}

// TestLMTPPerRecipientMultiResponse confirms DATA completion emits one
// reply block per recipient, in RCPT order, rather than one reply for the
// whole transaction.
func TestLMTPPerRecipientMultiResponse(t *testing.T) {
	delivery := &selectiveDelivery{accept: map[string]bool{
		"good@example.com": true,
		"bad@example.com":  false,
	}}
	server := newTestServer(t, lmtp.ChainConfig{
		Mailbox:  smtp.AcceptAllMailbox{},
		Delivery: delivery,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("LHLO client.example.com")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("MAIL FROM:<sender@example.com>")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("RCPT TO:<good@example.com>")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("RCPT TO:<bad@example.com>")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("DATA")
	_, err = h.Expect("354")
	require.NoError(t, err)

	h.SendData("Subject: test\r\n\r\nhello\n")

	// One reply line per recipient, in RCPT order; each line is a complete
	// single-line reply of its own, so they are read one at a time rather
	// than through the hyphen-continuation predicate.
	first, err := h.ExpectSingleLine("250")
	require.NoError(t, err)
	assert.Contains(t, first, "good@example.com")

	second, err := h.ExpectSingleLine("550")
	require.NoError(t, err)
	assert.Contains(t, second, "bad@example.com")

	h.Send("QUIT")
	_, err = h.Expect("221")
	require.NoError(t, err)
}

// TestLMTPHasNoAuthVerb confirms AUTH is not part of the default chain:
// RFC 2033 doesn't define it, and LMTP is a trusted local-delivery
// protocol in this deployment model.
func TestLMTPHasNoAuthVerb(t *testing.T) {
	server := newTestServer(t, lmtp.ChainConfig{Mailbox: smtp.AcceptAllMailbox{}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := harness.New()
	h.Start(ctx, server.HandleConnection)
	defer h.Close()

	_, err := h.Expect("220")
	require.NoError(t, err)

	h.Send("LHLO client.example.com")
	_, err = h.Expect("250")
	require.NoError(t, err)

	h.Send("AUTH PLAIN AGFsaWNlAHNlY3JldA==")
	_, err = h.Expect("500")
	require.NoError(t, err)
}

type selectiveDelivery struct {
	accept map[string]bool
}

func (selectiveDelivery) HookName() string { return "test-delivery" }

func (d *selectiveDelivery) DeliverTo(_ context.Context, _ *mailcore.Session, _ *smtp.Envelope, rcpt smtp.MailPath, _ []byte) mailcore.HookResult {
	if d.accept[rcpt.Address] {
		return mailcore.OKWithResponse(smtp.NewResponse(smtp.Reply250OK, "2.1.5 "+rcpt.Address+" delivered"))
	}
	return mailcore.Deny(smtp.NewResponse(smtp.Reply550MailboxUnavailable, "5.1.1 "+rcpt.Address+" unknown user"))
}

var _ lmtp.RecipientHook = (*selectiveDelivery)(nil)
