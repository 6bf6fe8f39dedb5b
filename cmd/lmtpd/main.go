// Command lmtpd is a minimal embedding application for the lmtp package: a
// local-delivery agent that accepts mail over LMTP and deposits each
// recipient's copy into an in-memory per-mailbox store, replying with one
// status line per recipient.
//
// Usage:
//
//	go run ./cmd/lmtpd -listen 127.0.0.1:2424 -domain example.com
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/lmtp"
	"github.com/mailforge/mailcore/smtp"
	"github.com/mailforge/mailcore/ziplog"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:2424", "address to listen on")
	domain := flag.String("domain", "example.com", "accepted recipient domain")
	hostname := flag.String("hostname", "localhost", "hostname advertised in LHLO reply")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		os.Stderr.WriteString("lmtpd: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := ziplog.New(zapLogger)
	defer logger.Sync()

	ctx := context.Background()

	mailbox := smtp.NewStaticMailbox(*domain)
	delivery := newMemDelivery()

	metrics := mailcore.NewMetrics(prometheus.DefaultRegisterer, "lmtpd")

	chain, err := lmtp.NewDefaultChain(lmtp.ChainConfig{
		Hostname: *hostname,
		Limits:   mailcore.DefaultSessionLimits(),
		Mailbox:  mailbox,
		Delivery: delivery,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Error(ctx, "wire chain", mailcore.Attr(mailcore.AttrError, err.Error()))
		os.Exit(1)
	}

	server := lmtp.NewServer(mailcore.TransportConfig{Addr: *listen}, *hostname, mailcore.DefaultSessionLimits(), chain, logger, metrics)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info(ctx, "lmtpd listening", mailcore.Attr("addr", *listen))
	if err := server.ListenAndServe(runCtx); err != nil && runCtx.Err() == nil {
		logger.Error(ctx, "serve", mailcore.Attr(mailcore.AttrError, err.Error()))
		os.Exit(1)
	}
}

// memDelivery implements lmtp.RecipientHook by appending each delivered
// message to an in-memory, per-recipient slice.
type memDelivery struct {
	mu    sync.Mutex
	boxes map[string][][]byte
}

func newMemDelivery() *memDelivery { return &memDelivery{boxes: make(map[string][][]byte)} }

func (memDelivery) HookName() string { return "mem-delivery" }

func (d *memDelivery) DeliverTo(_ context.Context, _ *mailcore.Session, _ *smtp.Envelope, rcpt smtp.MailPath, body []byte) mailcore.HookResult {
	key := rcpt.Address
	d.mu.Lock()
	d.boxes[key] = append(d.boxes[key], append([]byte(nil), body...))
	d.mu.Unlock()
	return mailcore.OKWithResponse(smtp.NewResponse(smtp.Reply250OK, "2.1.5 delivered to "+key))
}

var _ lmtp.RecipientHook = (*memDelivery)(nil)
