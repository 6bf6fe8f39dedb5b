// Command smtpd is a minimal embedding application for the smtp package:
// it loads a TOML configuration, wires an in-memory mailbox and storage,
// and serves SMTP until interrupted.
//
// Usage:
//
//	go run ./cmd/smtpd -config smtpd.toml -listen :2525
package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/authmem"
	"github.com/mailforge/mailcore/config"
	"github.com/mailforge/mailcore/dnsresolve"
	"github.com/mailforge/mailcore/smtp"
	"github.com/mailforge/mailcore/ziplog"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file")
	listen := flag.String("listen", ":2525", "address to listen on")
	domain := flag.String("domain", "example.com", "accepted recipient domain")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		os.Stderr.WriteString("smtpd: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := ziplog.New(zapLogger)
	defer logger.Sync()

	ctx := context.Background()

	var cfg mailcore.Configuration = defaultConfig{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error(ctx, "load config", mailcore.Attr(mailcore.AttrError, err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}

	auth := authmem.New()
	auth.AddUser("alice", "hunter2")

	mailbox := smtp.NewStaticMailbox(*domain)
	storage := newMemStorage()
	dns := dnsresolve.New(nil, 3*time.Second)

	metrics := mailcore.NewMetrics(prometheus.DefaultRegisterer, "smtpd")

	chain, err := smtp.NewDefaultChain(smtp.ChainConfig{
		Hostname:    cfg.Hostname(),
		Extensions:  []string{"8BITMIME", "PIPELINING", "ENHANCEDSTATUSCODES", "SMTPUTF8"},
		Limits:      cfg.Limits(),
		Mailbox:     mailbox,
		Storage:     storage,
		AuthBackend: auth,
		DNS:         dns,
		Metrics:     metrics,
	})
	if err != nil {
		logger.Error(ctx, "wire chain", mailcore.Attr(mailcore.AttrError, err.Error()))
		os.Exit(1)
	}

	server := smtp.NewServer(mailcore.TransportConfig{Addr: *listen}, cfg.Hostname(), cfg.Limits(), chain, logger, metrics)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info(ctx, "smtpd listening", mailcore.Attr("addr", *listen))
	if err := server.ListenAndServe(runCtx); err != nil && runCtx.Err() == nil {
		logger.Error(ctx, "serve", mailcore.Attr(mailcore.AttrError, err.Error()))
		os.Exit(1)
	}
}

// defaultConfig is used when no -config file is given: relay is allowed
// from everywhere and AUTH is never required, suitable only for local
// testing.
type defaultConfig struct{}

func (defaultConfig) IsRelayingAllowed(string, string) bool { return true }
func (defaultConfig) IsAuthRequired(string) bool            { return false }
func (defaultConfig) Limits() mailcore.SessionLimits        { return mailcore.DefaultSessionLimits() }
func (defaultConfig) TLSPolicy() mailcore.TLSPolicy         { return mailcore.TLSDisabled }
func (defaultConfig) Hostname() string                      { return "localhost" }

// memStorage is a trivial in-memory smtp.Storage for the example server:
// messages are kept only for the life of the process.
type memStorage struct {
	mu       sync.Mutex
	messages map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{messages: make(map[string][]byte)} }

func (m *memStorage) Store(ctx context.Context, env *smtp.Envelope, data []byte) (smtp.StorageReceipt, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.messages[id] = append([]byte(nil), data...)
	m.mu.Unlock()
	return smtp.StorageReceipt{MessageID: id, StoredAt: time.Now(), BytesWritten: int64(len(data))}, nil
}

func (m *memStorage) StoreStream(ctx context.Context, env *smtp.Envelope, r io.Reader) (smtp.StorageReceipt, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return smtp.StorageReceipt{}, err
	}
	return m.Store(ctx, env, buf.Bytes())
}
