// Command pop3d is a minimal embedding application for the pop3 package:
// an in-memory POP3 maildrop seeded with a couple of test users, served
// until interrupted.
//
// Usage:
//
//	go run ./cmd/pop3d -listen :1110
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/authmem"
	"github.com/mailforge/mailcore/pop3"
	"github.com/mailforge/mailcore/pop3mem"
	"github.com/mailforge/mailcore/ziplog"
)

func main() {
	listen := flag.String("listen", ":1110", "address to listen on")
	hostname := flag.String("hostname", "localhost", "hostname advertised in greeting")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		os.Stderr.WriteString("pop3d: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := ziplog.New(zapLogger)
	defer logger.Sync()

	ctx := context.Background()

	auth := authmem.New()
	auth.AddUser("alice", "hunter2")

	factory := pop3mem.NewFactory()
	factory.Deliver("alice", []byte("Subject: welcome\r\n\r\nHello, alice.\r\n"))

	metrics := mailcore.NewMetrics(prometheus.DefaultRegisterer, "pop3d")

	chain, err := pop3.NewDefaultChain(pop3.ChainConfig{
		Hostname: *hostname,
		Limits:   mailcore.DefaultSessionLimits(),
		Backend:  auth,
		Factory:  factory,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Error(ctx, "wire chain", mailcore.Attr(mailcore.AttrError, err.Error()))
		os.Exit(1)
	}

	server := pop3.NewServer(mailcore.TransportConfig{Addr: *listen}, *hostname, mailcore.DefaultSessionLimits(), chain, logger, metrics)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info(ctx, "pop3d listening", mailcore.Attr("addr", *listen))
	if err := server.ListenAndServe(runCtx); err != nil && runCtx.Err() == nil {
		logger.Error(ctx, "serve", mailcore.Attr(mailcore.AttrError, err.Error()))
		os.Exit(1)
	}
}
