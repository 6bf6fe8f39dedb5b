package lmtp

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/smtp"
)

// ChainConfig assembles the standard LMTP handler chain: LHLO, MAIL, RCPT,
// DATA (per-recipient), RSET, NOOP, QUIT, VRFY, HELP, and optionally
// STARTTLS. LMTP deployments are typically trusted local-delivery agents
// reached over a Unix socket or loopback address, so there is no AUTH
// handler: RFC 2033 doesn't define one.
type ChainConfig struct {
	Hostname        string
	Extensions      []string
	Limits          mailcore.SessionLimits
	Mailbox         smtp.Mailbox
	SenderPolicy    smtp.SenderPolicy
	Delivery        RecipientHook
	TLSProvider     mailcore.TLSProvider
	ConnectHandlers []mailcore.ConnectHandler
	Metrics         *mailcore.Metrics
}

// NewDefaultChain builds and wires the standard LMTP command chain from cfg.
func NewDefaultChain(cfg ChainConfig) (*mailcore.HandlerChain, error) {
	chain := mailcore.NewHandlerChain()
	limits := &mailcore.StandardLimitChecker{Limits: cfg.Limits}

	lhlo := NewLHLOHandler(cfg.Hostname, cfg.Extensions...)
	mail := &smtp.MAILHandler{Limits: limits}
	rcpt := &smtp.RCPTHandler{Limits: limits}
	data := &DATAHandler{Limits: limits}
	mail.Metrics = cfg.Metrics
	rcpt.Metrics = cfg.Metrics
	data.Metrics = cfg.Metrics

	if cfg.Mailbox != nil || cfg.SenderPolicy != nil {
		hook := smtp.MailboxHook{Mailbox: cfg.Mailbox, Sender: cfg.SenderPolicy}
		mail.RegisterHook(hook)
		rcpt.RegisterHook(hook)
	}
	if cfg.Delivery != nil {
		data.RegisterHook(cfg.Delivery)
	}

	commands := []mailcore.CommandHandler{
		lhlo, mail, rcpt, data,
		smtp.RSETHandler{}, smtp.NOOPHandler{}, &smtp.QUITHandler{}, smtp.VRFYHandler{}, smtp.HELPHandler{},
	}
	if cfg.TLSProvider != nil {
		commands = append(commands, smtp.NewSTARTTLSHandler(cfg.TLSProvider))
		// smtp.STARTTLSHandler advertises itself through the EHLO handler,
		// which LMTP doesn't register, so the capability line goes through
		// LHLO directly.
		if cfg.TLSProvider.Policy() != mailcore.TLSDisabled {
			lhlo.AddExtension("STARTTLS")
		}
	}
	for _, h := range commands {
		if err := chain.RegisterCommand(h); err != nil {
			return nil, err
		}
	}
	for _, h := range cfg.ConnectHandlers {
		if err := chain.RegisterConnect(h); err != nil {
			return nil, err
		}
	}

	if err := chain.WireExtensibleHandlers(); err != nil {
		return nil, err
	}
	return chain, nil
}

// Server drives mailcore.Transport's accept loop over a wired LMTP
// HandlerChain, structured identically to smtp.Server (line-by-line
// dispatch to completion or EndSession).
type Server struct {
	Hostname string
	Limits   mailcore.SessionLimits
	Chain    *mailcore.HandlerChain
	Logger   mailcore.Logger
	Metrics  *mailcore.Metrics

	transport *mailcore.Transport
}

// NewServer builds a Server listening per cfg.
func NewServer(cfg mailcore.TransportConfig, hostname string, limits mailcore.SessionLimits, chain *mailcore.HandlerChain, logger mailcore.Logger, metrics *mailcore.Metrics) *Server {
	if logger == nil {
		logger = mailcore.NullLogger{}
	}
	return &Server{
		Hostname:  hostname,
		Limits:    limits,
		Chain:     chain,
		Logger:    logger,
		Metrics:   metrics,
		transport: mailcore.NewTransport(cfg, logger, metrics),
	}
}

// ListenAndServe accepts and serves connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	return s.transport.Serve(ctx, s.handleConn)
}

// Addr returns the bound listening address.
func (s *Server) Addr() net.Addr { return s.transport.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.transport.Close() }

// HandleConnection drives one connection through the full session
// lifecycle; exported so tests can exercise it against an in-memory pipe.
func (s *Server) HandleConnection(ctx context.Context, conn mailcore.Conn) error {
	return s.handleConn(ctx, conn)
}

func (s *Server) handleConn(ctx context.Context, conn mailcore.Conn) error {
	lc := mailcore.NewLineConn(conn, s.Metrics)

	sess := mailcore.NewSession(mailcore.SessionID(uuid.NewString()), remoteAddr(conn), nil, s.Logger)
	sess.Conn = conn
	sess.ResetReader = lc.ResetReader
	sess.WriteResponse = func(resp mailcore.Response) error {
		return lc.WriteResponse(resp, s.Limits.CommandTimeout)
	}
	sess.SetCarryOverKeys(keyHostname)
	sess.SetState(smtp.StateConnected)

	if result := s.Chain.RunConnectHandlers(ctx, sess); result.Terminates() {
		if result.Response != nil {
			lc.WriteResponse(*result.Response, s.Limits.CommandTimeout)
		}
		return nil
	}

	if err := sess.WriteResponse(smtp.NewResponse(smtp.Reply220ServiceReady, s.Hostname+" LMTP Service ready")); err != nil {
		return err
	}
	smtp.Advance(sess, smtp.StateGreeted)

	limits := &mailcore.StandardLimitChecker{Limits: s.Limits}
	dispatcher := mailcore.NewDispatcher(s.Chain, smtp.Parser{}, limits, cannedResponses(), s.Logger, s.Metrics)
	dispatcher.StateCheck = IsStateValidForCommand

	for {
		line, err := lc.ReadLine(s.Limits.IdleTimeout)
		if err != nil {
			if mailcore.IsTimeout(err) {
				sess.WriteResponse(smtp.NewResponse(smtp.Reply421ServiceNotAvailable, "4.4.2 idle timeout, closing connection"))
				return nil
			}
			return err
		}

		resp := dispatcher.ProcessLine(ctx, sess, line)
		if werr := sess.WriteResponse(resp); werr != nil {
			return werr
		}
		if resp.IsEndSession() {
			return nil
		}
	}
}

func cannedResponses() mailcore.CannedResponses {
	return mailcore.CannedResponses{
		SyntaxError:    smtp.RespSyntaxError,
		CommandTooLong: smtp.RespCommandTooLong,
		LineTooLong:    smtp.RespLineTooLong,
		TooManyErrors:  smtp.RespTooManyErrors,
		UnknownCommand: smtp.NewResponse(smtp.Reply500SyntaxError, "Command not recognized"),
		BadSequence:    smtp.RespBadSequence,
		InternalError:  smtp.RespInternalError,
	}
}

func remoteAddr(conn mailcore.Conn) net.Addr {
	if ra, ok := conn.(interface{ RemoteAddr() net.Addr }); ok {
		return ra.RemoteAddr()
	}
	return nil
}
