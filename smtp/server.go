package smtp

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/mailforge/mailcore"
)

// ChainConfig assembles the standard SMTP handler chain: HELO/EHLO, MAIL,
// RCPT, DATA, RSET, NOOP, QUIT, VRFY, HELP, and optionally STARTTLS and
// AUTH. Protocols that need a different command set (LMTP drops HELO in
// favor of LHLO and specializes DATA) build their own chain instead of
// calling NewDefaultChain.
type ChainConfig struct {
	Hostname        string
	Extensions      []string
	Limits          mailcore.SessionLimits
	Mailbox         Mailbox
	SenderPolicy    SenderPolicy
	Storage         Storage
	AuthBackend     mailcore.AuthBackend
	TLSProvider     mailcore.TLSProvider
	DNS             mailcore.DNSService
	ConnectHandlers []mailcore.ConnectHandler
	Metrics         *mailcore.Metrics
}

// NewDefaultChain builds and wires the standard command chain from cfg.
func NewDefaultChain(cfg ChainConfig) (*mailcore.HandlerChain, error) {
	chain := mailcore.NewHandlerChain()
	limits := &mailcore.StandardLimitChecker{Limits: cfg.Limits}

	ehlo := NewEHLOHandler(cfg.Hostname, cfg.Extensions...)
	mail := &MAILHandler{Limits: limits}
	rcpt := &RCPTHandler{Limits: limits}
	data := &DATAHandler{Limits: limits}
	mail.Metrics = cfg.Metrics
	rcpt.Metrics = cfg.Metrics
	data.Metrics = cfg.Metrics

	if cfg.Mailbox != nil || cfg.SenderPolicy != nil {
		hook := MailboxHook{Mailbox: cfg.Mailbox, Sender: cfg.SenderPolicy}
		mail.RegisterHook(hook)
		rcpt.RegisterHook(hook)
	}
	if cfg.Storage != nil {
		data.RegisterHook(StorageHook{Storage: cfg.Storage})
	}
	if cfg.DNS != nil {
		mail.RegisterHook(DNSMailHook{DNS: cfg.DNS})
	}

	commands := []mailcore.CommandHandler{
		ehlo, mail, rcpt, data,
		RSETHandler{}, NOOPHandler{}, &QUITHandler{}, VRFYHandler{}, HELPHandler{},
	}
	if cfg.TLSProvider != nil {
		commands = append(commands, NewSTARTTLSHandler(cfg.TLSProvider))
	}
	if cfg.AuthBackend != nil {
		auth := NewAUTHHandler(cfg.AuthBackend)
		auth.Metrics = cfg.Metrics
		commands = append(commands, auth)
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

// Server drives mailcore.Transport's accept loop over a wired HandlerChain:
// every accepted connection gets its own Session and buffered reader, fed
// line by line through a Dispatcher until a response sets EndSession.
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
// lifecycle. It is the same mailcore.ConnHandler ListenAndServe installs
// on the accept loop, exported so tests can exercise it directly against
// an in-memory pipe instead of a real listener.
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
	sess.SetCarryOverKeys(keyHostname, keyExtendedHello, keyIdentity)
	sess.SetState(StateConnected)

	if result := s.Chain.RunConnectHandlers(ctx, sess); result.Terminates() {
		if result.Response != nil {
			lc.WriteResponse(*result.Response, s.Limits.CommandTimeout)
		}
		return nil
	}

	if err := sess.WriteResponse(NewResponse(Reply220ServiceReady, s.Hostname+" ESMTP Service ready")); err != nil {
		return err
	}
	Advance(sess, StateGreeted)

	limits := &mailcore.StandardLimitChecker{Limits: s.Limits}
	dispatcher := mailcore.NewDispatcher(s.Chain, Parser{}, limits, cannedResponses(), s.Logger, s.Metrics)
	dispatcher.StateCheck = IsStateValidForCommand

	for {
		line, err := lc.ReadLine(s.Limits.IdleTimeout)
		if err != nil {
			if mailcore.IsTimeout(err) {
				sess.WriteResponse(NewResponse(Reply421ServiceNotAvailable, "4.4.2 idle timeout, closing connection"))
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
		SyntaxError:    RespSyntaxError,
		CommandTooLong: RespCommandTooLong,
		LineTooLong:    RespLineTooLong,
		TooManyErrors:  RespTooManyErrors,
		UnknownCommand: NewResponse(Reply500SyntaxError, "Command not recognized"),
		BadSequence:    RespBadSequence,
		InternalError:  RespInternalError,
	}
}

func remoteAddr(conn mailcore.Conn) net.Addr {
	if ra, ok := conn.(interface{ RemoteAddr() net.Addr }); ok {
		return ra.RemoteAddr()
	}
	return nil
}
