package pop3

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/mailforge/mailcore"
)

// ChainConfig assembles the standard POP3 handler chain: USER, PASS, STAT,
// LIST, RETR, DELE, NOOP, RSET, TOP, UIDL, CAPA, QUIT, and optionally STLS.
type ChainConfig struct {
	Hostname        string
	Capabilities    []string
	Limits          mailcore.SessionLimits
	Backend         mailcore.AuthBackend
	Factory         MailboxFactory
	TLSProvider     mailcore.TLSProvider
	ConnectHandlers []mailcore.ConnectHandler
	Metrics         *mailcore.Metrics
}

// NewDefaultChain builds and wires the standard POP3 command chain from
// cfg.
func NewDefaultChain(cfg ChainConfig) (*mailcore.HandlerChain, error) {
	chain := mailcore.NewHandlerChain()

	capa := NewCAPAHandler(append([]string{"UIDL", "TOP", "USER"}, cfg.Capabilities...)...)
	pass := &PASSHandler{Backend: cfg.Backend, Factory: cfg.Factory}
	pass.Metrics = cfg.Metrics
	retr := &RETRHandler{Limits: &mailcore.StandardLimitChecker{Limits: cfg.Limits}}

	commands := []mailcore.CommandHandler{
		USERHandler{}, pass, STATHandler{}, LISTHandler{}, retr,
		DELEHandler{}, NOOPHandler{}, RSETHandler{}, TOPHandler{}, UIDLHandler{},
		capa, &QUITHandler{},
	}
	if cfg.TLSProvider != nil {
		commands = append(commands, NewSTLSHandler(cfg.TLSProvider))
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

// Server drives mailcore.Transport's accept loop over a wired POP3
// HandlerChain, structured identically to smtp.Server.
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
	sess.SetState(StateAuthorization)

	if result := s.Chain.RunConnectHandlers(ctx, sess); result.Terminates() {
		if result.Response != nil {
			lc.WriteResponse(*result.Response, s.Limits.CommandTimeout)
		}
		return nil
	}

	if err := sess.WriteResponse(NewResponse(OK, s.Hostname+" POP3 server ready")); err != nil {
		return err
	}

	limits := &mailcore.StandardLimitChecker{Limits: s.Limits}
	dispatcher := mailcore.NewDispatcher(s.Chain, Parser{}, limits, cannedResponses(), s.Logger, s.Metrics)
	dispatcher.StateCheck = IsStateValidForCommand

	for {
		line, err := lc.ReadLine(s.Limits.IdleTimeout)
		if err != nil {
			if mbox := currentMailbox(sess); mbox != nil {
				mbox.Rollback(ctx)
				mbox.Close(ctx)
			}
			if mailcore.IsTimeout(err) {
				sess.WriteResponse(NewResponse(ERR, "idle timeout, closing connection"))
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
		UnknownCommand: RespUnknownCommand,
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
