package mailcore

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// TransportConfig configures a listening Transport.
type TransportConfig struct {
	// Addr is the TCP address to listen on, e.g. ":25".
	Addr string

	// MaxConnections caps concurrently accepted connections; 0 means
	// unbounded. Backed by golang.org/x/net/netutil.LimitListener.
	MaxConnections int

	// AcceptErrorBackoff is how long Serve pauses after a transient
	// Accept error before retrying.
	AcceptErrorBackoff time.Duration

	// TLS wraps every accepted connection in TLS immediately (SMTPS/
	// POP3S-style "implicit TLS" listeners). Leave nil for plaintext
	// listeners that upgrade later via STARTTLS.
	TLS *tls.Config
}

// ConnHandler processes one accepted connection to completion. It is
// called with a context that is cancelled when the Transport is asked to
// shut down, so long-lived handlers should select on ctx.Done().
type ConnHandler func(ctx context.Context, conn Conn) error

// Transport is the non-blocking TCP accept loop shared by every protocol
// listener (SMTP, LMTP, POP3): it owns the listening socket, enforces a
// connection-count backlog limit, and supervises one goroutine per
// accepted connection under an errgroup so a panic or early return in one
// connection's handler doesn't take down the others.
type Transport struct {
	cfg      TransportConfig
	listener net.Listener
	logger   Logger
	metrics  *Metrics
}

// NewTransport creates a Transport. Listen must be called before Serve.
func NewTransport(cfg TransportConfig, logger Logger, metrics *Metrics) *Transport {
	if logger == nil {
		logger = NullLogger{}
	}
	if cfg.AcceptErrorBackoff <= 0 {
		cfg.AcceptErrorBackoff = 50 * time.Millisecond
	}
	return &Transport{cfg: cfg, logger: logger, metrics: metrics}
}

// Listen opens the listening socket, applying the configured connection
// backlog limit.
func (t *Transport) Listen() error {
	ln, err := net.Listen("tcp", t.cfg.Addr)
	if err != nil {
		return &TransportError{Op: "listen", Cause: err}
	}
	if t.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, t.cfg.MaxConnections)
	}
	t.listener = ln
	return nil
}

// Addr returns the bound address. Listen must have been called first.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, dispatching each to handle on its own goroutine. It returns once
// every in-flight handler has returned.
func (t *Transport) Serve(ctx context.Context, handle ConnHandler) error {
	if t.listener == nil {
		if err := t.Listen(); err != nil {
			return err
		}
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	group, groupCtx := errgroup.WithContext(serveCtx)

	group.Go(func() error {
		<-groupCtx.Done()
		// The listener may already be closed when shutdown began with an
		// external Close; either way the goal here is only to unblock Accept.
		t.listener.Close()
		return nil
	})

	for {
		rawConn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-groupCtx.Done():
				return group.Wait()
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(t.cfg.AcceptErrorBackoff)
				continue
			}
			// Accept failed for good (listener closed out from under us);
			// unblock the watcher so Wait can drain in-flight handlers.
			stop()
			return group.Wait()
		}

		if t.metrics != nil {
			t.metrics.ConnectionsAccepted.Inc()
			t.metrics.ConnectionsActive.Inc()
		}

		if tcp, ok := rawConn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
			tcp.SetKeepAlive(true)
		}
		if t.cfg.TLS != nil {
			rawConn = tls.Server(rawConn, t.cfg.TLS)
		}

		conn := &socketConn{Conn: rawConn}
		group.Go(func() error {
			defer func() {
				conn.Close()
				if t.metrics != nil {
					t.metrics.ConnectionsActive.Dec()
				}
				if r := recover(); r != nil {
					t.logger.Error(groupCtx, "connection handler panic", Attr("panic", r))
				}
			}()
			if err := handle(groupCtx, conn); err != nil {
				t.logger.Warn(groupCtx, "connection handler returned error", Attr(AttrError, err.Error()))
			}
			return nil
		})
	}
}

// Close stops accepting new connections.
func (t *Transport) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

// socketConn is the accepted-socket implementation of Conn. Reads,
// writes, deadlines, and addresses pass straight through the embedded
// net.Conn; UpgradeTLS replaces it with a server-side TLS session in
// place, so a session loop holding the socketConn sees the encrypted
// stream on its very next read.
type socketConn struct {
	net.Conn
	tlsState *TLSConnectionState
}

func (c *socketConn) UpgradeTLS(config *tls.Config) (TLSConnectionState, error) {
	tlsConn := tls.Server(c.Conn, config)
	if err := tlsConn.Handshake(); err != nil {
		return TLSConnectionState{}, &TLSError{
			Phase:   TLSErrorPhaseHandshake,
			Cause:   err,
			Message: "TLS handshake failed",
		}
	}
	state := NewTLSConnectionState(tlsConn.ConnectionState())
	c.Conn = tlsConn
	c.tlsState = &state
	return state, nil
}

func (c *socketConn) TLSConnectionState() *TLSConnectionState { return c.tlsState }

var _ Conn = (*socketConn)(nil)
