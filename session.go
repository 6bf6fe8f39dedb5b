package mailcore

import (
	"net"
	"sync"
	"time"
)

// SessionID uniquely identifies one connection's lifetime. Generated by the
// transport with google/uuid when a connection is accepted.
type SessionID string

// ExtensionSet is the set of protocol extensions advertised to a client
// (e.g. the ESMTP EHLO response line set). Order is preserved since some
// extensions are conventionally advertised before others.
type ExtensionSet struct {
	mu    sync.RWMutex
	names []string
	set   map[string]struct{}
}

// NewExtensionSet builds an ExtensionSet with the given extensions enabled.
func NewExtensionSet(names ...string) *ExtensionSet {
	e := &ExtensionSet{set: make(map[string]struct{})}
	for _, n := range names {
		e.Add(n)
	}
	return e
}

// Add enables an extension, if not already present.
func (e *ExtensionSet) Add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.set[name]; ok {
		return
	}
	e.set[name] = struct{}{}
	e.names = append(e.names, name)
}

// Remove disables an extension.
func (e *ExtensionSet) Remove(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.set[name]; !ok {
		return
	}
	delete(e.set, name)
	for i, n := range e.names {
		if n == name {
			e.names = append(e.names[:i], e.names[i+1:]...)
			break
		}
	}
}

// Has reports whether an extension is enabled.
func (e *ExtensionSet) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.set[name]
	return ok
}

// Names returns the enabled extension names in registration order.
func (e *ExtensionSet) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Session is the protocol-agnostic connection state shared by every
// SMTP/LMTP/POP3 session: identity, timestamps, TLS status, and a
// two-tier key-value store split into connection-scoped state (survives
// for the life of the TCP connection) and transaction-scoped state
// (cleared on RSET/new transaction, except for a carry-over set the
// protocol package declares up front).
type Session struct {
	ID         SessionID
	RemoteAddr net.Addr
	LocalAddr  net.Addr
	StartTime  time.Time
	Extensions *ExtensionSet
	Logger     Logger

	// Lines is the active LineHandler stack for this connection. It lives
	// on the Session (rather than the Dispatcher) so a CommandHandler can
	// push a LineHandler — DATA's body collector, an AUTH continuation,
	// STARTTLS's post-handshake reset — without the dispatcher needing to
	// expose itself to handler code.
	Lines LineHandlerStack

	// Conn is the underlying connection, exposed so a CommandHandler can
	// drive a STARTTLS handshake directly via Conn.UpgradeTLS.
	Conn Conn

	// ResetReader is installed by the connection-serving loop and invoked
	// by STARTTLSHandler immediately after a successful upgrade, so any
	// plaintext buffered ahead of the TLS ClientHello is discarded rather
	// than fed to the new TLS stream.
	ResetReader func()

	// WriteResponse is installed by the connection-serving loop so a
	// CommandHandler can flush a response immediately instead of waiting
	// for ProcessLine to return — required by STARTTLS, which must put
	// "220 Ready to start TLS" on the wire before the handshake begins,
	// not after.
	WriteResponse func(Response) error

	mu         sync.RWMutex
	tlsState   *TLSConnectionState
	connState  map[string]any
	txState    map[string]any
	carryOver  map[string]struct{}
	errorCount int
	state      State
}

// NewSession creates a Session with empty state maps.
func NewSession(id SessionID, remote, local net.Addr, logger Logger) *Session {
	if logger == nil {
		logger = NullLogger{}
	}
	return &Session{
		ID:         id,
		RemoteAddr: remote,
		LocalAddr:  local,
		StartTime:  time.Now(),
		Extensions: NewExtensionSet(),
		Logger:     logger.WithSession(id),
		connState:  make(map[string]any),
		txState:    make(map[string]any),
		carryOver:  make(map[string]struct{}),
	}
}

// SetCarryOverKeys declares which transaction-state keys survive
// resetState, e.g. POP3's authenticated username or SMTP's negotiated
// AUTH mechanism. Called once during protocol setup.
func (s *Session) SetCarryOverKeys(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.carryOver[k] = struct{}{}
	}
}

// ConnState returns a value from connection-scoped state.
func (s *Session) ConnState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.connState[key]
	return v, ok
}

// SetConnState sets a value in connection-scoped state.
func (s *Session) SetConnState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connState[key] = value
}

// TxState returns a value from transaction-scoped state.
func (s *Session) TxState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.txState[key]
	return v, ok
}

// SetTxState sets a value in transaction-scoped state.
func (s *Session) SetTxState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txState[key] = value
}

// ResetState clears transaction-scoped state, preserving exactly the keys
// registered via SetCarryOverKeys. Idempotent: calling it twice in a row
// is equivalent to calling it once.
func (s *Session) ResetState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[string]any, len(s.carryOver))
	for k := range s.carryOver {
		if v, ok := s.txState[k]; ok {
			kept[k] = v
		}
	}
	s.txState = kept
}

// State returns the current protocol state machine value.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState sets the protocol state machine value.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// TLSState returns the negotiated TLS state, or nil if the session is
// running in plaintext.
func (s *Session) TLSState() *TLSConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tlsState
}

// SetTLSState records the negotiated TLS state after a successful upgrade.
func (s *Session) SetTLSState(state *TLSConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tlsState = state
}

// IncrementErrorCount records one protocol error and returns the new total,
// used by the dispatcher to enforce the consecutive-error disconnect limit.
func (s *Session) IncrementErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	return s.errorCount
}

// ResetErrorCount clears the consecutive error counter after a valid
// command.
func (s *Session) ResetErrorCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount = 0
}

// State is a protocol state machine value. Concrete states are declared
// by each protocol package (smtp.StateGreeted, pop3.StateAuthorization,
// ...); mailcore only moves the value around.
type State int

// DisconnectReason records why a session ended, for logging and metrics.
type DisconnectReason string

const (
	DisconnectQuit       DisconnectReason = "quit"
	DisconnectError      DisconnectReason = "error"
	DisconnectTimeout    DisconnectReason = "timeout"
	DisconnectErrorLimit DisconnectReason = "error_limit"
	DisconnectHookDenied DisconnectReason = "hook_denied"
	DisconnectShutdown   DisconnectReason = "shutdown"
)
