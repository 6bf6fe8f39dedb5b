package harness

import (
	"crypto/tls"
	"time"

	"github.com/mailforge/mailcore"
)

// TLSUpgrade stands in for a real STARTTLS/STLS handshake in tests. It
// returns the connection state the fake handshake "negotiated"; the
// harness keeps reading and writing through the same pipes, since what
// the tests exercise is the protocol state transition the upgrade
// triggers, not the crypto/tls handshake itself.
type TLSUpgrade func(config *tls.Config) (mailcore.TLSConnectionState, error)

// Conn adapts the harness's two PipeBuffers into a mailcore.Conn: reads
// drain the input buffer the test writes commands into, writes fill the
// output buffer the test reads responses from. Only the read side honors
// deadlines; harness writes never block.
type Conn struct {
	in  *PipeBuffer
	out *PipeBuffer

	upgrade  TLSUpgrade
	tlsState *mailcore.TLSConnectionState
}

func (c *Conn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *Conn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *Conn) Close() error {
	c.in.Close()
	return c.out.Close()
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.in.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }

func (c *Conn) UpgradeTLS(config *tls.Config) (mailcore.TLSConnectionState, error) {
	if c.upgrade == nil {
		return mailcore.TLSConnectionState{}, &mailcore.TLSError{
			Phase:   mailcore.TLSErrorPhaseHandshake,
			Message: "no TLS upgrade installed on harness connection",
		}
	}
	state, err := c.upgrade(config)
	if err != nil {
		return mailcore.TLSConnectionState{}, err
	}
	c.tlsState = &state
	return state, nil
}

func (c *Conn) TLSConnectionState() *mailcore.TLSConnectionState { return c.tlsState }

var _ mailcore.Conn = (*Conn)(nil)
