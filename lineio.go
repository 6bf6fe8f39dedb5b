package mailcore

import (
	"bufio"
	"crypto/tls"
	"errors"
	"net"
	"time"
)

// ErrDeadlineExceeded is returned when a read/write deadline is exceeded
// on a connection that doesn't produce its own net.Error timeout (the test
// harness's pipe connection).
var ErrDeadlineExceeded = errors.New("mailcore: deadline exceeded")

// IsTimeout reports whether err is a read/write deadline expiry, from
// either a real net.Conn or a test pipe. Session loops use this to
// distinguish an idle client (send the protocol's timeout reply, close
// gracefully) from a broken connection (close silently).
func IsTimeout(err error) bool {
	if errors.Is(err, ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Conn is the byte stream a session runs over. The transport supplies the
// TCP-backed implementation; the harness package supplies a pipe-backed
// one for tests. UpgradeTLS is the STARTTLS/STLS hook: it swaps the
// stream for an encrypted one in place, after which reads and writes go
// through TLS.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	UpgradeTLS(config *tls.Config) (TLSConnectionState, error)
	TLSConnectionState() *TLSConnectionState
}

// LineConn is the framed view of a Conn that every protocol's session
// loop drives: it reads one CRLF-terminated line at a time, renders
// Responses back to the wire, refreshes the idle deadline around each
// read and write, and feeds the byte counters. It also owns the
// buffered-reader reset the TLS upgrade path needs, so plaintext bytes
// buffered ahead of a ClientHello are never replayed into the encrypted
// stream.
type LineConn struct {
	conn    Conn
	reader  *bufio.Reader
	metrics *Metrics
}

// NewLineConn frames conn. metrics may be nil.
func NewLineConn(conn Conn, metrics *Metrics) *LineConn {
	return &LineConn{conn: conn, reader: bufio.NewReader(conn), metrics: metrics}
}

// ReadLine reads the next line, including its terminator. A non-zero idle
// duration arms the read deadline for this line and clears it afterwards;
// expiry surfaces as an IsTimeout error.
func (c *LineConn) ReadLine(idle time.Duration) ([]byte, error) {
	if idle > 0 {
		c.conn.SetReadDeadline(time.Now().Add(idle))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	line, err := c.reader.ReadBytes('\n')
	if len(line) > 0 {
		c.metrics.ObserveBytesRead(len(line))
	}
	return line, err
}

// WriteResponse renders resp and writes it out under the given write
// timeout. A response with nothing to render (a swallowed body line, a
// completed TLS upgrade) writes nothing and returns nil.
func (c *LineConn) WriteResponse(resp Response, timeout time.Duration) error {
	data := resp.Bytes()
	if len(data) == 0 {
		return nil
	}
	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	n, err := c.conn.Write(data)
	c.metrics.ObserveBytesWritten(n)
	return err
}

// ResetReader discards buffered input and starts reading fresh from the
// underlying Conn. Called immediately after a TLS upgrade swaps the byte
// stream out from under any previously buffered plaintext.
func (c *LineConn) ResetReader() {
	c.reader = bufio.NewReader(c.conn)
}
