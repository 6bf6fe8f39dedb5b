package mailcore

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportServesAndStopsOnContextCancel(t *testing.T) {
	tr := NewTransport(TransportConfig{Addr: "127.0.0.1:0"}, NullLogger{}, nil)
	require.NoError(t, tr.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- tr.Serve(ctx, func(_ context.Context, conn Conn) error {
			_, err := conn.Write([]byte("hello\r\n"))
			return err
		})
	}()

	client, err := net.DialTimeout("tcp", tr.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\r\n", line)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestTransportServeReturnsAfterExternalClose(t *testing.T) {
	tr := NewTransport(TransportConfig{Addr: "127.0.0.1:0"}, NullLogger{}, nil)
	require.NoError(t, tr.Listen())

	served := make(chan error, 1)
	go func() {
		served <- tr.Serve(context.Background(), func(_ context.Context, _ Conn) error {
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the listener was closed")
	}
}

func TestTransportMaxConnectionsLimitsConcurrentAccepts(t *testing.T) {
	tr := NewTransport(TransportConfig{Addr: "127.0.0.1:0", MaxConnections: 1}, NullLogger{}, nil)
	require.NoError(t, tr.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	accepted := make(chan struct{}, 2)
	go tr.Serve(ctx, func(_ context.Context, conn Conn) error {
		accepted <- struct{}{}
		<-release
		return nil
	})

	first, err := net.DialTimeout("tcp", tr.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer first.Close()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("first connection was never handled")
	}

	// A second connection completes the TCP handshake (it sits in the OS
	// accept queue) but must not reach the handler while the first holds
	// the only slot.
	second, err := net.DialTimeout("tcp", tr.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer second.Close()

	select {
	case <-accepted:
		t.Fatal("second connection was handled despite MaxConnections=1")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("second connection was never handled after the first released")
	}
}
