package mailcore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicHandler struct{}

func (panicHandler) Verbs() []string { return []string{"BOOM"} }

func (panicHandler) HandleCommand(ctx context.Context, sess *Session, verb, args string) (Response, error) {
	panic("handler exploded")
}

type okHandler struct{}

func (okHandler) Verbs() []string { return []string{"PING"} }

func (okHandler) HandleCommand(ctx context.Context, sess *Session, verb, args string) (Response, error) {
	return NewResponse(stubStatus{}, "pong"), nil
}

// stubParser splits on the first space, stripping a trailing CRLF, enough
// to exercise the dispatcher without depending on any protocol package.
type stubParser struct{}

func (stubParser) Parse(line []byte) (string, string, error) {
	s := string(line)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:], nil
		}
	}
	return s, "", nil
}

func newTestDispatcher(t *testing.T, metrics *Metrics) *Dispatcher {
	t.Helper()
	chain := NewHandlerChain()
	require.NoError(t, chain.RegisterCommand(panicHandler{}))
	require.NoError(t, chain.RegisterCommand(okHandler{}))
	require.NoError(t, chain.WireExtensibleHandlers())

	responses := CannedResponses{
		SyntaxError:    NewResponse(stubStatus{}, "syntax"),
		CommandTooLong: NewResponse(stubStatus{}, "too long"),
		TooManyErrors:  NewResponse(stubStatus{}, "too many"),
		UnknownCommand: NewResponse(stubStatus{}, "unknown"),
		BadSequence:    NewResponse(stubStatus{}, "bad sequence"),
		InternalError:  NewResponse(stubStatus{}, "internal error"),
	}
	limits := &StandardLimitChecker{Limits: DefaultSessionLimits()}
	return NewDispatcher(chain, stubParser{}, limits, responses, NullLogger{}, metrics)
}

func TestProcessLineRecoversHandlerPanicWithoutEndingSession(t *testing.T) {
	d := newTestDispatcher(t, nil)
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})

	resp := d.ProcessLine(context.Background(), sess, []byte("BOOM\r\n"))

	assert.Equal(t, []string{"internal error"}, resp.Lines)
	assert.False(t, resp.IsEndSession(), "a handler panic must not close the connection")
}

func TestProcessLineObservesCommandMetrics(t *testing.T) {
	metrics := NewMetrics(nil, "test")
	d := newTestDispatcher(t, metrics)
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})

	resp := d.ProcessLine(context.Background(), sess, []byte("PING\r\n"))

	assert.Equal(t, []string{"pong"}, resp.Lines)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CommandsTotal.WithLabelValues("PING", "ok")))
}

func TestProcessLineObservesUnknownCommandMetric(t *testing.T) {
	metrics := NewMetrics(nil, "test")
	d := newTestDispatcher(t, metrics)
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})

	d.ProcessLine(context.Background(), sess, []byte("NOPE\r\n"))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CommandsTotal.WithLabelValues("NOPE", "unknown_command")))
}
