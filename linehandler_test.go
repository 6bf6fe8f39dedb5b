package mailcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLineHandler struct {
	name    string
	doneAt  int
	handled int
}

func (h *countingLineHandler) Name() string { return h.name }

func (h *countingLineHandler) HandleLine(_ context.Context, _ *Session, _ []byte) (bool, Response, error) {
	h.handled++
	return h.handled >= h.doneAt, Response{}, nil
}

func TestBalancedPushPopRestoresStack(t *testing.T) {
	var s LineHandlerStack
	bottom := &countingLineHandler{name: "bottom", doneAt: 99}
	s.Push(bottom)

	a := &countingLineHandler{name: "a", doneAt: 99}
	b := &countingLineHandler{name: "b", doneAt: 99}
	s.Push(a)
	s.Push(b)
	require.Equal(t, 3, s.Depth())
	assert.Equal(t, "b", s.Active().Name())

	s.Pop()
	s.Pop()
	require.Equal(t, 1, s.Depth())
	assert.Same(t, LineHandler(bottom), s.Active())
}

func TestPopUnderflowPanics(t *testing.T) {
	var s LineHandlerStack
	assert.Panics(t, func() { s.Pop() })
}

func TestDispatchRoutesOnlyToTopHandler(t *testing.T) {
	var s LineHandlerStack
	lower := &countingLineHandler{name: "lower", doneAt: 99}
	top := &countingLineHandler{name: "top", doneAt: 99}
	s.Push(lower)
	s.Push(top)

	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})
	_, _, ok := s.Dispatch(context.Background(), sess, []byte("line\r\n"))

	require.True(t, ok)
	assert.Equal(t, 1, top.handled)
	assert.Equal(t, 0, lower.handled, "only the top of the stack receives lines")
}

func TestDispatchPopsHandlerWhenDone(t *testing.T) {
	var s LineHandlerStack
	h := &countingLineHandler{name: "data", doneAt: 2}
	s.Push(h)

	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})

	_, _, ok := s.Dispatch(context.Background(), sess, []byte("first\r\n"))
	require.True(t, ok)
	assert.Equal(t, 1, s.Depth())

	_, _, ok = s.Dispatch(context.Background(), sess, []byte("second\r\n"))
	require.True(t, ok)
	assert.Equal(t, 0, s.Depth(), "a handler reporting done is popped before the next line")

	_, _, ok = s.Dispatch(context.Background(), sess, []byte("third\r\n"))
	assert.False(t, ok, "an empty stack falls back to command parsing")
}
