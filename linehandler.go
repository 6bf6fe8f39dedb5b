package mailcore

import "context"

// LineHandler takes over raw line input from the command dispatcher for
// multi-line, non-command input: DATA body collection, an AUTH mechanism's
// continuation lines, a STARTTLS handshake's buffered remainder. While a
// LineHandler is active, incoming lines are routed to it instead of being
// parsed as commands.
type LineHandler interface {
	// HandleLine processes one raw input line (CRLF stripped by the
	// caller is NOT guaranteed; implementations that need dot-stuffing
	// semantics receive the line exactly as read). done reports whether
	// this was the final line for this handler, in which case it is
	// popped off the stack after resp is sent.
	HandleLine(ctx context.Context, sess *Session, line []byte) (done bool, resp Response, err error)

	// Name identifies the handler for logging.
	Name() string
}

// LineHandlerStack is a LIFO stack of active LineHandlers. Most sessions
// never need more than one level deep (DATA, or an AUTH continuation) but
// a stack rather than a single slot lets a handler push another handler
// (e.g. BDAT chunking driving a MIME sub-parser) without the dispatcher
// needing to know about it.
type LineHandlerStack struct {
	stack []LineHandler
}

// Push installs a LineHandler as the active handler for subsequent lines.
func (s *LineHandlerStack) Push(h LineHandler) {
	s.stack = append(s.stack, h)
}

// Pop removes the active LineHandler, returning to command parsing (or to
// the next handler down the stack). Popping an empty stack is a handler
// programming error, never client input, and panics rather than being
// silently absorbed.
func (s *LineHandlerStack) Pop() {
	if len(s.stack) == 0 {
		panic("mailcore: LineHandlerStack.Pop on empty stack")
	}
	s.stack = s.stack[:len(s.stack)-1]
}

// Active returns the current top-of-stack handler, or nil if line input
// should be parsed as a command.
func (s *LineHandlerStack) Active() LineHandler {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// Depth returns how many handlers are currently stacked.
func (s *LineHandlerStack) Depth() int {
	return len(s.stack)
}

// Dispatch routes one line to the active handler, popping it if it
// reports done. Returns ok=false if there was no active handler, in which
// case the caller should fall back to command parsing.
func (s *LineHandlerStack) Dispatch(ctx context.Context, sess *Session, line []byte) (resp Response, err error, ok bool) {
	h := s.Active()
	if h == nil {
		return Response{}, nil, false
	}
	done, r, e := h.HandleLine(ctx, sess, line)
	if done {
		s.Pop()
	}
	return r, e, true
}
