// Package harness provides a test harness for driving a mailcore
// connection handler (smtp.Server, lmtp.Server, pop3.Server) over
// in-memory pipes instead of real TCP sockets. The predicate for "is this
// the last line of a response" is supplied by the caller, since SMTP/LMTP's
// hyphen-continued reply codes and POP3's lone-dot-terminated multiline
// blocks disagree on the answer.
package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mailforge/mailcore"
)

// IsFinalLine reports whether line (a single line read from the server,
// including its trailing CRLF) is the last line of a response.
type IsFinalLine func(line string) bool

// SMTPStyleFinalLine implements the SMTP/LMTP reply convention: a
// continuation line separates its code from its text with a hyphen
// ("250-PIPELINING"), the final line with a space ("250 OK").
func SMTPStyleFinalLine(line string) bool {
	trimmed := strings.TrimRight(line, "\r\n")
	if len(trimmed) >= 4 {
		return trimmed[3] == ' '
	}
	return true
}

// POP3 responses are either a single "+OK"/"-ERR" line or a multiline
// block (LIST, RETR, TOP, UIDL, CAPA) ending in a lone "." line; which
// shape to expect depends on which command was sent, not on anything in
// the first line itself, so POP3 tests should call ExpectSingleLine or
// ExpectMultiline directly rather than relying on IsFinal.

// Harness drives one mailcore.ConnHandler invocation over an in-memory
// pipe pair, recording the full conversation for assertions.
type Harness struct {
	Input      *PipeBuffer
	Output     *PipeBuffer
	Conn       *Conn
	Transcript *Transcript
	IsFinal    IsFinalLine

	Errors []error

	mu   sync.Mutex
	done chan struct{}
}

// Option configures a Harness.
type Option func(*Harness)

// WithFinalLinePredicate overrides the default SMTP-style final-line
// detection with a caller-supplied predicate.
func WithFinalLinePredicate(fn IsFinalLine) Option {
	return func(h *Harness) { h.IsFinal = fn }
}

// New creates a Harness ready to Start.
func New(opts ...Option) *Harness {
	h := &Harness{
		Input:      NewPipeBuffer(),
		Output:     NewPipeBuffer(),
		Transcript: NewTranscript(),
		IsFinal:    SMTPStyleFinalLine,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Conn = &Conn{in: h.Input, out: h.Output}
	return h
}

// Start runs handle against the harness's pipe connection on its own
// goroutine.
func (h *Harness) Start(ctx context.Context, handle mailcore.ConnHandler) {
	go func() {
		defer close(h.done)
		if err := handle(ctx, h.Conn); err != nil && err != context.Canceled {
			h.mu.Lock()
			h.Errors = append(h.Errors, err)
			h.mu.Unlock()
		}
	}()
}

// StartWithTLS runs handle with a test TLS upgrade installed, so a
// STARTTLS/STLS handler under test can complete its handshake without a
// real certificate.
func (h *Harness) StartWithTLS(ctx context.Context, handle mailcore.ConnHandler, upgrade TLSUpgrade) {
	h.Conn.upgrade = upgrade
	h.Start(ctx, handle)
}

// Send writes a command line, appending the CRLF terminator.
func (h *Harness) Send(line string) {
	data := line + "\r\n"
	h.Input.Write([]byte(data))
	h.Transcript.RecordClient(data)
}

// SendRaw writes bytes with no terminator added.
func (h *Harness) SendRaw(data []byte) {
	h.Input.Write(data)
	h.Transcript.RecordClient(string(data))
}

// SendData sends a dot-stuffed message body terminated by the lone-dot
// marker, for SMTP/LMTP DATA.
func (h *Harness) SendData(data string) {
	lines := strings.Split(data, "\n")
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, ".") {
			line = "." + line
		}
		h.Send(line)
	}
	h.Send(".")
}

// Expect reads one response and checks its last line begins with prefix
// (a reply code for SMTP/LMTP, "+OK"/"-ERR" for POP3).
func (h *Harness) Expect(prefix string) ([]string, error) {
	return h.ExpectWithTimeout(prefix, 5*time.Second)
}

// ExpectWithTimeout is Expect with an explicit read timeout.
func (h *Harness) ExpectWithTimeout(prefix string, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	lines, err := h.ReadResponse(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("harness: empty response")
	}
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, prefix) {
		return lines, fmt.Errorf("harness: expected prefix %q, got %q", prefix, last)
	}
	return lines, nil
}

// ExpectAny reads one response without checking its contents.
func (h *Harness) ExpectAny() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.ReadResponse(ctx)
}

// ReadResponse reads lines until IsFinal reports the last one has been
// seen. Used for SMTP/LMTP, whose reply codes make every line
// self-describing; POP3 tests should use ExpectSingleLine/ExpectMultiline
// instead, since a POP3 response's shape depends on which command was
// sent, not on anything in the line itself.
func (h *Harness) ReadResponse(ctx context.Context) ([]string, error) {
	var lines []string
	for {
		select {
		case <-ctx.Done():
			return lines, ctx.Err()
		default:
		}

		line, err := h.Output.ReadLine(ctx)
		if err != nil {
			return lines, err
		}
		h.Transcript.RecordServer(line)
		lines = append(lines, line)

		if h.IsFinal(line) {
			return lines, nil
		}
	}
}

// ExpectSingleLine reads exactly one POP3 "+OK"/"-ERR" response line and
// checks it begins with prefix.
func (h *Harness) ExpectSingleLine(prefix string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	line, err := h.Output.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	h.Transcript.RecordServer(line)
	if !strings.HasPrefix(line, prefix) {
		return line, fmt.Errorf("harness: expected prefix %q, got %q", prefix, line)
	}
	return line, nil
}

// ExpectMultiline reads a POP3 multiline response: a header line followed
// by body lines, terminated by a lone "." line.
func (h *Harness) ExpectMultiline() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lines []string
	for {
		line, err := h.Output.ReadLine(ctx)
		if err != nil {
			return lines, err
		}
		h.Transcript.RecordServer(line)
		if strings.TrimRight(line, "\r\n") == "." {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// RunConversation drives a scripted exchange end to end.
func (h *Harness) RunConversation(ctx context.Context, handle mailcore.ConnHandler, script []ConversationStep) error {
	h.Start(ctx, handle)

	for _, step := range script {
		if step.Send != "" {
			h.Send(step.Send)
		}
		if step.SendRaw != nil {
			h.SendRaw(step.SendRaw)
		}
		if step.Expect != "" {
			if _, err := h.Expect(step.Expect); err != nil {
				return fmt.Errorf("step %q: %w", step.Description, err)
			}
		}
		if step.ExpectAny {
			if _, err := h.ExpectAny(); err != nil {
				return fmt.Errorf("step %q: %w", step.Description, err)
			}
		}
		if step.Delay > 0 {
			time.Sleep(step.Delay)
		}
	}
	return nil
}

// Close shuts down both pipe halves.
func (h *Harness) Close() {
	h.Input.Close()
	h.Output.Close()
}

// ConversationStep is one step of a scripted RunConversation.
type ConversationStep struct {
	Description string
	Send        string
	SendRaw     []byte
	Expect      string
	ExpectAny   bool
	Delay       time.Duration
}

// PipeBuffer is a thread-safe, deadline-aware byte buffer standing in for
// one direction of a socket.
type PipeBuffer struct {
	mu           sync.Mutex
	cond         *sync.Cond
	buf          bytes.Buffer
	closed       bool
	readDeadline time.Time
}

// NewPipeBuffer creates an empty PipeBuffer.
func NewPipeBuffer() *PipeBuffer {
	p := &PipeBuffer{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write implements io.Writer.
func (p *PipeBuffer) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := p.buf.Write(data)
	p.cond.Broadcast()
	return n, err
}

// Read implements io.Reader, blocking until data is available, the buffer
// is closed, or the configured read deadline passes.
func (p *PipeBuffer) Read(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.buf.Len() == 0 && !p.closed {
		deadline := p.readDeadline
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, mailcore.ErrDeadlineExceeded
		}
		if !deadline.IsZero() {
			timeout := time.Until(deadline)
			if timeout <= 0 {
				return 0, mailcore.ErrDeadlineExceeded
			}
			go func() {
				time.Sleep(timeout)
				p.cond.Broadcast()
			}()
		}
		p.cond.Wait()
	}

	if p.buf.Len() == 0 && p.closed {
		return 0, io.EOF
	}
	return p.buf.Read(data)
}

// SetReadDeadline implements mailcore.Conn's deadline contract.
func (p *PipeBuffer) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readDeadline = t
	p.cond.Broadcast()
	return nil
}

// ReadLine reads one '\n'-terminated line, respecting ctx cancellation.
func (p *PipeBuffer) ReadLine(ctx context.Context) (string, error) {
	var line bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return line.String(), ctx.Err()
		default:
		}

		p.mu.Lock()
		for p.buf.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.buf.Len() == 0 && p.closed {
			p.mu.Unlock()
			return line.String(), io.EOF
		}
		b, err := p.buf.ReadByte()
		p.mu.Unlock()
		if err != nil {
			return line.String(), err
		}

		line.WriteByte(b)
		if b == '\n' {
			return line.String(), nil
		}
	}
}

// Close implements io.Closer.
func (p *PipeBuffer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Transcript records a conversation for failure diagnostics.
type Transcript struct {
	mu      sync.Mutex
	entries []TranscriptEntry
}

// TranscriptEntry is one recorded line.
type TranscriptEntry struct {
	Time      time.Time
	Direction TranscriptDirection
	Data      string
}

// TranscriptDirection distinguishes client-sent from server-sent entries.
type TranscriptDirection int

const (
	DirectionClient TranscriptDirection = iota
	DirectionServer
)

// NewTranscript creates an empty Transcript.
func NewTranscript() *Transcript { return &Transcript{} }

// RecordClient appends a client-sent entry.
func (t *Transcript) RecordClient(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TranscriptEntry{Time: time.Now(), Direction: DirectionClient, Data: data})
}

// RecordServer appends a server-sent entry.
func (t *Transcript) RecordServer(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TranscriptEntry{Time: time.Now(), Direction: DirectionServer, Data: data})
}

// String renders the transcript as "C: "/"S: "-prefixed lines.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	for _, e := range t.entries {
		if e.Direction == DirectionClient {
			b.WriteString("C: ")
		} else {
			b.WriteString("S: ")
		}
		b.WriteString(strings.TrimSuffix(e.Data, "\r\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// Entries returns a copy of the recorded entries.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
