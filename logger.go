package mailcore

import "context"

// Logger is the logging interface used throughout mailcore and the
// protocol packages built on it. The production implementation is
// mailcore/ziplog, which wraps go.uber.org/zap; NullLogger discards
// everything for tests and embedders that don't care about log output.
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...LogAttr)
	Info(ctx context.Context, msg string, attrs ...LogAttr)
	Warn(ctx context.Context, msg string, attrs ...LogAttr)
	Error(ctx context.Context, msg string, attrs ...LogAttr)

	// WithAttrs returns a new Logger with the given attributes attached to
	// every subsequent log line.
	WithAttrs(attrs ...LogAttr) Logger

	// WithSession returns a new Logger tagged with a session ID.
	WithSession(sessionID SessionID) Logger
}

// LogAttr is a key-value pair for structured logging.
type LogAttr struct {
	Key   LogAttrKey
	Value LogAttrValue
}

type LogAttrKey = string
type LogAttrValue = any

// Attr creates a log attribute.
func Attr(key LogAttrKey, value LogAttrValue) LogAttr {
	return LogAttr{Key: key, Value: value}
}

// Common attribute keys shared across the protocol packages.
const (
	AttrSessionID   LogAttrKey = "session_id"
	AttrClientIP    LogAttrKey = "client_ip"
	AttrCommand     LogAttrKey = "command"
	AttrState       LogAttrKey = "state"
	AttrError       LogAttrKey = "error"
	AttrReplyCode   LogAttrKey = "reply_code"
	AttrMailFrom    LogAttrKey = "mail_from"
	AttrRcptTo      LogAttrKey = "rcpt_to"
	AttrMessageSize LogAttrKey = "message_size"
	AttrRecipients  LogAttrKey = "recipients"
	AttrTLSVersion  LogAttrKey = "tls_version"
	AttrCipherSuite LogAttrKey = "cipher_suite"
	AttrDuration    LogAttrKey = "duration_ms"
	AttrEnvelopeID  LogAttrKey = "envelope_id"
)

// NullLogger discards all messages.
type NullLogger struct{}

func (NullLogger) Debug(_ context.Context, _ string, _ ...LogAttr) {}
func (NullLogger) Info(_ context.Context, _ string, _ ...LogAttr)  {}
func (NullLogger) Warn(_ context.Context, _ string, _ ...LogAttr)  {}
func (NullLogger) Error(_ context.Context, _ string, _ ...LogAttr) {}
func (n NullLogger) WithAttrs(_ ...LogAttr) Logger                 { return n }
func (n NullLogger) WithSession(_ SessionID) Logger                { return n }

// TranscriptLogger records the raw protocol conversation, used for
// debugging and test fixtures.
type TranscriptLogger interface {
	LogInput(data []byte)
	LogOutput(data []byte)
}

// WriterTranscriptLogger writes a "C: "/"S: " prefixed transcript to an
// io.Writer.
type WriterTranscriptLogger struct {
	Writer interface{ Write([]byte) (int, error) }
}

func (l *WriterTranscriptLogger) LogInput(data []byte) {
	l.Writer.Write([]byte("C: "))
	l.Writer.Write(data)
}

func (l *WriterTranscriptLogger) LogOutput(data []byte) {
	l.Writer.Write([]byte("S: "))
	l.Writer.Write(data)
}

var _ Logger = NullLogger{}
