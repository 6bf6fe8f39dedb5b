package smtp

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/mailforge/mailcore"
)

// Storage persists a finalized message. Implementations may write to disk,
// a database, or a message queue; StoreStream exists alongside Store so a
// backend that can consume a reader doesn't need the whole body resident in
// two places at once.
type Storage interface {
	Store(ctx context.Context, env *Envelope, data []byte) (StorageReceipt, error)
	StoreStream(ctx context.Context, env *Envelope, data io.Reader) (StorageReceipt, error)
}

// StorageReceipt is returned on successful storage.
type StorageReceipt struct {
	MessageID    string
	StoredAt     time.Time
	BytesWritten int64
	Backend      any
}

// StorageError represents a failure from a Storage backend, distinguishing
// retryable conditions (disk full, transient I/O) from permanent ones.
type StorageError struct {
	Operation string
	Cause     error
	Retryable bool
	Message   string
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error { return e.Cause }

// StorageMetrics tracks cumulative Storage activity, exposed by backends
// that implement StorageWithMetrics.
type StorageMetrics struct {
	MessagesStored uint64
	BytesStored    uint64
	StoreErrors    uint64
}

type StorageWithMetrics interface {
	Storage
	Metrics() StorageMetrics
}

type StorageWithHealth interface {
	Storage
	Healthy(ctx context.Context) error
}

// NullStorage discards every message. Useful for load tests and for
// deployments where MessageHook alone (content filtering, forwarding)
// is the entire pipeline.
type NullStorage struct{}

func (NullStorage) Store(_ context.Context, env *Envelope, data []byte) (StorageReceipt, error) {
	return StorageReceipt{MessageID: "null", BytesWritten: int64(len(data))}, nil
}

func (NullStorage) StoreStream(_ context.Context, env *Envelope, data io.Reader) (StorageReceipt, error) {
	n, _ := io.Copy(io.Discard, data)
	return StorageReceipt{MessageID: "null", BytesWritten: n}, nil
}

// StorageHook adapts a Storage backend into the MessageHook capability the
// DATA handler drives once a message body is fully received.
type StorageHook struct {
	Storage Storage
}

func (StorageHook) HookName() string { return "storage" }

func (h StorageHook) Message(ctx context.Context, sess *mailcore.Session, env *Envelope, body []byte) mailcore.HookResult {
	if h.Storage == nil {
		return mailcore.Declined()
	}
	if _, err := h.Storage.StoreStream(ctx, env, bytes.NewReader(body)); err != nil {
		return mailcore.DenySoft(NewResponse(Reply451LocalError, "Requested action aborted: local error in processing"))
	}
	return mailcore.OK()
}

var _ MessageHook = StorageHook{}
