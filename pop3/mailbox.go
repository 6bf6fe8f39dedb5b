package pop3

import (
	"context"
	"io"
)

// MessageInfo describes one message in a mailbox listing.
type MessageInfo struct {
	Index   int
	Size    int64
	Deleted bool
}

// Mailbox is the per-user view into message storage that POP3 commands
// operate on once USER/PASS authenticates successfully. A MailboxFactory
// hands out one Mailbox per session, locked for that session's duration
// per RFC 1939 §2's exclusive-access requirement.
type Mailbox interface {
	// List returns every message, including ones already marked deleted
	// (handlers filter those out); message numbers are stable for the
	// lifetime of the session per RFC 1939 §5.
	List(ctx context.Context) ([]MessageInfo, error)

	// Retrieve streams message index (1-based, per List's numbering).
	Retrieve(ctx context.Context, index int) (io.ReadCloser, error)

	// Delete marks message index for deletion; it takes effect only once
	// CommitDeletes is called, and is undone by Rollback.
	Delete(ctx context.Context, index int) error

	// Uidl returns the unique identifier for message index, stable across
	// sessions as required by RFC 1939 §7.
	Uidl(ctx context.Context, index int) (string, error)

	// CommitDeletes applies every pending deletion. Called on a clean QUIT
	// from the Transaction state, entering RFC 1939 §3's Update state.
	CommitDeletes(ctx context.Context) error

	// Rollback discards every pending deletion mark without releasing the
	// mailbox lock: used by RSET, and by the server on an abnormal
	// disconnect so an unclean session never loses mail.
	Rollback(ctx context.Context) error

	// Close releases the mailbox lock acquired when the factory opened it.
	Close(ctx context.Context) error
}

// MailboxFactory opens a Mailbox for an authenticated user. Implementations
// may back this with Maildir, mbox, or a database; pop3mem provides an
// in-memory reference implementation.
type MailboxFactory interface {
	Open(ctx context.Context, username string) (Mailbox, error)
}

// summarize returns the count and total size of every non-deleted message.
func summarize(infos []MessageInfo) (count int, size int64) {
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		count++
		size += info.Size
	}
	return count, size
}

// findMessage looks up message index in infos.
func findMessage(infos []MessageInfo, index int) (MessageInfo, bool) {
	for _, info := range infos {
		if info.Index == index {
			return info, true
		}
	}
	return MessageInfo{}, false
}
