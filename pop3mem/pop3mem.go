// Package pop3mem provides an in-memory implementation of pop3.Mailbox and
// pop3.MailboxFactory: a static registry of users and their messages,
// guarded by per-user locking. Suitable for testing and development, not
// production use.
package pop3mem

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sync"

	"github.com/mailforge/mailcore/pop3"
)

// Factory is an in-memory pop3.MailboxFactory. Only one session may hold a
// given user's mailbox open at a time, per RFC 1939 §2's exclusive-access
// requirement; a second Open call fails until the first session closes.
type Factory struct {
	mu    sync.Mutex
	users map[string]*userMailbox
}

type userMailbox struct {
	mu       sync.Mutex
	locked   bool
	messages []*message
	nextID   int
}

type message struct {
	id   int
	data []byte
}

// NewFactory creates an empty in-memory mailbox registry.
func NewFactory() *Factory {
	return &Factory{users: make(map[string]*userMailbox)}
}

// AddUser registers a user with an empty mailbox, if not already present.
func (f *Factory) AddUser(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; !ok {
		f.users[username] = &userMailbox{}
	}
}

// Deliver appends a message to username's mailbox, registering the user if
// necessary. Intended to be called from an smtp/lmtp delivery hook backed
// by the same Factory, so mail accepted over SMTP shows up over POP3.
func (f *Factory) Deliver(username string, data []byte) {
	f.mu.Lock()
	um, ok := f.users[username]
	if !ok {
		um = &userMailbox{}
		f.users[username] = um
	}
	f.mu.Unlock()

	um.mu.Lock()
	defer um.mu.Unlock()
	um.nextID++
	cp := make([]byte, len(data))
	copy(cp, data)
	um.messages = append(um.messages, &message{id: um.nextID, data: cp})
}

// Open implements pop3.MailboxFactory.
func (f *Factory) Open(ctx context.Context, username string) (pop3.Mailbox, error) {
	f.mu.Lock()
	um, ok := f.users[username]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pop3mem: no such user %q", username)
	}

	um.mu.Lock()
	defer um.mu.Unlock()
	if um.locked {
		return nil, fmt.Errorf("pop3mem: mailbox for %q is locked by another session", username)
	}
	um.locked = true

	return &Mailbox{parent: um, marks: make(map[int]bool)}, nil
}

var _ pop3.MailboxFactory = (*Factory)(nil)

// Mailbox is the per-session handle returned by Factory.Open. Deletions are
// tracked locally in marks and only applied to the parent userMailbox's
// message list by CommitDeletes, so a RSET or an unclean disconnect never
// loses mail (RFC 1939 §3).
type Mailbox struct {
	parent *userMailbox
	marks  map[int]bool
}

func (m *Mailbox) snapshot() []*message {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	out := make([]*message, len(m.parent.messages))
	copy(out, m.parent.messages)
	return out
}

func (m *Mailbox) lookup(index int) (*message, bool) {
	msgs := m.snapshot()
	if index < 1 || index > len(msgs) {
		return nil, false
	}
	return msgs[index-1], true
}

// List implements pop3.Mailbox.
func (m *Mailbox) List(ctx context.Context) ([]pop3.MessageInfo, error) {
	msgs := m.snapshot()
	infos := make([]pop3.MessageInfo, len(msgs))
	for i, msg := range msgs {
		infos[i] = pop3.MessageInfo{
			Index:   i + 1,
			Size:    int64(len(msg.data)),
			Deleted: m.marks[msg.id],
		}
	}
	return infos, nil
}

// Retrieve implements pop3.Mailbox.
func (m *Mailbox) Retrieve(ctx context.Context, index int) (io.ReadCloser, error) {
	msg, ok := m.lookup(index)
	if !ok || m.marks[msg.id] {
		return nil, fmt.Errorf("pop3mem: no such message %d", index)
	}
	return io.NopCloser(bytes.NewReader(msg.data)), nil
}

// Delete implements pop3.Mailbox.
func (m *Mailbox) Delete(ctx context.Context, index int) error {
	msg, ok := m.lookup(index)
	if !ok || m.marks[msg.id] {
		return fmt.Errorf("pop3mem: no such message %d", index)
	}
	m.marks[msg.id] = true
	return nil
}

// Uidl implements pop3.Mailbox.
func (m *Mailbox) Uidl(ctx context.Context, index int) (string, error) {
	msg, ok := m.lookup(index)
	if !ok {
		return "", fmt.Errorf("pop3mem: no such message %d", index)
	}
	sum := md5.Sum(msg.data)
	return fmt.Sprintf("%x", sum), nil
}

// CommitDeletes implements pop3.Mailbox.
func (m *Mailbox) CommitDeletes(ctx context.Context) error {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	kept := m.parent.messages[:0]
	for _, msg := range m.parent.messages {
		if !m.marks[msg.id] {
			kept = append(kept, msg)
		}
	}
	m.parent.messages = kept
	return nil
}

// Rollback implements pop3.Mailbox.
func (m *Mailbox) Rollback(ctx context.Context) error {
	m.marks = make(map[int]bool)
	return nil
}

// Close implements pop3.Mailbox.
func (m *Mailbox) Close(ctx context.Context) error {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	m.parent.locked = false
	return nil
}

var _ pop3.Mailbox = (*Mailbox)(nil)
