// Package authmem implements mailcore.AuthBackend as an in-memory user
// table with bcrypt-hashed passwords, suitable for tests and small
// deployments that don't need an external directory.
package authmem

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/mailforge/mailcore"
)

// ErrInvalidCredentials is returned for both an unknown username and a
// mismatched password, so callers can't distinguish the two by error value
// (and leak which usernames exist).
var ErrInvalidCredentials = errors.New("authmem: invalid credentials")

// Backend is an in-memory, bcrypt-backed mailcore.AuthBackend.
type Backend struct {
	mu    sync.RWMutex
	users map[string][]byte // username -> bcrypt hash
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{users: make(map[string][]byte)}
}

// AddUser registers a user with a plaintext password, which is hashed
// immediately with bcrypt at the default cost.
func (b *Backend) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[username] = hash
	return nil
}

// RemoveUser deletes a user.
func (b *Backend) RemoveUser(username string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.users, username)
}

// Authenticate implements mailcore.AuthBackend.
func (b *Backend) Authenticate(ctx context.Context, username, password string) (mailcore.Identity, error) {
	b.mu.RLock()
	hash, ok := b.users[username]
	b.mu.RUnlock()

	if !ok {
		// Run bcrypt against a dummy hash to keep the time profile of an
		// unknown username indistinguishable from a wrong password.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return mailcore.Identity{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return mailcore.Identity{}, ErrInvalidCredentials
	}
	return mailcore.Identity{Username: username}, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unused-placeholder"), bcrypt.DefaultCost)

var _ mailcore.AuthBackend = (*Backend)(nil)
