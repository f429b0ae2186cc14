package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev/test fallback when DB is not configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewInMemoryStore constructs an empty in-memory user store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]User)}
}

// Put inserts or replaces a user row. Test/dev seeding helper.
func (s *InMemoryStore) Put(u User) {
	if strings.TrimSpace(u.ID) == "" {
		return
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

// GetUser returns the user row for id, or ErrNotFound.
func (s *InMemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(id) == "" {
		return User{}, OpError{Op: "identity.GetUser", Kind: ErrInvalidInput, Msg: "empty id"}
	}

	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()

	if !ok {
		return User{}, OpError{Op: "identity.GetUser", Kind: ErrNotFound}
	}
	return u, nil
}

// SetOnlineStatus records the online flag and last-seen timestamp.
// A missing user is ErrNotFound; the relay treats that as a benign race.
func (s *InMemoryStore) SetOnlineStatus(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return OpError{Op: "identity.SetOnlineStatus", Kind: ErrNotFound}
	}
	u.IsOnline = online
	u.LastSeenAt = lastSeen
	s.users[id] = u
	return nil
}
