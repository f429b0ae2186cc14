package identity

import (
	"context"
	"time"
)

// User is the display identity the relay attaches to a connection.
type User struct {
	ID            string
	Name          string
	Email         string
	AvatarURL     string
	StatusMessage string

	IsOnline   bool
	LastSeenAt time.Time
}

// Store is the user persistence boundary.
type Store interface {
	// GetUser returns the user row for id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (User, error)

	// SetOnlineStatus records the durable online flag and last-seen timestamp.
	// Called on 0->1 and 1->0 presence transitions only, never per connection.
	SetOnlineStatus(ctx context.Context, id string, online bool, lastSeen time.Time) error
}
