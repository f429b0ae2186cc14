package relay

import (
	"context"
	"errors"
	"time"

	v1 "ripple/contracts/relay/v1"
)

// ErrNotFound is returned by stores when a referenced chat or message is gone.
// The relay treats it as a benign race everywhere: dropped, logged, never fatal.
var ErrNotFound = errors.New("not found")

// Status is a message's delivery state. Monotonic; never regresses.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return -1
	}
}

// Advances reports whether moving from s to next is a forward transition.
func (s Status) Advances(next Status) bool {
	return next.rank() > s.rank()
}

// Reaction is an emoji reaction attached to a message.
type Reaction struct {
	UserID string
	Emoji  string
}

// Message is the relay's view of a durable message. The relay mutates only
// Status and ReadBy (via the store's update interface); everything else is
// read-only context for fan-out payloads.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	MediaURL   string
	Kind       string
	Status     Status
	ReadBy     []string
	Reactions  []Reaction
	StarredBy  []string
	CreatedAt  time.Time
	EditedAt   *time.Time
}

// Wire converts a Message into its protocol representation.
func (m Message) Wire() v1.Message {
	reactions := make([]v1.Reaction, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		reactions = append(reactions, v1.Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}
	return v1.Message{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		MediaURL:   m.MediaURL,
		Kind:       m.Kind,
		Status:     string(m.Status),
		ReadBy:     append([]string(nil), m.ReadBy...),
		Reactions:  reactions,
		StarredBy:  append([]string(nil), m.StarredBy...),
		CreatedAt:  m.CreatedAt,
		EditedAt:   m.EditedAt,
	}
}

// ChatStore is the chat-participant query boundary.
type ChatStore interface {
	// ChatsFor returns the ids of all chats userID participates in.
	// Used once per connection to seed topic subscriptions.
	ChatsFor(ctx context.Context, userID string) ([]string, error)

	// Participants returns the participant user ids of chatID, or ErrNotFound.
	Participants(ctx context.Context, chatID string) ([]string, error)

	// IsParticipant reports whether userID currently participates in chatID.
	// A missing chat is (false, nil): non-participants and non-existent chats
	// are indistinguishable to the caller on purpose.
	IsParticipant(ctx context.Context, userID, chatID string) (bool, error)
}

// MessageStore is the message status/readBy mutation boundary.
//
// Requirements:
//   - AppendReader is an atomic set-add: concurrent acknowledgments for the
//     same message must not lose updates, and re-acknowledging is a no-op.
//   - SetStatus never regresses: a store-level monotonic guard, not caller
//     discipline, resolves races between concurrent advancers.
type MessageStore interface {
	// GetMessage returns the message row for id, or ErrNotFound.
	GetMessage(ctx context.Context, id string) (Message, error)

	// AppendReader atomically adds userID to the message's readBy set and
	// returns the updated set. ErrNotFound if the message is gone.
	AppendReader(ctx context.Context, messageID, userID string) ([]string, error)

	// SetStatus advances the message's status. Regressions are silently
	// ignored at the store level. ErrNotFound if the message is gone.
	SetStatus(ctx context.Context, messageID string, status Status) error
}
