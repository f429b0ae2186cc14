package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// InMemoryStore is a dev/test implementation of ChatStore and MessageStore.
// It honors the same concurrency contract as the durable store: AppendReader
// is an atomic set-add and SetStatus never regresses.
type InMemoryStore struct {
	mu       sync.Mutex
	chats    map[string][]string // chat id -> participant user ids
	messages map[string]*Message // message id -> message
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chats:    make(map[string][]string),
		messages: make(map[string]*Message),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// AddChat registers a chat with its participants (seed helper).
func (s *InMemoryStore) AddChat(chatID string, participantIDs ...string) {
	if chatID == "" {
		return
	}
	s.mu.Lock()
	s.chats[chatID] = append([]string(nil), participantIDs...)
	s.mu.Unlock()
}

// PutMessage stores or replaces a message row (seed helper).
func (s *InMemoryStore) PutMessage(msg Message) {
	if msg.ID == "" {
		return
	}
	if msg.Status == "" {
		msg.Status = StatusSent
	}
	s.mu.Lock()
	cp := msg
	cp.ReadBy = append([]string(nil), msg.ReadBy...)
	s.messages[msg.ID] = &cp
	s.mu.Unlock()
}

// RemoveMessage deletes a message row (seed helper for race tests).
func (s *InMemoryStore) RemoveMessage(messageID string) {
	s.mu.Lock()
	delete(s.messages, messageID)
	s.mu.Unlock()
}

// ---- ChatStore ----

func (s *InMemoryStore) ChatsFor(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, errors.New("missing user id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var out []string
	for chatID, members := range s.chats {
		for _, m := range members {
			if m == userID {
				out = append(out, chatID)
				break
			}
		}
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) Participants(ctx context.Context, chatID string) ([]string, error) {
	if chatID == "" {
		return nil, errors.New("missing chat id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), members...), nil
}

func (s *InMemoryStore) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	if userID == "" || chatID == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.chats[chatID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

// ---- MessageStore ----

func (s *InMemoryStore) GetMessage(ctx context.Context, id string) (Message, error) {
	if id == "" {
		return Message{}, errors.New("missing message id")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}

	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	cp.Reactions = append([]Reaction(nil), m.Reactions...)
	cp.StarredBy = append([]string(nil), m.StarredBy...)
	return cp, nil
}

func (s *InMemoryStore) AppendReader(ctx context.Context, messageID, userID string) ([]string, error) {
	if messageID == "" || userID == "" {
		return nil, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}

	for _, r := range m.ReadBy {
		if r == userID {
			return append([]string(nil), m.ReadBy...), nil
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return append([]string(nil), m.ReadBy...), nil
}

func (s *InMemoryStore) SetStatus(ctx context.Context, messageID string, status Status) error {
	if messageID == "" || status.rank() < 0 {
		return errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return ErrNotFound
	}

	// Monotonic guard: concurrent advancers may race, regressions are dropped here.
	if m.Status.Advances(status) {
		m.Status = status
	}
	return nil
}
