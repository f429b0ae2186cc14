package relay

import (
	"strings"
	"sync"

	v1 "ripple/contracts/relay/v1"
)

// Topic id prefixes. A topic is just a broadcast address; the two kinds share
// one namespace so a chat id can never collide with a user id.
const (
	chatTopicPrefix = "chat:"
	userTopicPrefix = "user:"
)

// ChatTopic returns the topic id for a chat.
func ChatTopic(chatID string) string { return chatTopicPrefix + chatID }

// UserTopic returns the personal topic id for a user. Every connection of
// that user subscribes to it; it is the address for direct notifications
// (call signaling, avatar updates) independent of any chat.
func UserTopic(userID string) string { return userTopicPrefix + userID }

// IsChatTopic reports whether topicID addresses a chat and returns the chat id.
func IsChatTopic(topicID string) (string, bool) {
	id, ok := strings.CutPrefix(topicID, chatTopicPrefix)
	return id, ok && id != ""
}

// Topic is an in-memory membership + broadcast fanout primitive.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Topic struct {
	ID string

	mu      sync.RWMutex
	members map[string]*Client // connection id -> client
}

// NewTopic constructs an empty topic.
func NewTopic(id string) *Topic {
	return &Topic{
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join adds a client to membership.
func (t *Topic) Join(client *Client) {
	if t == nil || client == nil || client.ID == "" {
		return
	}
	t.mu.Lock()
	t.members[client.ID] = client
	t.mu.Unlock()
}

// Leave removes a connection from membership.
func (t *Topic) Leave(connID string) {
	if t == nil || connID == "" {
		return
	}
	t.mu.Lock()
	delete(t.members, connID)
	t.mu.Unlock()
}

// Empty reports whether the topic has no members left.
func (t *Topic) Empty() bool {
	if t == nil {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members) == 0
}

// MemberConnIDs returns a snapshot of member connection ids.
func (t *Topic) MemberConnIDs() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.members))
	for id := range t.members {
		out = append(out, id)
	}
	return out
}

// HasOtherUser reports whether any member belongs to a user other than userID.
// Drives the sent -> delivered transition: a message counts as handed over
// only when another participant has a live connection in the topic.
func (t *Topic) HasOtherUser(userID string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, m := range t.members {
		if m != nil && m.UserID != userID {
			return true
		}
	}
	return false
}

// Broadcast fans out an envelope to all members except the connection
// identified by exceptConnID ("" delivers to everyone, the inclusive mode).
// Non-blocking: if a member queue is full or the client is shutting down,
// that member is skipped. Returns delivered and dropped counts.
func (t *Topic) Broadcast(env v1.Envelope, exceptConnID string) (delivered, dropped int) {
	if t == nil {
		return 0, 0
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for id, m := range t.members {
		if m == nil || id == exceptConnID {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- env:
			delivered++
		default:
			// Drop rather than block the whole topic.
			dropped++
		}
	}
	return delivered, dropped
}
