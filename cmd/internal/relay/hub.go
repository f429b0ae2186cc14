package relay

import (
	"log/slog"
	"sort"
	"sync"

	v1 "ripple/contracts/relay/v1"
)

// Hub owns the live connection registry and topic membership maps.
//
// Ownership: only the connection lifecycle (gateway) registers/unregisters
// connections; topics exist implicitly from the first subscription and are
// garbage-collected when their last member leaves. Nothing outside this
// package mutates these maps.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	topics map[string]*Topic
	conns  map[string]*Client             // connection id -> client
	subs   map[string]map[string]struct{} // connection id -> topic ids
}

// NewHub constructs a Hub instance. metrics may be nil.
func NewHub(log *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: metrics,
		topics:  make(map[string]*Topic),
		conns:   make(map[string]*Client),
		subs:    make(map[string]map[string]struct{}),
	}
}

// Register adds a connection to the registry. It must be called exactly once
// per authenticated connection, before any Subscribe.
func (h *Hub) Register(client *Client) {
	if h == nil || client == nil || client.ID == "" {
		return
	}

	h.mu.Lock()
	h.conns[client.ID] = client
	h.subs[client.ID] = make(map[string]struct{})
	h.mu.Unlock()

	h.log.Info("hub.conn.register", "conn_id", client.ID, "user_id", client.UserID)
}

// Unregister drops a connection and all of its subscriptions as a unit,
// so no dangling membership survives a disconnect. Idempotent.
func (h *Hub) Unregister(connID string) {
	if h == nil || connID == "" {
		return
	}

	h.mu.Lock()
	client := h.conns[connID]
	delete(h.conns, connID)

	topicIDs := h.subs[connID]
	delete(h.subs, connID)

	for id := range topicIDs {
		if t := h.topics[id]; t != nil {
			t.Leave(connID)
			if t.Empty() {
				delete(h.topics, id)
			}
		}
	}
	h.mu.Unlock()

	if client != nil {
		h.log.Info("hub.conn.unregister", "conn_id", connID, "user_id", client.UserID, "topics", len(topicIDs))
	}
}

// Subscribe adds a connection to a topic, creating the topic on first use.
// Unregistered connections are ignored (the connection raced its own close).
func (h *Hub) Subscribe(connID, topicID string) {
	if h == nil || connID == "" || topicID == "" {
		return
	}

	h.mu.Lock()
	client, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}

	t := h.topics[topicID]
	if t == nil {
		t = NewTopic(topicID)
		h.topics[topicID] = t
	}
	t.Join(client)
	h.subs[connID][topicID] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("hub.topic.join", "topic_id", topicID, "conn_id", connID)
}

// Unsubscribe removes a connection from a topic. Always unconditional:
// a connection may leave any room it is in.
func (h *Hub) Unsubscribe(connID, topicID string) {
	if h == nil || connID == "" || topicID == "" {
		return
	}

	h.mu.Lock()
	if t := h.topics[topicID]; t != nil {
		t.Leave(connID)
		if t.Empty() {
			delete(h.topics, topicID)
		}
	}
	if s := h.subs[connID]; s != nil {
		delete(s, topicID)
	}
	h.mu.Unlock()

	h.log.Debug("hub.topic.leave", "topic_id", topicID, "conn_id", connID)
}

// MembersOf returns a sorted snapshot of connection ids subscribed to topicID.
func (h *Hub) MembersOf(topicID string) []string {
	t := h.topic(topicID)
	if t == nil {
		return nil
	}
	out := t.MemberConnIDs()
	sort.Strings(out)
	return out
}

// TopicsOf returns a sorted snapshot of topic ids connID is subscribed to.
func (h *Hub) TopicsOf(connID string) []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	s := h.subs[connID]
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	h.mu.RUnlock()

	sort.Strings(out)
	return out
}

// TopicHasOtherUser reports whether topicID has a live member owned by a user
// other than userID.
func (h *Hub) TopicHasOtherUser(topicID, userID string) bool {
	return h.topic(topicID).HasOtherUser(userID)
}

// BroadcastTopic fans out env to topicID members, excluding exceptConnID
// ("" = inclusive mode). A missing topic delivers to no one; ephemeral
// signals are at-most-once by contract, so that is not an error.
func (h *Hub) BroadcastTopic(topicID string, env v1.Envelope, exceptConnID string) {
	delivered, dropped := h.topic(topicID).Broadcast(env, exceptConnID)
	h.metrics.RecordBroadcast(env.Type, delivered, dropped)
	if dropped > 0 {
		h.log.Warn("hub.broadcast.dropped", "topic_id", topicID, "type", env.Type, "dropped", dropped)
	}
}

// BroadcastUser delivers env to every connection of userID via its personal topic.
func (h *Hub) BroadcastUser(userID string, env v1.Envelope) {
	h.BroadcastTopic(UserTopic(userID), env, "")
}

// BroadcastAll fans out env to every registered connection except exceptConnID.
// Used for the global presence and profile notifications.
func (h *Hub) BroadcastAll(env v1.Envelope, exceptConnID string) {
	if h == nil {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.conns))
	for id, c := range h.conns {
		if c != nil && id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, c := range targets {
		select {
		case <-c.Done():
			continue
		default:
		}
		select {
		case c.Send <- env:
			delivered++
		default:
			dropped++
		}
	}

	h.metrics.RecordBroadcast(env.Type, delivered, dropped)
	if dropped > 0 {
		h.log.Warn("hub.broadcast_all.dropped", "type", env.Type, "dropped", dropped)
	}
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) topic(topicID string) *Topic {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.topics[topicID]
}
