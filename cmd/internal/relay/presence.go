package relay

import (
	"sort"
	"sync"
)

// PresenceTracker maintains the set of users with at least one live connection.
//
// Presence is a reference count, not a boolean: a user with two tabs open
// stays online when one tab closes. The externally visible transitions are
// 0->1 (MarkOnline returns first=true) and 1->0 (MarkOffline returns
// last=true); the gateway owns the broadcasts and durable writes those
// transitions trigger, keeping this type a pure counter.
type PresenceTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewPresenceTracker constructs an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{counts: make(map[string]int)}
}

// MarkOnline records one new connection for userID. Called exactly once per
// connection created. Returns true on the 0->1 transition.
func (p *PresenceTracker) MarkOnline(userID string) (first bool) {
	if p == nil || userID == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[userID]++
	return p.counts[userID] == 1
}

// MarkOffline records one closed connection for userID. Returns true on the
// 1->0 transition. Calls without a matching MarkOnline are ignored.
func (p *PresenceTracker) MarkOffline(userID string) (last bool) {
	if p == nil || userID == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.counts[userID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(p.counts, userID)
		return true
	}
	p.counts[userID] = n - 1
	return false
}

// IsOnline reports whether userID has at least one live connection.
func (p *PresenceTracker) IsOnline(userID string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID] > 0
}

// OnlineUserIDs returns a sorted snapshot of all online user ids.
func (p *PresenceTracker) OnlineUserIDs() []string {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	out := make([]string, 0, len(p.counts))
	for id := range p.counts {
		out = append(out, id)
	}
	p.mu.Unlock()

	sort.Strings(out)
	return out
}
