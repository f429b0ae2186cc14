package relay

import (
	"context"
	"encoding/json"
	"testing"

	v1 "ripple/contracts/relay/v1"
)

type routerFixture struct {
	hub    *Hub
	store  *InMemoryStore
	router *SignalRouter
}

func newRouterFixture() *routerFixture {
	log := testLogger()
	hub := NewHub(log, nil)
	store := NewInMemoryStore()
	return &routerFixture{
		hub:    hub,
		store:  store,
		router: NewSignalRouter(log, hub, store, store),
	}
}

func (f *routerFixture) connect(connID, userID string) *Client {
	c := testClient(connID, userID, userID)
	f.hub.Register(c)
	f.hub.Subscribe(c.ID, UserTopic(userID))
	return c
}

func TestRouterTyping_ExclusiveAndCarriesIdentity(t *testing.T) {
	f := newRouterFixture()

	typist := NewClient("conn-a", "alice", "Alice", 16)
	peer := NewClient("conn-b", "bob", "Bob", 16)
	f.hub.Register(typist)
	f.hub.Register(peer)
	f.hub.Subscribe(typist.ID, ChatTopic("c1"))
	f.hub.Subscribe(peer.ID, ChatTopic("c1"))

	f.router.Typing(typist, "c1", true)

	env := recvEnvelope(t, peer)
	if env.Type != v1.TypeTyping {
		t.Fatalf("expected typing, got %q", env.Type)
	}
	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.UserID != "alice" || p.UserName != "Alice" || p.ChatID != "c1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	assertNoEnvelope(t, typist)

	f.router.Typing(typist, "c1", false)
	stop := recvEnvelope(t, peer)
	if stop.Type != v1.TypeStopTyping {
		t.Fatalf("expected stop_typing, got %q", stop.Type)
	}
	var sp v1.TypingPayload
	if err := json.Unmarshal(stop.Payload, &sp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sp.UserName != "" {
		t.Fatalf("stop_typing must not carry the display name, got %q", sp.UserName)
	}
}

func TestRouterReactionUpdated_InclusiveFullMessage(t *testing.T) {
	f := newRouterFixture()
	f.store.AddChat("c1", "alice", "bob")
	f.store.PutMessage(Message{
		ID: "m1", ChatID: "c1", SenderID: "alice", Content: "hey",
		Status:    StatusRead,
		Reactions: []Reaction{{UserID: "bob", Emoji: "thumbsup"}},
	})

	a := NewClient("conn-a", "alice", "Alice", 16)
	b := NewClient("conn-b", "bob", "Bob", 16)
	f.hub.Register(a)
	f.hub.Register(b)
	f.hub.Subscribe(a.ID, ChatTopic("c1"))
	f.hub.Subscribe(b.ID, ChatTopic("c1"))

	f.router.ReactionUpdated(context.Background(), "c1", "m1")

	for _, c := range []*Client{a, b} {
		env := recvEnvelope(t, c)
		if env.Type != v1.TypeReactionUpdated {
			t.Fatalf("expected reaction_updated, got %q", env.Type)
		}
		var msg v1.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.ID != "m1" || len(msg.Reactions) != 1 || msg.Reactions[0].Emoji != "thumbsup" {
			t.Fatalf("unexpected message payload: %+v", msg)
		}
	}
}

func TestRouterMessageDeleted_RequiresParticipation(t *testing.T) {
	f := newRouterFixture()
	f.store.AddChat("c1", "alice", "bob")
	f.store.PutMessage(Message{ID: "m1", ChatID: "c1", SenderID: "alice", Status: StatusSent})

	member := NewClient("conn-b", "bob", "Bob", 16)
	outsider := NewClient("conn-x", "mallory", "Mallory", 16)
	f.hub.Register(member)
	f.hub.Register(outsider)
	f.hub.Subscribe(member.ID, ChatTopic("c1"))

	f.router.MessageDeleted(context.Background(), outsider, "c1", "m1", v1.DeleteScopeEveryone)
	assertNoEnvelope(t, member)

	f.router.MessageDeleted(context.Background(), member, "c1", "m1", v1.DeleteScopeEveryone)
	env := recvEnvelope(t, member)
	if env.Type != v1.TypeMessageDeleted {
		t.Fatalf("expected message_deleted, got %q", env.Type)
	}
	var p v1.MessageDeletedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Scope != v1.DeleteScopeEveryone || p.Message == nil || p.Message.ID != "m1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestRouterCallSignaling_TargetsPersonalTopic(t *testing.T) {
	f := newRouterFixture()

	caller := f.connect("conn-a", "alice")
	callee := f.connect("conn-b", "bob")
	bystander := f.connect("conn-c", "carol")

	f.router.CallUser(caller, v1.CallUserPayload{
		TargetUserID: "bob",
		Signal:       json.RawMessage(`{"sdp":"offer"}`),
	})

	env := recvEnvelope(t, callee)
	if env.Type != v1.TypeCallReceived {
		t.Fatalf("expected call_received, got %q", env.Type)
	}
	var received v1.CallReceivedPayload
	if err := json.Unmarshal(env.Payload, &received); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Defaults fill in from the caller's connection identity.
	if received.From != "alice" || received.Name != "alice" || received.CallKind != v1.CallKindVideo {
		t.Fatalf("unexpected call_received payload: %+v", received)
	}
	assertNoEnvelope(t, bystander)

	f.router.AcceptCall(callee, v1.AcceptCallPayload{To: "alice", Signal: json.RawMessage(`{"sdp":"answer"}`)})
	if env := recvEnvelope(t, caller); env.Type != v1.TypeCallAccepted {
		t.Fatalf("expected call_accepted, got %q", env.Type)
	}

	f.router.RejectCall(callee, v1.RejectCallPayload{To: "alice"})
	env = recvEnvelope(t, caller)
	var rejected v1.CallRejectedPayload
	if err := json.Unmarshal(env.Payload, &rejected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rejected.From != "bob" {
		t.Fatalf("call_rejected from %q, want bob", rejected.From)
	}

	f.router.EndCall(caller, v1.EndCallPayload{To: "bob"})
	if env := recvEnvelope(t, callee); env.Type != v1.TypeCallEnded {
		t.Fatalf("expected call_ended, got %q", env.Type)
	}

	f.router.ICECandidate(caller, v1.ICECandidatePayload{To: "bob", Candidate: json.RawMessage(`{"candidate":"x"}`)})
	env = recvEnvelope(t, callee)
	if env.Type != v1.TypeICECandidate {
		t.Fatalf("expected ice_candidate, got %q", env.Type)
	}
	var ice v1.ICECandidatePayload
	if err := json.Unmarshal(env.Payload, &ice); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ice.From != "alice" || ice.To != "" {
		t.Fatalf("delivery must carry from, not to: %+v", ice)
	}
}

func TestRouterCallUser_OfflineTargetIsNoop(t *testing.T) {
	f := newRouterFixture()
	caller := f.connect("conn-a", "alice")

	f.router.CallUser(caller, v1.CallUserPayload{TargetUserID: "nobody"})

	assertNoEnvelope(t, caller)
}

func TestRouterCallUser_AudioKindPreserved(t *testing.T) {
	f := newRouterFixture()
	caller := f.connect("conn-a", "alice")
	callee := f.connect("conn-b", "bob")

	f.router.CallUser(caller, v1.CallUserPayload{TargetUserID: "bob", CallKind: v1.CallKindAudio})

	var p v1.CallReceivedPayload
	if err := json.Unmarshal(recvEnvelope(t, callee).Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.CallKind != v1.CallKindAudio {
		t.Fatalf("call kind %q, want audio", p.CallKind)
	}
}
