package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ripple/cmd/identity"
	"ripple/cmd/internal/auth/session"
	v1 "ripple/contracts/relay/v1"

	"github.com/coder/websocket"
)

type gatewayFixture struct {
	gw     *WSGateway
	store  *InMemoryStore
	users  *identity.InMemoryStore
	tokens session.AccessTokenManager
	srv    *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	t.Setenv("RIPPLE_WS_ORIGIN_REQUIRED", "false")

	log := testLogger()

	cfg := session.DefaultConfig()
	cfg.PasetoV4SecretKeyHex = session.NewEphemeralSecretKeyHex()
	tokens, err := session.NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}

	users := identity.NewInMemoryStore()
	authn := session.NewAuthenticator(log, tokens, users)

	store := NewInMemoryStore()
	gw := NewWSGateway(log, authn, users, NewHub(log, nil), NewPresenceTracker(), store, store, nil)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &gatewayFixture{gw: gw, store: store, users: users, tokens: tokens, srv: srv}
}

func (f *gatewayFixture) addUser(t *testing.T, id, name string) string {
	t.Helper()
	f.users.Put(identity.User{ID: id, Name: name})
	token, _, err := f.tokens.Issue(id, time.Now().UTC())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func dialWS(t *testing.T, baseHTTPURL, bearerToken string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	h := http.Header{}
	if strings.TrimSpace(bearerToken) != "" {
		h.Set("Authorization", "Bearer "+bearerToken)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
		HTTPHeader:   h,
	})
}

func writeEnvelopeWS(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	env := envelopeOf(typ, payload, time.Now().UTC())
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) v1.Envelope {
	t.Helper()
	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read waiting for %q: %v", typ, err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("did not receive envelope type %q", typ)
	return v1.Envelope{}
}

func TestWSGateway_MissingTokenRejected(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := dialWS(t, f.srv.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestWSGateway_GarbageTokenRejected(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := dialWS(t, f.srv.URL, "not-a-valid-token")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestWSGateway_UnknownUserRejected(t *testing.T) {
	f := newGatewayFixture(t)

	// Valid signature, but no user row behind it.
	token, _, err := f.tokens.Issue("deleted-user", time.Now().UTC())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	_, resp, dialErr := dialWS(t, f.srv.URL, token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if dialErr == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, resp)
	}
}

func TestWSGateway_MessageFlowEndToEnd(t *testing.T) {
	f := newGatewayFixture(t)

	aliceToken := f.addUser(t, "alice", "Alice")
	bobToken := f.addUser(t, "bob", "Bob")

	f.store.AddChat("c1", "alice", "bob")
	f.store.PutMessage(Message{ID: "m1", ChatID: "c1", SenderID: "alice", Content: "hello", Status: StatusSent})

	bobConn, resp, err := dialWS(t, f.srv.URL, bobToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("bob dial: %v", err)
	}
	defer func() { _ = bobConn.Close(websocket.StatusNormalClosure, "bye") }()

	aliceConn, resp, err := dialWS(t, f.srv.URL, aliceToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("alice dial: %v", err)
	}
	defer func() { _ = aliceConn.Close(websocket.StatusNormalClosure, "bye") }()

	// Bob connected first and observes alice's presence transition.
	readUntilType(t, bobConn, v1.TypeUserOnline, 4)

	// Alice forwards the persisted message; chat topics were seeded at
	// connect, so no explicit join is needed.
	writeEnvelopeWS(t, aliceConn, v1.TypeSendMessage, v1.SendMessagePayload{ChatID: "c1", MessageID: "m1"})

	recv := readUntilType(t, bobConn, v1.TypeReceiveMessage, 6)
	var msg v1.Message
	if err := json.Unmarshal(recv.Payload, &msg); err != nil {
		t.Fatalf("decode receive_message: %v", err)
	}
	if msg.ID != "m1" || msg.Status != v1.StatusDelivered {
		t.Fatalf("unexpected message: id=%q status=%q", msg.ID, msg.Status)
	}

	// The sender observes delivered through the inclusive status broadcast.
	statusEnv := readUntilType(t, aliceConn, v1.TypeMessageStatus, 6)
	var sp v1.MessageStatusPayload
	if err := json.Unmarshal(statusEnv.Payload, &sp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if sp.MessageID != "m1" || sp.Status != v1.StatusDelivered {
		t.Fatalf("unexpected status payload: %+v", sp)
	}

	// Bob acknowledges; alice converges on read.
	writeEnvelopeWS(t, bobConn, v1.TypeMessageRead, v1.MessageReadPayload{ChatID: "c1", MessageID: "m1"})

	for {
		env := readUntilType(t, aliceConn, v1.TypeMessageStatus, 6)
		var p v1.MessageStatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if p.Status == v1.StatusRead {
			if len(p.ReadBy) != 1 || p.ReadBy[0] != "bob" {
				t.Fatalf("unexpected readBy: %v", p.ReadBy)
			}
			break
		}
	}
}

func TestWSGateway_DisconnectEmitsPresenceTeardown(t *testing.T) {
	f := newGatewayFixture(t)

	aliceToken := f.addUser(t, "alice", "Alice")
	bobToken := f.addUser(t, "bob", "Bob")

	aliceConn, resp, err := dialWS(t, f.srv.URL, aliceToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("alice dial: %v", err)
	}
	defer func() { _ = aliceConn.Close(websocket.StatusNormalClosure, "bye") }()

	bobConn, resp, err := dialWS(t, f.srv.URL, bobToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("bob dial: %v", err)
	}

	readUntilType(t, aliceConn, v1.TypeUserOnline, 4)

	_ = bobConn.Close(websocket.StatusNormalClosure, "bye")

	// Mid-call notice first, then the offline transition.
	lost := readUntilType(t, aliceConn, v1.TypeCallPartnerLost, 6)
	var lp v1.CallPartnerLostPayload
	if err := json.Unmarshal(lost.Payload, &lp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lp.UserID != "bob" {
		t.Fatalf("partner lost for %q, want bob", lp.UserID)
	}

	off := readUntilType(t, aliceConn, v1.TypeUserOffline, 6)
	var op v1.PresencePayload
	if err := json.Unmarshal(off.Payload, &op); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if op.UserID != "bob" {
		t.Fatalf("offline for %q, want bob", op.UserID)
	}

	// Durable presence was written on the 1->0 edge.
	u, err := f.users.GetUser(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.IsOnline {
		t.Fatalf("expected bob offline in the identity store")
	}
}

func TestWSGateway_SecondTabKeepsUserOnline(t *testing.T) {
	f := newGatewayFixture(t)

	aliceToken := f.addUser(t, "alice", "Alice")
	watcherToken := f.addUser(t, "watcher", "Watcher")

	watcher, resp, err := dialWS(t, f.srv.URL, watcherToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("watcher dial: %v", err)
	}
	defer func() { _ = watcher.Close(websocket.StatusNormalClosure, "bye") }()

	tab1, resp, err := dialWS(t, f.srv.URL, aliceToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("tab1 dial: %v", err)
	}
	defer func() { _ = tab1.Close(websocket.StatusNormalClosure, "bye") }()

	readUntilType(t, watcher, v1.TypeUserOnline, 4)

	tab2, resp, err := dialWS(t, f.srv.URL, aliceToken)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("tab2 dial: %v", err)
	}
	defer func() { _ = tab2.Close(websocket.StatusNormalClosure, "bye") }()

	// Closing one of two tabs: the watcher sees the mid-call notice but no
	// user_offline, because alice still has a live connection.
	_ = tab2.Close(websocket.StatusNormalClosure, "bye")
	readUntilType(t, watcher, v1.TypeCallPartnerLost, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, b, err := watcher.Read(ctx)
	if err == nil {
		var env v1.Envelope
		if jsonErr := json.Unmarshal(b, &env); jsonErr == nil && env.Type == v1.TypeUserOffline {
			t.Fatalf("user_offline broadcast while a connection is still live")
		}
	}
}

func TestWSGateway_ServerOnlyTypeRejected(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.addUser(t, "alice", "Alice")

	conn, resp, err := dialWS(t, f.srv.URL, token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	writeEnvelopeWS(t, conn, v1.TypeUserOnline, v1.PresencePayload{UserID: "alice"})

	errEnv := readUntilType(t, conn, v1.TypeError, 4)
	var p v1.ErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if p.Code != "server_event" {
		t.Fatalf("error code %q, want server_event", p.Code)
	}
}

func TestWSGateway_RateLimitCloses(t *testing.T) {
	t.Setenv("RIPPLE_WS_RATE_EVENTS", "3")
	t.Setenv("RIPPLE_WS_RATE_WINDOW", "10s")

	f := newGatewayFixture(t)
	token := f.addUser(t, "alice", "Alice")

	conn, resp, err := dialWS(t, f.srv.URL, token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	for i := 0; i < 6; i++ {
		env := envelopeOf(v1.TypeTyping, v1.TypingPayload{ChatID: "c1"}, time.Now().UTC())
		b, _ := json.Marshal(env)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		writeErr := conn.Write(ctx, websocket.MessageText, b)
		cancel()
		if writeErr != nil {
			// Server already closed us for flooding.
			return
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, b, readErr := conn.Read(ctx)
		cancel()
		if readErr != nil {
			return // closed, as expected
		}
		var env v1.Envelope
		if jsonErr := json.Unmarshal(b, &env); jsonErr == nil && env.Type == v1.TypeError {
			var p v1.ErrorPayload
			if jsonErr := json.Unmarshal(env.Payload, &p); jsonErr == nil && p.Code == "rate_limited" {
				return
			}
		}
	}
	t.Fatalf("expected rate limit rejection or close")
}

func TestWSGateway_JoinRoomUnauthorizedSilentDrop(t *testing.T) {
	hub := testHub()
	store := NewInMemoryStore()
	store.AddChat("c1", "alice", "bob")

	gw := NewWSGateway(testLogger(), nil, nil, hub, nil, store, store, nil)

	mallory := testClient("conn-m", "mallory", "Mallory")
	hub.Register(mallory)

	// Not a participant of c1: membership must stay unchanged and no error
	// payload may confirm the chat exists.
	gw.onJoinRoom(context.Background(), mallory, "c1")
	if topics := hub.TopicsOf(mallory.ID); len(topics) != 0 {
		t.Fatalf("non-participant join changed membership: %v", topics)
	}
	assertNoEnvelope(t, mallory)

	// Unknown chat id: same silent drop.
	gw.onJoinRoom(context.Background(), mallory, "no-such-chat")
	if topics := hub.TopicsOf(mallory.ID); len(topics) != 0 {
		t.Fatalf("unknown-chat join changed membership: %v", topics)
	}
	assertNoEnvelope(t, mallory)

	// A participant with the same payload does subscribe.
	alice := testClient("conn-a", "alice", "Alice")
	hub.Register(alice)
	gw.onJoinRoom(context.Background(), alice, "c1")
	if topics := hub.TopicsOf(alice.ID); len(topics) != 1 || topics[0] != ChatTopic("c1") {
		t.Fatalf("participant join: got %v", topics)
	}
}
