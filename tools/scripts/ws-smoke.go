// Package main provides a CI-friendly WebSocket smoke test for the Ripple relay.
//
// It validates, against a running server seeded with one direct chat and one
// persisted message:
//   - handshake + subprotocol selection + bearer auth
//   - presence fanout (user_online / user_offline)
//   - typing indicator round trip
//   - send -> receive_message fanout -> delivered status
//   - read ack -> read status convergence with read_by
//   - call signaling (call_user / accept_call / end_call)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "ripple/contracts/relay/v1"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "ripple.relay.v1"
	maxReadBytes = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		tokenA  = flag.String("token-a", os.Getenv("RIPPLE_SMOKE_TOKEN_A"), "Bearer token for user A (the sender)")
		tokenB  = flag.String("token-b", os.Getenv("RIPPLE_SMOKE_TOKEN_B"), "Bearer token for user B (the recipient)")
		chatID  = flag.String("chat", "", "Seeded direct chat ID shared by A and B")
		msgID   = flag.String("message", "", "Seeded message ID in that chat, sent by A, status sent")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if strings.TrimSpace(*tokenA) == "" || strings.TrimSpace(*tokenB) == "" {
		fatalf("both -token-a and -token-b are required")
	}
	if strings.TrimSpace(*chatID) == "" || strings.TrimSpace(*msgID) == "" {
		fatalf("both -chat and -message are required")
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *tokenA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *tokenB, *timeout)
	defer closeWS(b.conn)

	// A connected first, so B's arrival is the first presence event A sees.
	userB := mustObservePresence(root, a, v1.TypeUserOnline, *timeout)
	if *verbose {
		fmt.Printf("connected: origin=%q user_b=%s\n", *origin, userB)
	}

	mustJoin(root, a, *chatID, *timeout)
	mustJoin(root, b, *chatID, *timeout)

	userA := mustTypingRoundTrip(root, a, b, *chatID, *timeout)
	if *verbose {
		fmt.Printf("typing ok: user_a=%s\n", userA)
	}

	mustSendAndAssertDelivered(root, a, b, *chatID, *msgID, *timeout)
	mustReadAndAssertConverged(root, a, b, *chatID, *msgID, userB, *timeout)

	mustCallRoundTrip(root, a, b, userA, userB, *timeout)

	closeWS(b.conn)
	mustObservePresenceFor(root, a, v1.TypeUserOffline, userB, *timeout)

	fmt.Printf("OK: chat_id=%s message_id=%s user_a=%s user_b=%s\n", *chatID, *msgID, userA, userB)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Authorization", "Bearer "+strings.TrimSpace(token))

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, subprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustObservePresence(parent context.Context, c *smokeClient, wantType string, stepTimeout time.Duration) string {
	env := c.mustReadUntilType(parent, wantType, stepTimeout, nil)

	var p v1.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal %s payload (%s): %v", wantType, c.name, err)
	}
	if strings.TrimSpace(p.UserID) == "" {
		fatalf("%s missing user_id (%s)", wantType, c.name)
	}
	return p.UserID
}

func mustObservePresenceFor(parent context.Context, c *smokeClient, wantType, wantUserID string, stepTimeout time.Duration) {
	// A dropped connection also emits user_disconnected_from_call; skip it.
	skip := map[string]struct{}{v1.TypeCallPartnerLost: {}}
	env := c.mustReadUntilType(parent, wantType, stepTimeout, skip)

	var p v1.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal %s payload (%s): %v", wantType, c.name, err)
	}
	if p.UserID != wantUserID {
		fatalf("%s user_id mismatch (%s): got=%q want=%q", wantType, c.name, p.UserID, wantUserID)
	}
}

func mustJoin(parent context.Context, c *smokeClient, chatID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeJoinRoom,
		ID:      fmt.Sprintf("%s-join", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.JoinRoomPayload{ChatID: chatID}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

// mustTypingRoundTrip sends typing then stop_typing from a and asserts that b
// observes both with a's identity attached. Returns a's user id as learned
// from the broadcast.
func mustTypingRoundTrip(parent context.Context, a, b *smokeClient, chatID string, stepTimeout time.Duration) string {
	start := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeTyping,
		ID:      fmt.Sprintf("%s-typing", a.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.TypingPayload{ChatID: chatID}),
	}
	mustWriteWithTimeout(parent, a.conn, start, stepTimeout)

	env := b.mustReadUntilType(parent, v1.TypeTyping, stepTimeout, nil)
	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal typing payload (%s): %v", b.name, err)
	}
	if p.ChatID != chatID {
		fatalf("typing chat_id mismatch (%s): got=%q want=%q", b.name, p.ChatID, chatID)
	}
	if strings.TrimSpace(p.UserID) == "" {
		fatalf("typing broadcast missing user_id (%s)", b.name)
	}

	stop := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeStopTyping,
		ID:      fmt.Sprintf("%s-stop-typing", a.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.TypingPayload{ChatID: chatID}),
	}
	mustWriteWithTimeout(parent, a.conn, stop, stepTimeout)

	b.mustReadUntilType(parent, v1.TypeStopTyping, stepTimeout, nil)
	return p.UserID
}

func mustSendAndAssertDelivered(parent context.Context, a, b *smokeClient, chatID, msgID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeSendMessage,
		ID:      fmt.Sprintf("%s-send", a.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.SendMessagePayload{ChatID: chatID, MessageID: msgID}),
	}
	mustWriteWithTimeout(parent, a.conn, env, stepTimeout)

	recv := b.mustReadUntilType(parent, v1.TypeReceiveMessage, stepTimeout, nil)
	var m v1.Message
	if err := json.Unmarshal(recv.Payload, &m); err != nil {
		fatalf("unmarshal receive_message payload (%s): %v", b.name, err)
	}
	if m.ID != msgID {
		fatalf("receive_message id mismatch (%s): got=%q want=%q", b.name, m.ID, msgID)
	}
	if m.ChatID != chatID {
		fatalf("receive_message chat_id mismatch (%s): got=%q want=%q", b.name, m.ChatID, chatID)
	}
	if m.Status != v1.StatusDelivered {
		fatalf("receive_message status (%s): got=%q want=%q", b.name, m.Status, v1.StatusDelivered)
	}

	status := a.mustReadUntilType(parent, v1.TypeMessageStatus, stepTimeout, nil)
	var sp v1.MessageStatusPayload
	if err := json.Unmarshal(status.Payload, &sp); err != nil {
		fatalf("unmarshal message_status_update payload (%s): %v", a.name, err)
	}
	if sp.MessageID != msgID {
		fatalf("status message_id mismatch (%s): got=%q want=%q", a.name, sp.MessageID, msgID)
	}
	if sp.Status != v1.StatusDelivered {
		fatalf("status (%s): got=%q want=%q", a.name, sp.Status, v1.StatusDelivered)
	}
}

func mustReadAndAssertConverged(parent context.Context, a, b *smokeClient, chatID, msgID, userB string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeMessageRead,
		ID:      fmt.Sprintf("%s-read", b.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.MessageReadPayload{ChatID: chatID, MessageID: msgID}),
	}
	mustWriteWithTimeout(parent, b.conn, env, stepTimeout)

	// B's own status echo may arrive too; assert on A's copy.
	status := a.mustReadUntilType(parent, v1.TypeMessageStatus, stepTimeout, nil)
	var sp v1.MessageStatusPayload
	if err := json.Unmarshal(status.Payload, &sp); err != nil {
		fatalf("unmarshal message_status_update payload (%s): %v", a.name, err)
	}
	if sp.MessageID != msgID {
		fatalf("read status message_id mismatch (%s): got=%q want=%q", a.name, sp.MessageID, msgID)
	}
	if sp.Status != v1.StatusRead {
		fatalf("read status (%s): got=%q want=%q", a.name, sp.Status, v1.StatusRead)
	}
	found := false
	for _, u := range sp.ReadBy {
		if u == userB {
			found = true
			break
		}
	}
	if !found {
		fatalf("read status read_by missing %q (%s): %v", userB, a.name, sp.ReadBy)
	}
}

func mustCallRoundTrip(parent context.Context, a, b *smokeClient, userA, userB string, stepTimeout time.Duration) {
	call := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeCallUser,
		ID:   fmt.Sprintf("%s-call", a.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.CallUserPayload{
			TargetUserID: userB,
			Signal:       json.RawMessage(`{"sdp":"smoke-offer"}`),
		}),
	}
	mustWriteWithTimeout(parent, a.conn, call, stepTimeout)

	received := b.mustReadUntilType(parent, v1.TypeCallReceived, stepTimeout, nil)
	var rp v1.CallReceivedPayload
	if err := json.Unmarshal(received.Payload, &rp); err != nil {
		fatalf("unmarshal call_received payload (%s): %v", b.name, err)
	}
	if rp.From != userA {
		fatalf("call_received from mismatch (%s): got=%q want=%q", b.name, rp.From, userA)
	}
	if rp.CallKind != v1.CallKindVideo {
		fatalf("call_received default kind (%s): got=%q want=%q", b.name, rp.CallKind, v1.CallKindVideo)
	}

	accept := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeAcceptCall,
		ID:   fmt.Sprintf("%s-accept", b.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.AcceptCallPayload{
			To:     rp.From,
			Signal: json.RawMessage(`{"sdp":"smoke-answer"}`),
		}),
	}
	mustWriteWithTimeout(parent, b.conn, accept, stepTimeout)

	accepted := a.mustReadUntilType(parent, v1.TypeCallAccepted, stepTimeout, nil)
	var ap v1.CallAcceptedPayload
	if err := json.Unmarshal(accepted.Payload, &ap); err != nil {
		fatalf("unmarshal call_accepted payload (%s): %v", a.name, err)
	}
	if ap.From != userB {
		fatalf("call_accepted from mismatch (%s): got=%q want=%q", a.name, ap.From, userB)
	}

	end := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeEndCall,
		ID:      fmt.Sprintf("%s-end", a.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.EndCallPayload{To: userB}),
	}
	mustWriteWithTimeout(parent, a.conn, end, stepTimeout)

	ended := b.mustReadUntilType(parent, v1.TypeCallEnded, stepTimeout, nil)
	var ep v1.CallEndedPayload
	if err := json.Unmarshal(ended.Payload, &ep); err != nil {
		fatalf("unmarshal call_ended payload (%s): %v", b.name, err)
	}
	if ep.From != userA {
		fatalf("call_ended from mismatch (%s): got=%q want=%q", b.name, ep.From, userA)
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			// Presence and status chatter from other clients is expected
			// on a shared dev server; ignore everything that is not an
			// error and not the awaited type.
			continue
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
