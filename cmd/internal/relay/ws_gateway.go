package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"ripple/cmd/identity"
	"ripple/cmd/internal/auth/session"
	v1 "ripple/contracts/relay/v1"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "ripple.relay.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSGateway is the WebSocket entrypoint for the relay.
//
// It enforces origin policy, connection-time authentication, subprotocol
// selection, rate limits, and heartbeats, then routes validated envelopes to
// the status coordinator and signal router. Every connection is bound to
// exactly one authenticated user for its whole lifetime.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	presence *PresenceTracker
	auth     *session.Authenticator
	users    identity.Store
	chats    ChatStore
	status   *StatusCoordinator
	router   *SignalRouter
	metrics  *Metrics

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway with secure defaults. hub, presence,
// chats, messages, and metrics may be nil; nil stores fall back to in-memory
// implementations for dev. auth must be non-nil for any connection to be
// admitted; users may be nil (presence is then not persisted).
func NewWSGateway(
	log *slog.Logger,
	auth *session.Authenticator,
	users identity.Store,
	hub *Hub,
	presence *PresenceTracker,
	chats ChatStore,
	messages MessageStore,
	metrics *Metrics,
) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log, metrics)
	}
	if presence == nil {
		presence = NewPresenceTracker()
	}
	if chats == nil || messages == nil {
		mem := NewInMemoryStore()
		if chats == nil {
			chats = mem
		}
		if messages == nil {
			messages = mem
		}
	}

	g := &WSGateway{
		log:      log,
		hub:      hub,
		presence: presence,
		auth:     auth,
		users:    users,
		chats:    chats,
		status:   NewStatusCoordinator(log, hub, chats, messages, metrics),
		router:   NewSignalRouter(log, hub, chats, messages),
		metrics:  metrics,
	}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("RIPPLE_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("RIPPLE_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("RIPPLE_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("RIPPLE_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("RIPPLE_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("RIPPLE_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("RIPPLE_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("RIPPLE_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("RIPPLE_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("RIPPLE_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// Broadcaster returns the bridge REST handlers use to push notifications into
// the relay. The same hub and chat store back both paths.
func (g *WSGateway) Broadcaster() Broadcaster {
	return NewRESTBridge(g.log, g.hub, g.chats)
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates an HTTP request, upgrades it to a WebSocket session,
// and runs the relay loop. Authentication failures are rejected before the
// upgrade: a failed connection leaves no presence, membership, or broadcast
// side effects.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	who, err := g.auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		if session.IsRejection(err) {
			reason := authRejectReason(err)
			g.log.Info("ws.reject.auth", "reason", reason, "remote", r.RemoteAddr)
			g.metrics.RecordAuthReject(reason)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		g.log.Error("ws.auth.fail", "err", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocolV1},

		// Authorize allowed origin hosts (e.g. localhost) for cross-origin requests.
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID, err := NewConnectionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "id generation failed")
		return
	}
	client := NewClient(connID, who.UserID, who.DisplayName, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.activate(ctx, client)

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Teardown order matters: the mid-call notice goes out while the
	// connection is still registered, then registration and all topic
	// memberships drop as a unit, then presence decrements.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.deactivate(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.metrics.RecordRateLimited()
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}
		if !v1.ClientAllowed(env.Type) {
			g.trySendError(ctx, client, "server_event", fmt.Sprintf("not a client event: %s", env.Type))
			continue readLoop
		}

		g.dispatch(ctx, client, env)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// activate registers the connection and brings up its standing state: the
// presence increment (with durable write and global broadcast on the 0->1
// edge), the personal topic, and seeded chat-topic subscriptions.
func (g *WSGateway) activate(ctx context.Context, client *Client) {
	g.hub.Register(client)
	g.metrics.ConnOpened()

	if first := g.presence.MarkOnline(client.UserID); first {
		now := time.Now().UTC()
		if g.users != nil {
			if err := g.users.SetOnlineStatus(ctx, client.UserID, true, now); err != nil {
				g.log.Warn("ws.presence.persist.fail", "user_id", client.UserID, "err", err)
			}
		}
		g.hub.BroadcastAll(envelopeOf(v1.TypeUserOnline, v1.PresencePayload{UserID: client.UserID}, now), client.ID)
	}
	g.metrics.SetOnlineUsers(len(g.presence.OnlineUserIDs()))

	g.hub.Subscribe(client.ID, UserTopic(client.UserID))

	// Seed chat subscriptions so standing chats receive fan-outs without an
	// explicit join after every reconnect. Best-effort: the client can still
	// join_room topics the seed missed.
	chatIDs, err := g.chats.ChatsFor(ctx, client.UserID)
	if err != nil {
		g.log.Warn("ws.seed.chats.fail", "user_id", client.UserID, "err", err)
	}
	for _, chatID := range chatIDs {
		g.hub.Subscribe(client.ID, ChatTopic(chatID))
	}

	g.log.Info("ws.conn.open", "conn_id", client.ID, "user_id", client.UserID, "chats", len(chatIDs))
}

// deactivate tears the connection's state down in the order clients depend
// on: mid-call notice first (registration still live), then registration and
// memberships as a unit, then the presence decrement with its durable write
// and user_offline broadcast on the 1->0 edge.
func (g *WSGateway) deactivate(client *Client) {
	now := time.Now().UTC()

	g.hub.BroadcastAll(envelopeOf(v1.TypeCallPartnerLost, v1.CallPartnerLostPayload{UserID: client.UserID}, now), client.ID)

	g.hub.Unregister(client.ID)
	g.metrics.ConnClosed()

	if last := g.presence.MarkOffline(client.UserID); last {
		if g.users != nil {
			// The request context is gone by now; bound the durable write separately.
			dbCtx, dbCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := g.users.SetOnlineStatus(dbCtx, client.UserID, false, now); err != nil {
				g.log.Warn("ws.presence.persist.fail", "user_id", client.UserID, "err", err)
			}
			dbCancel()
		}
		g.hub.BroadcastAll(envelopeOf(v1.TypeUserOffline, v1.PresencePayload{UserID: client.UserID}, now), client.ID)
	}
	g.metrics.SetOnlineUsers(len(g.presence.OnlineUserIDs()))

	g.log.Info("ws.conn.close", "conn_id", client.ID, "user_id", client.UserID)
}

// ---- dispatch ----

func (g *WSGateway) dispatch(ctx context.Context, client *Client, env v1.Envelope) {
	switch env.Type {
	case v1.TypeJoinRoom:
		var p v1.JoinRoomPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.onJoinRoom(ctx, client, strings.TrimSpace(p.ChatID))

	case v1.TypeLeaveRoom:
		var p v1.LeaveRoomPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		if chatID := strings.TrimSpace(p.ChatID); chatID != "" {
			g.hub.Unsubscribe(client.ID, ChatTopic(chatID))
		}

	case v1.TypeSendMessage:
		var p v1.SendMessagePayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.status.ForwardMessage(ctx, client, strings.TrimSpace(p.ChatID), strings.TrimSpace(p.MessageID))

	case v1.TypeMessageRead:
		var p v1.MessageReadPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.status.AcknowledgeRead(ctx, client, strings.TrimSpace(p.ChatID), strings.TrimSpace(p.MessageID))

	case v1.TypeTyping, v1.TypeStopTyping:
		var p v1.TypingPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.Typing(client, strings.TrimSpace(p.ChatID), env.Type == v1.TypeTyping)

	case v1.TypeReactionUpdated:
		var p v1.ReactionUpdatedPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.ReactionUpdated(ctx, strings.TrimSpace(p.ChatID), strings.TrimSpace(p.MessageID))

	case v1.TypeStarUpdated:
		var p v1.StarUpdatedPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.StarUpdated(ctx, strings.TrimSpace(p.ChatID), strings.TrimSpace(p.MessageID))

	case v1.TypeMessageDeleted:
		var p v1.MessageDeletedPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.MessageDeleted(ctx, client, strings.TrimSpace(p.ChatID), strings.TrimSpace(p.MessageID), p.Scope)

	case v1.TypeCallUser:
		var p v1.CallUserPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.CallUser(client, p)

	case v1.TypeAcceptCall:
		var p v1.AcceptCallPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.AcceptCall(client, p)

	case v1.TypeRejectCall:
		var p v1.RejectCallPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.RejectCall(client, p)

	case v1.TypeEndCall:
		var p v1.EndCallPayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.EndCall(client, p)

	case v1.TypeICECandidate:
		var p v1.ICECandidatePayload
		if !g.decode(ctx, client, env, &p) {
			return
		}
		g.router.ICECandidate(client, p)

	default:
		g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
	}
}

// onJoinRoom subscribes the connection to a chat topic after re-validating
// participation. Non-participants and unknown chats are dropped silently:
// no error payload confirms a chat's existence to a non-member.
func (g *WSGateway) onJoinRoom(ctx context.Context, client *Client, chatID string) {
	if chatID == "" {
		g.trySendError(ctx, client, "bad_payload", "missing chat_id")
		return
	}

	ok, err := g.chats.IsParticipant(ctx, client.UserID, chatID)
	if err != nil {
		g.log.Error("ws.join.participant_check.fail", "chat_id", chatID, "err", err)
		return
	}
	if !ok {
		g.log.Debug("ws.join.authz.drop", "chat_id", chatID, "user_id", client.UserID)
		return
	}

	g.hub.Subscribe(client.ID, ChatTopic(chatID))
}

func (g *WSGateway) decode(ctx context.Context, client *Client, env v1.Envelope, dst any) bool {
	if len(env.Payload) == 0 {
		g.trySendError(ctx, client, "bad_payload", "missing payload")
		return false
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		g.trySendError(ctx, client, "bad_payload", fmt.Sprintf("invalid payload: %v", err))
		return false
	}
	return true
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	env := envelopeOf(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg}, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- authentication helpers ----

// bearerToken extracts the credential from the Authorization header, with a
// query-parameter fallback for browser WebSocket clients that cannot set
// headers on the upgrade request.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func authRejectReason(err error) string {
	switch {
	case errors.Is(err, session.ErrNoCredential):
		return "no_credential"
	case errors.Is(err, session.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, session.ErrUnknownUser):
		return "unknown_user"
	default:
		return "other"
	}
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
