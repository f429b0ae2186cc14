package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	v1 "ripple/contracts/relay/v1"
)

// SignalRouter is the stateless fan-out for ephemeral signals: typing
// indicators, reaction/star rebroadcasts, deletion notices, and call
// signaling. Fire-and-forget, at-most-once: no persistence, no retry, no
// queuing for offline recipients.
type SignalRouter struct {
	log      *slog.Logger
	hub      *Hub
	chats    ChatStore
	messages MessageStore
}

// NewSignalRouter constructs a router.
func NewSignalRouter(log *slog.Logger, hub *Hub, chats ChatStore, messages MessageStore) *SignalRouter {
	return &SignalRouter{
		log:      log,
		hub:      hub,
		chats:    chats,
		messages: messages,
	}
}

// Typing fans a typing or stop-typing indicator to the chat topic, excluding
// the typist's connection. Last-write-wins per (topic, user); the relay keeps
// no typing state and enforces no timeout. A client that disconnects
// mid-type leaves no stop event behind; recipient-side timeouts recover.
func (r *SignalRouter) Typing(conn *Client, chatID string, started bool) {
	if r == nil || conn == nil || chatID == "" {
		return
	}

	typ := v1.TypeStopTyping
	if started {
		typ = v1.TypeTyping
	}

	payload := v1.TypingPayload{ChatID: chatID, UserID: conn.UserID}
	if started {
		payload.UserName = conn.Name
	}

	r.hub.BroadcastTopic(ChatTopic(chatID), envelopeOf(typ, payload, time.Now().UTC()), conn.ID)
}

// ReactionUpdated rebroadcasts the full updated message to the chat topic,
// inclusive, after the REST layer persisted a reaction change.
func (r *SignalRouter) ReactionUpdated(ctx context.Context, chatID, messageID string) {
	r.rebroadcastMessage(ctx, v1.TypeReactionUpdated, chatID, messageID)
}

// StarUpdated rebroadcasts the full updated message to the chat topic,
// inclusive, after a star toggle.
func (r *SignalRouter) StarUpdated(ctx context.Context, chatID, messageID string) {
	r.rebroadcastMessage(ctx, v1.TypeStarUpdated, chatID, messageID)
}

func (r *SignalRouter) rebroadcastMessage(ctx context.Context, typ, chatID, messageID string) {
	if r == nil || chatID == "" || messageID == "" {
		return
	}

	msg, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.log.Debug("router.rebroadcast.gone", "type", typ, "message_id", messageID)
			return
		}
		r.log.Error("router.rebroadcast.fetch.fail", "type", typ, "message_id", messageID, "err", err)
		return
	}

	r.hub.BroadcastTopic(ChatTopic(chatID), envelopeOf(typ, msg.Wire(), time.Now().UTC()), "")
}

// MessageDeleted announces a deletion to the chat topic, inclusive, carrying
// the scope (self/everyone) and the updated message. Requester must be a
// participant; failures are silent by contract.
func (r *SignalRouter) MessageDeleted(ctx context.Context, conn *Client, chatID, messageID, scope string) {
	if r == nil || conn == nil || chatID == "" || messageID == "" {
		return
	}
	if scope != v1.DeleteScopeEveryone {
		scope = v1.DeleteScopeSelf
	}

	ok, err := r.chats.IsParticipant(ctx, conn.UserID, chatID)
	if err != nil {
		r.log.Error("router.delete.participant_check.fail", "chat_id", chatID, "err", err)
		return
	}
	if !ok {
		r.log.Debug("router.delete.authz.drop", "chat_id", chatID, "user_id", conn.UserID)
		return
	}

	msg, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.log.Debug("router.delete.gone", "message_id", messageID)
			return
		}
		r.log.Error("router.delete.fetch.fail", "message_id", messageID, "err", err)
		return
	}

	wire := msg.Wire()
	r.hub.BroadcastTopic(ChatTopic(chatID), envelopeOf(v1.TypeMessageDeleted, v1.MessageDeletedPayload{
		MessageID: messageID,
		ChatID:    chatID,
		Scope:     scope,
		Message:   &wire,
	}, time.Now().UTC()), "")
}

// ---- call signaling ----
//
// Point-to-point relays via the target user's personal topic. No chat
// scoping, no validation beyond the payload shape: an offline target simply
// never receives the event.

// CallUser forwards a call offer to the callee's personal topic.
func (r *SignalRouter) CallUser(conn *Client, p v1.CallUserPayload) {
	if r == nil || conn == nil || p.TargetUserID == "" {
		return
	}

	from := p.From
	if from == "" {
		from = conn.UserID
	}
	name := p.Name
	if name == "" {
		name = conn.Name
	}
	kind := p.CallKind
	if kind != v1.CallKindAudio {
		kind = v1.CallKindVideo
	}

	r.hub.BroadcastUser(p.TargetUserID, envelopeOf(v1.TypeCallReceived, v1.CallReceivedPayload{
		Signal:   p.Signal,
		From:     from,
		Name:     name,
		CallKind: kind,
	}, time.Now().UTC()))
}

// AcceptCall forwards a call answer to the caller.
func (r *SignalRouter) AcceptCall(conn *Client, p v1.AcceptCallPayload) {
	if r == nil || conn == nil || p.To == "" {
		return
	}
	r.hub.BroadcastUser(p.To, envelopeOf(v1.TypeCallAccepted, v1.CallAcceptedPayload{
		Signal: p.Signal,
		From:   conn.UserID,
	}, time.Now().UTC()))
}

// RejectCall notifies the caller that the callee declined.
func (r *SignalRouter) RejectCall(conn *Client, p v1.RejectCallPayload) {
	if r == nil || conn == nil || p.To == "" {
		return
	}
	r.hub.BroadcastUser(p.To, envelopeOf(v1.TypeCallRejected, v1.CallRejectedPayload{
		From: conn.UserID,
		Name: conn.Name,
	}, time.Now().UTC()))
}

// EndCall notifies the peer that the call ended.
func (r *SignalRouter) EndCall(conn *Client, p v1.EndCallPayload) {
	if r == nil || conn == nil || p.To == "" {
		return
	}
	r.hub.BroadcastUser(p.To, envelopeOf(v1.TypeCallEnded, v1.CallEndedPayload{
		From: conn.UserID,
	}, time.Now().UTC()))
}

// ICECandidate relays a WebRTC ICE candidate to the peer.
func (r *SignalRouter) ICECandidate(conn *Client, p v1.ICECandidatePayload) {
	if r == nil || conn == nil || p.To == "" {
		return
	}
	r.hub.BroadcastUser(p.To, envelopeOf(v1.TypeICECandidate, v1.ICECandidatePayload{
		From:      conn.UserID,
		Candidate: p.Candidate,
	}, time.Now().UTC()))
}
