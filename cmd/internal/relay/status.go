package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	v1 "ripple/contracts/relay/v1"
)

// StatusCoordinator advances a message's delivery state (sent -> delivered ->
// read) from recipient activity and re-broadcasts the result so every
// connected participant converges on the same observed status.
//
// Concurrency: acknowledgments from multiple connections (including multiple
// tabs of one user) race freely. Convergence is delegated to the store's
// atomic AppendReader and monotonic SetStatus; this type never does a naive
// read-modify-write on readBy.
type StatusCoordinator struct {
	log      *slog.Logger
	hub      *Hub
	chats    ChatStore
	messages MessageStore
	metrics  *Metrics
}

// NewStatusCoordinator constructs a coordinator. metrics may be nil.
func NewStatusCoordinator(log *slog.Logger, hub *Hub, chats ChatStore, messages MessageStore, metrics *Metrics) *StatusCoordinator {
	return &StatusCoordinator{
		log:      log,
		hub:      hub,
		chats:    chats,
		messages: messages,
		metrics:  metrics,
	}
}

// ForwardMessage fans out an already-persisted message to its chat topic
// (excluding the sender's connection) and advances it to delivered when at
// least one other participant has a live connection in the topic. With no
// other participant connected the message stays sent until a future
// acknowledgment.
//
// Authorization gap and not-found are both silent drops: no error payload
// confirms chat existence to non-members, and an event racing a deletion
// is benign.
func (s *StatusCoordinator) ForwardMessage(ctx context.Context, sender *Client, chatID, messageID string) {
	if s == nil || sender == nil || chatID == "" || messageID == "" {
		return
	}

	ok, err := s.chats.IsParticipant(ctx, sender.UserID, chatID)
	if err != nil {
		s.log.Error("status.forward.participant_check.fail", "chat_id", chatID, "err", err)
		return
	}
	if !ok {
		s.log.Debug("status.forward.authz.drop", "chat_id", chatID, "user_id", sender.UserID)
		return
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("status.forward.gone", "message_id", messageID)
			return
		}
		s.log.Error("status.forward.fetch.fail", "message_id", messageID, "err", err)
		return
	}

	now := time.Now().UTC()
	topicID := ChatTopic(chatID)

	// Handed to at least one other live connection -> delivered.
	if s.hub.TopicHasOtherUser(topicID, sender.UserID) && msg.Status.Advances(StatusDelivered) {
		if err := s.messages.SetStatus(ctx, messageID, StatusDelivered); err != nil {
			// Durable state may lag; broadcast proceeds from cached data and
			// self-heals on the next successful write.
			s.log.Warn("status.forward.set_status.fail", "message_id", messageID, "err", err)
		}
		msg.Status = StatusDelivered
		s.metrics.RecordStatusTransition(StatusDelivered)

		s.hub.BroadcastTopic(topicID, envelopeOf(v1.TypeMessageStatus, v1.MessageStatusPayload{
			MessageID: msg.ID,
			Status:    string(msg.Status),
			ReadBy:    msg.ReadBy,
		}, now), "")
	}

	// The sender never receives an echo of its own message; its other tabs do.
	s.hub.BroadcastTopic(topicID, envelopeOf(v1.TypeReceiveMessage, msg.Wire(), now), sender.ID)

	s.log.Debug("status.forward", "message_id", messageID, "chat_id", chatID, "status", string(msg.Status))
}

// AcknowledgeRead processes an explicit read acknowledgment: atomically adds
// the acknowledging user to readBy (idempotent) and recomputes status.
//
// Status becomes read when every current participant appears in readBy, or,
// under the deliberately permissive group-chat rule, as soon as readBy holds
// more than one distinct user.
func (s *StatusCoordinator) AcknowledgeRead(ctx context.Context, conn *Client, chatID, messageID string) {
	if s == nil || conn == nil || chatID == "" || messageID == "" {
		return
	}

	ok, err := s.chats.IsParticipant(ctx, conn.UserID, chatID)
	if err != nil {
		s.log.Error("status.read.participant_check.fail", "chat_id", chatID, "err", err)
		return
	}
	if !ok {
		s.log.Debug("status.read.authz.drop", "chat_id", chatID, "user_id", conn.UserID)
		return
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Acknowledgment racing a deletion, not an error.
			s.log.Debug("status.read.gone", "message_id", messageID)
			return
		}
		s.log.Error("status.read.fetch.fail", "message_id", messageID, "err", err)
		return
	}

	readBy, err := s.messages.AppendReader(ctx, messageID, conn.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("status.read.gone", "message_id", messageID)
			return
		}
		s.log.Error("status.read.append_reader.fail", "message_id", messageID, "err", err)
		return
	}

	participants, err := s.chats.Participants(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("status.read.chat_gone", "chat_id", chatID)
			return
		}
		s.log.Error("status.read.participants.fail", "chat_id", chatID, "err", err)
		return
	}

	status := msg.Status
	if next := recomputeStatus(participants, readBy); status.Advances(next) {
		if err := s.messages.SetStatus(ctx, messageID, next); err != nil {
			s.log.Warn("status.read.set_status.fail", "message_id", messageID, "err", err)
		}
		status = next
		s.metrics.RecordStatusTransition(next)
	}

	// Inclusive: the original sender must observe its own message reaching
	// read, and every tab converges on the same readBy set.
	s.hub.BroadcastTopic(ChatTopic(chatID), envelopeOf(v1.TypeMessageStatus, v1.MessageStatusPayload{
		MessageID: msg.ID,
		Status:    string(status),
		ReadBy:    readBy,
	}, time.Now().UTC()), "")

	s.log.Debug("status.read", "message_id", messageID, "status", string(status), "readers", len(readBy))
}

// recomputeStatus derives the target status from the participant set and the
// current readBy set. Read when all participants acknowledged, or when more
// than one distinct user did (the documented permissive heuristic).
func recomputeStatus(participants, readBy []string) Status {
	if len(readBy) > 1 {
		return StatusRead
	}

	if len(participants) > 0 {
		readers := make(map[string]struct{}, len(readBy))
		for _, id := range readBy {
			readers[id] = struct{}{}
		}
		all := true
		for _, p := range participants {
			if _, ok := readers[p]; !ok {
				all = false
				break
			}
		}
		if all {
			return StatusRead
		}
	}

	return StatusDelivered
}
