package v1

import (
	"encoding/json"
	"time"
)

// Message status values. Monotonic: sent -> delivered -> read.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Call kinds.
const (
	CallKindAudio = "audio"
	CallKindVideo = "video"
)

// Deletion scopes for TypeMessageDeleted.
const (
	DeleteScopeSelf     = "self"
	DeleteScopeEveryone = "everyone"
)

// Reaction is a single emoji reaction attached to a message.
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Message is the wire representation of a chat message as the relay forwards it.
// The relay owns none of these fields durably; it reads them from the message
// store and mutates only Status and ReadBy.
type Message struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chat_id"`
	SenderID   string     `json:"sender_id"`
	SenderName string     `json:"sender_name,omitempty"`
	Content    string     `json:"content,omitempty"`
	MediaURL   string     `json:"media_url,omitempty"`
	Kind       string     `json:"kind,omitempty"` // text/image/file/audio/voice
	Status     string     `json:"status"`
	ReadBy     []string   `json:"read_by"`
	Reactions  []Reaction `json:"reactions,omitempty"`
	StarredBy  []string   `json:"starred_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
}

// UserSummary is the display identity attached to group membership events.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ---- room membership ----

// JoinRoomPayload requests subscription to a chat topic.
// The relay re-validates participation; non-participants are ignored silently.
type JoinRoomPayload struct {
	ChatID string `json:"chat_id"`
}

// LeaveRoomPayload drops a chat-topic subscription.
type LeaveRoomPayload struct {
	ChatID string `json:"chat_id"`
}

// ---- messages ----

// SendMessagePayload asks the relay to fan out an already-persisted message.
type SendMessagePayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// MessageReadPayload acknowledges a message as read.
type MessageReadPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// MessageStatusPayload is the authoritative status broadcast for a message.
type MessageStatusPayload struct {
	MessageID string   `json:"message_id"`
	Status    string   `json:"status"`
	ReadBy    []string `json:"read_by,omitempty"`
}

// MessageDeletedPayload announces a deletion. Requests carry only the ids and
// scope; the broadcast additionally carries the updated message.
type MessageDeletedPayload struct {
	MessageID string   `json:"message_id"`
	ChatID    string   `json:"chat_id"`
	Scope     string   `json:"scope"` // self | everyone
	Message   *Message `json:"message,omitempty"`
}

// ReactionUpdatedPayload / StarUpdatedPayload request an inclusive rebroadcast
// of the full message after a REST-side mutation.
type ReactionUpdatedPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

type StarUpdatedPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// ---- typing ----

// TypingPayload is shared by typing and stop_typing in both directions.
// UserID/UserName are set only on server -> client broadcasts.
type TypingPayload struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// ---- presence ----

// PresencePayload carries a user_online/user_offline transition.
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// CallPartnerLostPayload is the global mid-call disconnect notice.
type CallPartnerLostPayload struct {
	UserID string `json:"user_id"`
}

// ---- call signaling ----

// CallUserPayload initiates a call toward a target user.
type CallUserPayload struct {
	TargetUserID string          `json:"target_user_id"`
	Signal       json.RawMessage `json:"signal,omitempty"`
	From         string          `json:"from,omitempty"`
	Name         string          `json:"name,omitempty"`
	CallKind     string          `json:"call_kind,omitempty"` // audio | video
}

// CallReceivedPayload is delivered on the callee's personal topic.
type CallReceivedPayload struct {
	Signal   json.RawMessage `json:"signal,omitempty"`
	From     string          `json:"from"`
	Name     string          `json:"name,omitempty"`
	CallKind string          `json:"call_kind"`
}

// AcceptCallPayload answers a call.
type AcceptCallPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// CallAcceptedPayload is delivered on the caller's personal topic.
type CallAcceptedPayload struct {
	Signal json.RawMessage `json:"signal,omitempty"`
	From   string          `json:"from"`
}

// RejectCallPayload declines a call.
type RejectCallPayload struct {
	To string `json:"to"`
}

// CallRejectedPayload carries the rejector's identity.
type CallRejectedPayload struct {
	From string `json:"from"`
	Name string `json:"name,omitempty"`
}

// EndCallPayload terminates a call.
type EndCallPayload struct {
	To string `json:"to"`
}

// CallEndedPayload is delivered on the peer's personal topic.
type CallEndedPayload struct {
	From string `json:"from"`
}

// ICECandidatePayload relays a WebRTC ICE candidate. Requests carry To;
// deliveries carry From.
type ICECandidatePayload struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ---- REST-triggered notifications ----

// GroupAvatarUpdatedPayload notifies chat participants of a new group avatar.
type GroupAvatarUpdatedPayload struct {
	ChatID    string `json:"chat_id"`
	AvatarURL string `json:"avatar_url"`
}

// GroupNameUpdatedPayload notifies chat participants of a renamed group.
type GroupNameUpdatedPayload struct {
	ChatID string `json:"chat_id"`
	Name   string `json:"name"`
}

// GroupParticipantAddedPayload notifies participants that a user joined the group.
type GroupParticipantAddedPayload struct {
	ChatID      string      `json:"chat_id"`
	Participant UserSummary `json:"participant"`
}

// GroupParticipantRemovedPayload notifies participants that a user was removed.
type GroupParticipantRemovedPayload struct {
	ChatID        string `json:"chat_id"`
	RemovedUserID string `json:"removed_user_id"`
}

// AvatarUpdatedPayload is the targeted co-member delivery for an avatar change.
type AvatarUpdatedPayload struct {
	UserID    string `json:"user_id"`
	AvatarURL string `json:"avatar_url"`
	Name      string `json:"name,omitempty"`
}

// UserProfileUpdatedPayload is the global delivery for a profile change.
type UserProfileUpdatedPayload struct {
	UserID        string `json:"user_id"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Name          string `json:"name,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
