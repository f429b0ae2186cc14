// Package v1 defines the Ripple Relay Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
// Every event the relay accepts or emits has a named type constant and a typed
// payload struct; there is no string-keyed ad hoc dispatch anywhere else.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Client -> server event types (wire-stable).
const (
	// TypeJoinRoom requests subscription to a chat topic.
	TypeJoinRoom = "join_room"
	// TypeLeaveRoom drops a chat-topic subscription unconditionally.
	TypeLeaveRoom = "leave_room"

	// TypeSendMessage asks the relay to fan out a message that the REST layer
	// already persisted. The relay forwards and tracks delivery state only.
	TypeSendMessage = "send_message"
	// TypeMessageRead acknowledges a message as read by the sending connection's user.
	TypeMessageRead = "message_read"

	// TypeTyping and TypeStopTyping are ephemeral typing indicators.
	// They are valid in both directions: requests carry only chat_id,
	// broadcasts additionally carry the typist's identity.
	TypeTyping     = "typing"
	TypeStopTyping = "stop_typing"

	// TypeReactionUpdated and TypeStarUpdated ask for an inclusive rebroadcast
	// of the full updated message after a REST-side mutation.
	TypeReactionUpdated = "reaction_updated"
	TypeStarUpdated     = "star_updated"

	// TypeMessageDeleted announces a deletion to the chat topic.
	TypeMessageDeleted = "message_deleted"

	// Call signaling (point-to-point via the target user's personal topic).
	TypeCallUser     = "call_user"
	TypeAcceptCall   = "accept_call"
	TypeRejectCall   = "reject_call"
	TypeEndCall      = "end_call"
	TypeICECandidate = "ice_candidate"
)

// Server -> client event types (wire-stable).
const (
	// TypeReceiveMessage delivers a forwarded chat message to topic members
	// other than the originating connection.
	TypeReceiveMessage = "receive_message"
	// TypeMessageStatus is the authoritative status broadcast. It is inclusive:
	// the sender observes its own message reaching delivered/read.
	TypeMessageStatus = "message_status_update"

	// Presence transitions, delivered to every other connected user.
	TypeUserOnline  = "user_online"
	TypeUserOffline = "user_offline"

	// TypeCallPartnerLost is a best-effort global notice that a user dropped
	// mid-call; clients tear down any signaling session with that user.
	TypeCallPartnerLost = "user_disconnected_from_call"

	// Call signaling deliveries.
	TypeCallReceived = "call_received"
	TypeCallAccepted = "call_accepted"
	TypeCallRejected = "call_rejected"
	TypeCallEnded    = "call_ended"

	// REST-triggered group and profile notifications.
	TypeGroupAvatarUpdated      = "group_avatar_updated"
	TypeGroupNameUpdated        = "group_name_updated"
	TypeGroupParticipantAdded   = "group_participant_added"
	TypeGroupParticipantRemoved = "group_participant_removed"
	TypeAvatarUpdated           = "avatar_updated"
	TypeUserProfileUpdated      = "user_profile_updated"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// clientTypes is the closed set of types the relay accepts from a client.
var clientTypes = map[string]struct{}{
	TypeJoinRoom:        {},
	TypeLeaveRoom:       {},
	TypeSendMessage:     {},
	TypeMessageRead:     {},
	TypeTyping:          {},
	TypeStopTyping:      {},
	TypeReactionUpdated: {},
	TypeStarUpdated:     {},
	TypeMessageDeleted:  {},
	TypeCallUser:        {},
	TypeAcceptCall:      {},
	TypeRejectCall:      {},
	TypeEndCall:         {},
	TypeICECandidate:    {},
}

// serverTypes is the closed set of types the relay emits.
var serverTypes = map[string]struct{}{
	TypeReceiveMessage:          {},
	TypeMessageStatus:           {},
	TypeUserOnline:              {},
	TypeUserOffline:             {},
	TypeCallPartnerLost:         {},
	TypeCallReceived:            {},
	TypeCallAccepted:            {},
	TypeCallRejected:            {},
	TypeCallEnded:               {},
	TypeGroupAvatarUpdated:      {},
	TypeGroupNameUpdated:        {},
	TypeGroupParticipantAdded:   {},
	TypeGroupParticipantRemoved: {},
	TypeAvatarUpdated:           {},
	TypeUserProfileUpdated:      {},
	TypeError:                   {},
}

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
// It accepts any known type; direction policy is enforced by ClientAllowed.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	if !KnownType(e.Type) {
		return fmt.Errorf("unknown type: %q", e.Type)
	}
	return nil
}

// KnownType reports whether t is any event type defined by this contract.
func KnownType(t string) bool {
	if _, ok := clientTypes[t]; ok {
		return true
	}
	_, ok := serverTypes[t]
	return ok
}

// ClientAllowed reports whether a client may send an envelope of type t.
// TypeTyping, TypeStopTyping, and the call signaling types appear in both
// directions.
func ClientAllowed(t string) bool {
	_, ok := clientTypes[t]
	return ok
}
