package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	payload := json.RawMessage(`{"chat_id":"c1"}`)

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{
			name: "valid join_room",
			env:  Envelope{V: Version, Type: TypeJoinRoom, ID: "e1", TS: now, Payload: payload},
		},
		{
			name: "valid server type",
			env:  Envelope{V: Version, Type: TypeMessageStatus, ID: "e2", TS: now, Payload: payload},
		},
		{
			name:    "missing version",
			env:     Envelope{Type: TypeJoinRoom, Payload: payload},
			wantErr: true,
		},
		{
			name:    "wrong version",
			env:     Envelope{V: "v0", Type: TypeJoinRoom, Payload: payload},
			wantErr: true,
		},
		{
			name:    "missing type",
			env:     Envelope{V: Version, Payload: payload},
			wantErr: true,
		},
		{
			name:    "unknown type",
			env:     Envelope{V: Version, Type: "shout", Payload: payload},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClientAllowed(t *testing.T) {
	t.Parallel()

	allowed := []string{
		TypeJoinRoom, TypeLeaveRoom, TypeSendMessage, TypeMessageRead,
		TypeTyping, TypeStopTyping, TypeReactionUpdated, TypeStarUpdated,
		TypeMessageDeleted, TypeCallUser, TypeAcceptCall, TypeRejectCall,
		TypeEndCall, TypeICECandidate,
	}
	for _, typ := range allowed {
		if !ClientAllowed(typ) {
			t.Fatalf("ClientAllowed(%q)=false, want true", typ)
		}
	}

	// Server-only types must never be accepted from a client.
	serverOnly := []string{
		TypeReceiveMessage, TypeMessageStatus, TypeUserOnline, TypeUserOffline,
		TypeCallReceived, TypeCallPartnerLost, TypeUserProfileUpdated, TypeError,
	}
	for _, typ := range serverOnly {
		if ClientAllowed(typ) {
			t.Fatalf("ClientAllowed(%q)=true, want false", typ)
		}
		if !KnownType(typ) {
			t.Fatalf("KnownType(%q)=false, want true", typ)
		}
	}
}
