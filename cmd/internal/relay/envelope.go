package relay

import (
	"encoding/json"
	"time"

	v1 "ripple/contracts/relay/v1"
)

// envelopeOf wraps payload into a v1.Envelope of the given type.
// Marshal failures cannot happen for the contract's own payload structs,
// so the error path collapses to an empty payload rather than plumbing an
// error through every broadcast site.
func envelopeOf(typ string, payload any, now time.Time) v1.Envelope {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}

	id, _ := NewEnvelopeID(now)
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      now,
		Payload: raw,
	}
}
