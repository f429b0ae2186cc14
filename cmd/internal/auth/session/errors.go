package session

import "errors"

var (
	// ErrNoCredential is returned when no bearer token was presented at all.
	// Kept distinct from ErrInvalidCredential so the gateway can log and
	// reject the two cases separately.
	ErrNoCredential = errors.New("no credential")

	// ErrInvalidCredential is returned when a token fails signature, format,
	// issuer or expiry checks.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrUnknownUser is returned when a token verifies but the referenced
	// user no longer exists in the user store.
	ErrUnknownUser = errors.New("unknown user")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
