package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ripple/cmd/identity"
)

// Identity is the resolved result of a successful connection-time authentication.
type Identity struct {
	UserID      string
	DisplayName string
}

// Authenticator validates a bearer credential and resolves it to an Identity.
//
// Failure contract (all three reject before any connection state exists):
// - ErrNoCredential: nothing presented
// - ErrInvalidCredential: signature/format/expiry failure
// - ErrUnknownUser: token valid but the user row is gone
type Authenticator struct {
	log    *slog.Logger
	tokens AccessTokenManager
	users  identity.Store

	now func() time.Time
}

// NewAuthenticator constructs an Authenticator. now may be nil (wall clock).
func NewAuthenticator(log *slog.Logger, tokens AccessTokenManager, users identity.Store) *Authenticator {
	return &Authenticator{
		log:    log,
		tokens: tokens,
		users:  users,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate resolves credential to an Identity. Read-only against the user store.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (Identity, error) {
	if a == nil || a.tokens == nil || a.users == nil {
		return Identity{}, ErrConfig
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrNoCredential
	}

	claims, err := a.tokens.Verify(credential, a.now())
	if err != nil {
		return Identity{}, ErrInvalidCredential
	}

	u, err := a.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Identity{}, ErrUnknownUser
		}
		// Store outage is not a credential problem, but the connection still
		// cannot be admitted without an identity.
		a.log.Error("auth.user_lookup.fail", "err", err)
		return Identity{}, err
	}

	return Identity{UserID: u.ID, DisplayName: u.Name}, nil
}

// IsRejection reports whether err is one of the three authentication
// rejections (as opposed to an infrastructure failure).
func IsRejection(err error) bool {
	return errors.Is(err, ErrNoCredential) ||
		errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrUnknownUser)
}
