package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"ripple/cmd/identity"
)

func newTestManager(t *testing.T) AccessTokenManager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = NewEphemeralSecretKeyHex()

	m, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	return m
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPasetoV4PublicManager_IssueVerifyRoundtrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	now := time.Now().UTC()

	tok, exp, err := m.Issue("user-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now, got %v", exp)
	}

	claims, err := m.Verify(tok, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("claims.UserID=%q want=%q", claims.UserID, "user-1")
	}
	if claims.Issuer != defaultIssuer {
		t.Fatalf("claims.Issuer=%q want=%q", claims.Issuer, defaultIssuer)
	}
}

func TestPasetoV4PublicManager_RejectsExpiredAndGarbage(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	now := time.Now().UTC()

	tok, _, err := m.Issue("user-2", now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for expired token, got %v", err)
	}

	if _, err := m.Verify("not-a-token", now); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for garbage, got %v", err)
	}
}

func TestPasetoV4PublicManager_RejectsForeignKey(t *testing.T) {
	t.Parallel()

	a := newTestManager(t)
	b := newTestManager(t)
	now := time.Now().UTC()

	tok, _, err := a.Issue("user-3", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok, now); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for foreign signature, got %v", err)
	}
}

func TestAuthenticator_FailureTaxonomy(t *testing.T) {
	t.Parallel()

	tokens := newTestManager(t)
	users := identity.NewInMemoryStore()
	users.Put(identity.User{ID: "user-known", Name: "Ada"})

	auth := NewAuthenticator(discardLogger(), tokens, users)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := auth.Authenticate(ctx, ""); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("empty credential: got %v want ErrNoCredential", err)
	}
	if _, err := auth.Authenticate(ctx, "garbage"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("garbage credential: got %v want ErrInvalidCredential", err)
	}

	goneTok, _, err := tokens.Issue("user-gone", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := auth.Authenticate(ctx, goneTok); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("deleted user: got %v want ErrUnknownUser", err)
	}

	okTok, _, err := tokens.Issue("user-known", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := auth.Authenticate(ctx, okTok)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.UserID != "user-known" || id.DisplayName != "Ada" {
		t.Fatalf("identity=%+v want {user-known Ada}", id)
	}
}
