package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

func TestLocalProvider_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider(store.NewMemoryStore())

	ident, err := provider.Register(ctx, "  Alice@Example.COM ", "correct horse", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ident.UID == "" || ident.Email != "alice@example.com" || ident.DisplayName != "Alice" {
		t.Fatalf("unexpected identity: %+v", ident)
	}

	back, err := provider.Authenticate(ctx, "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if back.UID != ident.UID {
		t.Fatalf("expected uid %s, got %s", ident.UID, back.UID)
	}

	if _, err := provider.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := provider.Authenticate(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLocalProvider_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider(store.NewMemoryStore())

	if _, err := provider.Register(ctx, "alice@example.com", "correct horse", "Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := provider.Register(ctx, "ALICE@example.com", "other password", "Imposter"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLocalProvider_PasswordNotStoredInClear(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	provider := NewLocalProvider(st)

	ident, err := provider.Register(ctx, "alice@example.com", "correct horse", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	doc, err := st.Get(ctx, models.AccountsCollection, ident.UID)
	if err != nil {
		t.Fatalf("account lookup: %v", err)
	}
	if hash := models.FieldString(doc.Fields, "passwordHash"); hash == "" || hash == "correct horse" {
		t.Fatalf("password stored in clear or missing: %q", hash)
	}
}

func TestSessionManager_IssueAndRefreshRotates(t *testing.T) {
	ctx := context.Background()
	manager := NewSessionManager(15*time.Minute, 24*time.Hour, store.NewMemoryStore())

	tokens, err := manager.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected token pair, got %+v", tokens)
	}

	rotated, err := manager.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	// The spent token is gone.
	if _, err := manager.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound reusing spent token, got %v", err)
	}

	uid, err := manager.Authenticate(ctx, rotated.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("expected uid u1, got %s", uid)
	}
}

func TestSessionManager_RefreshExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	manager := NewSessionManager(15*time.Minute, 24*time.Hour, store.NewMemoryStore())
	manager.NowFunc = func() time.Time { return now }

	tokens, err := manager.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(25 * time.Hour)
	if _, err := manager.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}

	// The expired session is removed, so a retry reports not found.
	if _, err := manager.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after cleanup, got %v", err)
	}
}

func TestSessionManager_AuthenticateExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	manager := NewSessionManager(15*time.Minute, 24*time.Hour, store.NewMemoryStore())
	manager.NowFunc = func() time.Time { return now }

	tokens, err := manager.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := manager.Authenticate(ctx, tokens.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for expired access token, got %v", err)
	}
}

func TestSessionManager_Revoke(t *testing.T) {
	ctx := context.Background()
	manager := NewSessionManager(15*time.Minute, 24*time.Hour, store.NewMemoryStore())

	tokens, err := manager.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.Revoke(ctx, tokens.RefreshToken)

	if _, err := manager.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}

	// Revoking twice or revoking garbage is harmless.
	manager.Revoke(ctx, tokens.RefreshToken)
	manager.Revoke(ctx, "")
}
