package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

var (
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// SessionManager manages the lifecycle of issued session tokens. Sessions
// are documents in the sessions collection keyed by refresh token, so they
// survive process restarts on persistent store drivers.
type SessionManager struct {
	accessTTL  time.Duration
	refreshTTL time.Duration

	store store.Store

	// NowFunc allows tests to control time. Defaults to time.Now.
	NowFunc func() time.Time
}

// NewSessionManager constructs a SessionManager that issues access and
// refresh tokens with the provided TTLs.
func NewSessionManager(accessTTL, refreshTTL time.Duration, st store.Store) *SessionManager {
	if st == nil {
		panic("identity: session store must not be nil")
	}
	return &SessionManager{
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      st,
		NowFunc:    time.Now,
	}
}

// Issue creates a new pair of access and refresh tokens for the provided
// user identifier.
func (m *SessionManager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := m.NowFunc().UTC()
	accessToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	tokens := models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}

	err = m.store.Put(ctx, models.SessionsCollection, refreshToken, map[string]any{
		"userId":          userID,
		"accessToken":     accessToken,
		"accessExpiresAt": tokens.AccessExpiresAt,
		"expiresAt":       tokens.RefreshExpiresAt,
	}, false)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("store session: %w", err)
	}

	return tokens, nil
}

// Refresh exchanges a refresh token for a new session token pair. The spent
// token is deleted before the replacement is issued, so each refresh token
// is usable exactly once.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	doc, err := m.store.Get(ctx, models.SessionsCollection, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.SessionTokens{}, ErrSessionNotFound
		}
		return models.SessionTokens{}, fmt.Errorf("look up session: %w", err)
	}

	expiresAt := models.FieldTime(doc.Fields, "expiresAt")
	if m.NowFunc().UTC().After(expiresAt) {
		_ = m.store.Delete(ctx, models.SessionsCollection, refreshToken)
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}

	if err := m.store.Delete(ctx, models.SessionsCollection, refreshToken); err != nil {
		return models.SessionTokens{}, fmt.Errorf("rotate session: %w", err)
	}

	return m.Issue(ctx, models.FieldString(doc.Fields, "userId"))
}

// Authenticate resolves an access token to the user id it was issued for.
// Expired or unknown tokens fail with ErrSessionNotFound.
func (m *SessionManager) Authenticate(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrSessionNotFound
	}

	docs, err := m.store.Query(ctx, models.SessionsCollection,
		[]store.Predicate{store.Where("accessToken", store.OpEqual, accessToken)})
	if err != nil {
		return "", fmt.Errorf("look up access token: %w", err)
	}
	if len(docs) == 0 {
		return "", ErrSessionNotFound
	}

	session := docs[0]
	if m.NowFunc().UTC().After(models.FieldTime(session.Fields, "accessExpiresAt")) {
		return "", ErrSessionNotFound
	}
	return models.FieldString(session.Fields, "userId"), nil
}

// Revoke removes the provided refresh token from the active sessions.
func (m *SessionManager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	_ = m.store.Delete(ctx, models.SessionsCollection, refreshToken)
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
