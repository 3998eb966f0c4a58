// Package identity owns authentication: local email/password accounts and
// the session token lifecycle. It issues opaque identities; the directory
// package owns the public profile documents built on top of them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

var (
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates the email or password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Identity is an authenticated principal as the provider knows it, before
// any directory profile exists.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// LocalProvider manages email/password accounts stored as documents in the
// accounts collection, one document per account keyed by uid.
type LocalProvider struct {
	store store.Store
}

// NewLocalProvider returns a provider backed by the given store.
func NewLocalProvider(st store.Store) *LocalProvider {
	return &LocalProvider{store: st}
}

// Register creates a new account and returns its identity. The email is
// unique across accounts; passwords are stored as bcrypt hashes only.
func (p *LocalProvider) Register(ctx context.Context, email, password, displayName string) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Identity{}, errors.New("email must be provided")
	}
	if password == "" {
		return Identity{}, errors.New("password must be provided")
	}

	existing, err := p.store.Query(ctx, models.AccountsCollection,
		[]store.Predicate{store.Where("email", store.OpEqual, email)})
	if err != nil {
		return Identity{}, fmt.Errorf("check account email: %w", err)
	}
	if len(existing) > 0 {
		return Identity{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	uid := uuid.NewString()
	err = p.store.Put(ctx, models.AccountsCollection, uid, map[string]any{
		"email":        email,
		"passwordHash": string(hash),
		"displayName":  displayName,
		"createdAt":    store.ServerTimestamp,
	}, false)
	if err != nil {
		return Identity{}, fmt.Errorf("store account: %w", err)
	}

	return Identity{UID: uid, Email: email, DisplayName: displayName}, nil
}

// Authenticate verifies the email/password pair and returns the matching
// identity. All failure modes collapse into ErrInvalidCredentials so callers
// cannot probe which emails have accounts.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	email = normalizeEmail(email)

	docs, err := p.store.Query(ctx, models.AccountsCollection,
		[]store.Predicate{store.Where("email", store.OpEqual, email)})
	if err != nil {
		return Identity{}, fmt.Errorf("look up account: %w", err)
	}
	if len(docs) == 0 {
		return Identity{}, ErrInvalidCredentials
	}

	account := docs[0]
	hash := models.FieldString(account.Fields, "passwordHash")
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{
		UID:         account.ID,
		Email:       models.FieldString(account.Fields, "email"),
		DisplayName: models.FieldString(account.Fields, "displayName"),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
