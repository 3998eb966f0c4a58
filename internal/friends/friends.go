// Package friends implements the friend request lifecycle: directed pending
// requests that resolve to symmetric friendship edges on acceptance.
package friends

import (
	"context"
	"errors"
	"fmt"

	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

var (
	// ErrRequestNotFound indicates no friend request exists with the given id.
	ErrRequestNotFound = errors.New("friend request not found")
	// ErrSelfRequest indicates a user tried to friend themselves.
	ErrSelfRequest = errors.New("cannot send a friend request to yourself")
)

// Engine runs the friend request state machine over the document store.
type Engine struct {
	store store.Store
}

// NewEngine returns a friends engine backed by the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// SendRequest records a pending request from one user to another. If a
// same-direction request already exists in any state except rejected, the
// call is a silent no-op: pending means a duplicate, accepted means they are
// already friends. A rejected request does not block a resend. The sender's
// name and photo are denormalized onto the request so the recipient can
// render it without a profile read.
func (e *Engine) SendRequest(ctx context.Context, fromUID, toUID string) error {
	if fromUID == toUID {
		return ErrSelfRequest
	}

	existing, err := e.store.Query(ctx, models.FriendRequestsCollection, []store.Predicate{
		store.Where("fromUid", store.OpEqual, fromUID),
		store.Where("toUid", store.OpEqual, toUID),
	})
	if err != nil {
		return fmt.Errorf("check existing requests: %w", err)
	}
	for _, doc := range existing {
		if models.FieldString(doc.Fields, "status") != models.RequestRejected {
			return nil
		}
	}

	var fromName, fromPhoto string
	if profile, err := e.store.Get(ctx, models.UsersCollection, fromUID); err == nil {
		fromName = models.FieldString(profile.Fields, "displayName")
		fromPhoto = models.FieldString(profile.Fields, "photoURL")
	}

	_, err = e.store.Insert(ctx, models.FriendRequestsCollection, map[string]any{
		"fromUid":   fromUID,
		"fromName":  fromName,
		"fromPhoto": fromPhoto,
		"toUid":     toUID,
		"status":    models.RequestPending,
		"timestamp": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("store friend request: %w", err)
	}
	return nil
}

// Accept marks the request accepted and writes both halves of the
// friendship. Edge writes are idempotent, so replaying an accept after a
// partial failure converges on the same state.
func (e *Engine) Accept(ctx context.Context, requestID string) error {
	req, err := e.Request(ctx, requestID)
	if err != nil {
		return err
	}

	err = e.store.Update(ctx, models.FriendRequestsCollection, requestID, map[string]any{
		"status": models.RequestAccepted,
	})
	if err != nil {
		return fmt.Errorf("mark request accepted: %w", err)
	}

	if err := e.ensureEdge(ctx, req.ToUID, req.FromUID); err != nil {
		return err
	}
	return e.ensureEdge(ctx, req.FromUID, req.ToUID)
}

// Reject marks the request rejected. The sender may try again later.
func (e *Engine) Reject(ctx context.Context, requestID string) error {
	err := e.store.Update(ctx, models.FriendRequestsCollection, requestID, map[string]any{
		"status": models.RequestRejected,
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("mark request rejected: %w", err)
	}
	return nil
}

// Request returns the friend request with the given id.
func (e *Engine) Request(ctx context.Context, requestID string) (models.FriendRequest, error) {
	doc, err := e.store.Get(ctx, models.FriendRequestsCollection, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.FriendRequest{}, ErrRequestNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("look up friend request: %w", err)
	}
	return models.FriendRequestFromFields(doc.ID, doc.Fields), nil
}

// ensureEdge writes the friendship edge owned by ownerUID pointing at
// friendUID, keeping the original since timestamp if the edge already
// exists.
func (e *Engine) ensureEdge(ctx context.Context, ownerUID, friendUID string) error {
	coll := models.FriendsCollection(ownerUID)

	_, err := e.store.Get(ctx, coll, friendUID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check friendship edge: %w", err)
	}

	err = e.store.Put(ctx, coll, friendUID, map[string]any{
		"uid":   friendUID,
		"since": store.ServerTimestamp,
	}, false)
	if err != nil {
		return fmt.Errorf("store friendship edge: %w", err)
	}
	return nil
}
