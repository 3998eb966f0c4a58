package handlers

import (
	"context"
	"io"

	"github.com/glassychat/backend/internal/identity"
	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

// IdentityProvider captures the account operations required by the auth
// handlers.
type IdentityProvider interface {
	Register(ctx context.Context, email, password, displayName string) (identity.Identity, error)
	Authenticate(ctx context.Context, email, password string) (identity.Identity, error)
}

// SessionManager issues, refreshes, and resolves authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
	Revoke(ctx context.Context, refreshToken string)
}

// DirectoryService captures the profile operations required by the user
// handlers.
type DirectoryService interface {
	CreateOrUpdate(ctx context.Context, ident identity.Identity, customDisplayName string)
	Profile(ctx context.Context, uid string) (models.UserProfile, error)
	Search(ctx context.Context, callerUID, query string) ([]models.UserProfile, error)
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	SetDisplayName(ctx context.Context, uid, displayName string) error
	SetPhotoURL(ctx context.Context, uid, photoURL string) error
	SetPresence(ctx context.Context, uid string, online bool) error
}

// FriendEngine captures the friend request operations required by the friend
// handlers.
type FriendEngine interface {
	SendRequest(ctx context.Context, fromUID, toUID string) error
	Accept(ctx context.Context, requestID string) error
	Reject(ctx context.Context, requestID string) error
	Request(ctx context.Context, requestID string) (models.FriendRequest, error)
}

// ChatEngine captures message sending for the message handlers.
type ChatEngine interface {
	Send(ctx context.Context, senderID, receiverID, text string) error
}

// ViewStreamer builds the live views the stream handlers forward over SSE.
type ViewStreamer interface {
	Friends(ctx context.Context, uid string, fn func([]models.UserProfile)) (store.CancelFunc, error)
	IncomingRequests(ctx context.Context, uid string, fn func([]models.FriendRequest)) (store.CancelFunc, error)
	OutgoingRequests(ctx context.Context, uid string, fn func([]models.FriendRequest)) (store.CancelFunc, error)
	Messages(ctx context.Context, uidA, uidB string, fn func([]models.Message)) (store.CancelFunc, error)
}

// AvatarStorage persists uploaded avatar images and returns their public
// location.
type AvatarStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}
