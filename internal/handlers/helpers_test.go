package handlers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/glassychat/backend/internal/identity"
	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

type fakeIdentity struct {
	registered   []identity.Identity
	registerErr  error
	authIdentity identity.Identity
	authErr      error
}

func (f *fakeIdentity) Register(_ context.Context, email, password, displayName string) (identity.Identity, error) {
	if f.registerErr != nil {
		return identity.Identity{}, f.registerErr
	}
	ident := identity.Identity{UID: "new-uid", Email: email, DisplayName: displayName}
	f.registered = append(f.registered, ident)
	return ident, nil
}

func (f *fakeIdentity) Authenticate(context.Context, string, string) (identity.Identity, error) {
	if f.authErr != nil {
		return identity.Identity{}, f.authErr
	}
	return f.authIdentity, nil
}

type fakeSessions struct {
	issued     []string
	issueErr   error
	refreshErr error
	revoked    []string
	authUID    string
}

func (f *fakeSessions) Issue(_ context.Context, userID string) (models.SessionTokens, error) {
	if f.issueErr != nil {
		return models.SessionTokens{}, f.issueErr
	}
	f.issued = append(f.issued, userID)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return models.SessionTokens{
		AccessToken:      "access-" + userID,
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshToken:     "refresh-" + userID,
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}, nil
}

func (f *fakeSessions) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if f.refreshErr != nil {
		return models.SessionTokens{}, f.refreshErr
	}
	return f.Issue(ctx, "refreshed")
}

func (f *fakeSessions) Authenticate(_ context.Context, accessToken string) (string, error) {
	if f.authUID != "" && accessToken == "good-token" {
		return f.authUID, nil
	}
	return "", identity.ErrSessionNotFound
}

func (f *fakeSessions) Revoke(_ context.Context, refreshToken string) {
	f.revoked = append(f.revoked, refreshToken)
}

type fakeDirectory struct {
	upserts         []identity.Identity
	profiles        map[string]models.UserProfile
	searchResults   []models.UserProfile
	searchErr       error
	usernameTaken   bool
	usernameErr     error
	displayNames    map[string]string
	photoURLs       map[string]string
	presenceOffline []string
}

func (f *fakeDirectory) CreateOrUpdate(_ context.Context, ident identity.Identity, _ string) {
	f.upserts = append(f.upserts, ident)
}

func (f *fakeDirectory) Profile(_ context.Context, uid string) (models.UserProfile, error) {
	profile, ok := f.profiles[uid]
	if !ok {
		return models.UserProfile{}, store.ErrNotFound
	}
	return profile, nil
}

func (f *fakeDirectory) Search(context.Context, string, string) ([]models.UserProfile, error) {
	return f.searchResults, f.searchErr
}

func (f *fakeDirectory) UsernameAvailable(context.Context, string) (bool, error) {
	return !f.usernameTaken, f.usernameErr
}

func (f *fakeDirectory) SetDisplayName(_ context.Context, uid, displayName string) error {
	if f.displayNames == nil {
		f.displayNames = make(map[string]string)
	}
	f.displayNames[uid] = displayName
	return nil
}

func (f *fakeDirectory) SetPhotoURL(_ context.Context, uid, photoURL string) error {
	if f.photoURLs == nil {
		f.photoURLs = make(map[string]string)
	}
	f.photoURLs[uid] = photoURL
	return nil
}

func (f *fakeDirectory) SetPresence(_ context.Context, uid string, online bool) error {
	if !online {
		f.presenceOffline = append(f.presenceOffline, uid)
	}
	return nil
}

type fakeFriends struct {
	sent       [][2]string
	sendErr    error
	accepted   []string
	rejected   []string
	actionErr  error
	request    models.FriendRequest
	requestErr error
}

func (f *fakeFriends) SendRequest(_ context.Context, fromUID, toUID string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, [2]string{fromUID, toUID})
	return nil
}

func (f *fakeFriends) Accept(_ context.Context, requestID string) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.accepted = append(f.accepted, requestID)
	return nil
}

func (f *fakeFriends) Reject(_ context.Context, requestID string) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.rejected = append(f.rejected, requestID)
	return nil
}

func (f *fakeFriends) Request(context.Context, string) (models.FriendRequest, error) {
	return f.request, f.requestErr
}

type fakeChat struct {
	sent    []sentMessage
	sendErr error
}

type sentMessage struct {
	from, to, text string
}

func (f *fakeChat) Send(_ context.Context, senderID, receiverID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{from: senderID, to: receiverID, text: text})
	return nil
}

type fakeAvatars struct {
	saved   map[string][]byte
	saveErr error
}

func (f *fakeAvatars) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[name] = data
	return "https://cdn.example.com/" + name, nil
}

var errBoom = errors.New("boom")
