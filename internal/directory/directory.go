// Package directory manages the public user profiles: upsert on login,
// presence tracking, and username prefix search.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glassychat/backend/internal/avatars"
	"github.com/glassychat/backend/internal/identity"
	"github.com/glassychat/backend/internal/logging"
	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

// searchUpperBound caps a prefix range scan. It is the highest value a
// username starting with the prefix can compare below.
const searchUpperBound = "\uf8ff"

// Service reads and writes profile documents in the users collection.
type Service struct {
	store store.Store
}

// NewService returns a directory backed by the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateOrUpdate ensures a profile document exists for the identity. New
// identities get a full profile with a username derived from the display
// name; existing profiles only get their presence refreshed, so profile
// edits survive later logins. Failures are logged and swallowed: a missed
// profile write must never block authentication.
func (s *Service) CreateOrUpdate(ctx context.Context, ident identity.Identity, customDisplayName string) {
	log := logging.FromContext(ctx)

	_, err := s.store.Get(ctx, models.UsersCollection, ident.UID)
	switch {
	case err == nil:
		err = s.store.Update(ctx, models.UsersCollection, ident.UID, map[string]any{
			"isOnline": true,
			"lastSeen": store.ServerTimestamp,
		})
		if err != nil {
			log.Warn("refresh profile presence", "uid", ident.UID, "error", err)
		}
	case errors.Is(err, store.ErrNotFound):
		displayName := resolveDisplayName(customDisplayName, ident)
		err = s.store.Put(ctx, models.UsersCollection, ident.UID, map[string]any{
			"uid":         ident.UID,
			"email":       ident.Email,
			"displayName": displayName,
			"username":    Normalize(displayName),
			"photoURL":    avatars.DefaultURL(displayName),
			"isOnline":    true,
			"lastSeen":    store.ServerTimestamp,
		}, false)
		if err != nil {
			log.Warn("create profile", "uid", ident.UID, "error", err)
		}
	default:
		log.Warn("look up profile", "uid", ident.UID, "error", err)
	}
}

// Profile returns the profile document for a uid.
func (s *Service) Profile(ctx context.Context, uid string) (models.UserProfile, error) {
	doc, err := s.store.Get(ctx, models.UsersCollection, uid)
	if err != nil {
		return models.UserProfile{}, err
	}
	return models.UserProfileFromFields(doc.Fields), nil
}

// Search returns profiles whose username starts with the normalized query,
// excluding the caller's own profile. An empty query matches nothing.
func (s *Service) Search(ctx context.Context, callerUID, query string) ([]models.UserProfile, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, nil
	}

	docs, err := s.store.Query(ctx, models.UsersCollection, []store.Predicate{
		store.Where("username", store.OpGreaterOrEqual, normalized),
		store.Where("username", store.OpLessOrEqual, normalized+searchUpperBound),
	})
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}

	profiles := make([]models.UserProfile, 0, len(docs))
	for _, doc := range docs {
		profile := models.UserProfileFromFields(doc.Fields)
		if profile.UID == callerUID {
			continue
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// UsernameAvailable reports whether no profile currently holds the
// normalized username. Concurrent signups can still race; the loser keeps a
// duplicate username, which degrades search but breaks nothing.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	normalized := Normalize(username)
	if normalized == "" {
		return false, nil
	}

	docs, err := s.store.Query(ctx, models.UsersCollection,
		[]store.Predicate{store.Where("username", store.OpEqual, normalized)})
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return len(docs) == 0, nil
}

// SetDisplayName updates the display name without touching the username, so
// existing friend lookups keep working.
func (s *Service) SetDisplayName(ctx context.Context, uid, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return errors.New("display name must not be empty")
	}
	return s.store.Update(ctx, models.UsersCollection, uid, map[string]any{
		"displayName": displayName,
	})
}

// SetPhotoURL points the profile at a newly uploaded avatar.
func (s *Service) SetPhotoURL(ctx context.Context, uid, photoURL string) error {
	if photoURL == "" {
		return errors.New("photo url must not be empty")
	}
	return s.store.Update(ctx, models.UsersCollection, uid, map[string]any{
		"photoURL": photoURL,
	})
}

// SetPresence records whether the user is connected and stamps lastSeen.
func (s *Service) SetPresence(ctx context.Context, uid string, online bool) error {
	return s.store.Update(ctx, models.UsersCollection, uid, map[string]any{
		"isOnline": online,
		"lastSeen": store.ServerTimestamp,
	})
}

// Normalize lowercases a name and strips all whitespace, producing the
// username form used for search and uniqueness checks.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}

func resolveDisplayName(custom string, ident identity.Identity) string {
	if name := strings.TrimSpace(custom); name != "" {
		return name
	}
	if name := strings.TrimSpace(ident.DisplayName); name != "" {
		return name
	}
	if at := strings.Index(ident.Email, "@"); at > 0 {
		return ident.Email[:at]
	}
	return "User"
}
