// Package views composes store subscriptions into the live result sets
// clients render: the friend list, pending requests in both directions, and
// conversation timelines. Every view delivers full snapshots; a new snapshot
// always supersedes the previous one.
package views

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/glassychat/backend/internal/chat"
	"github.com/glassychat/backend/internal/logging"
	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

// Views builds live views over the document store.
type Views struct {
	store store.Store

	// NowFunc substitutes for missing message timestamps during the window
	// between a write and its store-assigned timestamp becoming visible.
	// Defaults to time.Now.
	NowFunc func() time.Time
}

// New returns a view builder backed by the given store.
func New(st store.Store) *Views {
	return &Views{store: st, NowFunc: time.Now}
}

// Friends delivers the user's friend list: every friendship edge resolved to
// its current profile document. Profiles are fetched concurrently and
// returned in edge order; edges whose profile is missing are dropped from
// the snapshot rather than failing it.
func (v *Views) Friends(ctx context.Context, uid string, fn func([]models.UserProfile)) (store.CancelFunc, error) {
	log := logging.FromContext(ctx)

	return v.store.Subscribe(ctx, models.FriendsCollection(uid), nil, func(docs []store.Document) {
		seen := make(map[string]struct{}, len(docs))
		edges := make([]string, 0, len(docs))
		for _, doc := range docs {
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			seen[doc.ID] = struct{}{}
			edges = append(edges, doc.ID)
		}

		profiles := make([]*models.UserProfile, len(edges))
		var wg sync.WaitGroup
		for i, friendUID := range edges {
			wg.Add(1)
			go func(i int, friendUID string) {
				defer wg.Done()
				doc, err := v.store.Get(ctx, models.UsersCollection, friendUID)
				if err != nil {
					log.Warn("resolve friend profile", "uid", friendUID, "error", err)
					return
				}
				profile := models.UserProfileFromFields(doc.Fields)
				profiles[i] = &profile
			}(i, friendUID)
		}
		wg.Wait()

		out := make([]models.UserProfile, 0, len(profiles))
		for _, p := range profiles {
			if p != nil {
				out = append(out, *p)
			}
		}
		fn(out)
	})
}

// IncomingRequests delivers the pending friend requests addressed to the
// user.
func (v *Views) IncomingRequests(ctx context.Context, uid string, fn func([]models.FriendRequest)) (store.CancelFunc, error) {
	return v.subscribeRequests(ctx, store.Where("toUid", store.OpEqual, uid), fn)
}

// OutgoingRequests delivers the pending friend requests the user has sent.
func (v *Views) OutgoingRequests(ctx context.Context, uid string, fn func([]models.FriendRequest)) (store.CancelFunc, error) {
	return v.subscribeRequests(ctx, store.Where("fromUid", store.OpEqual, uid), fn)
}

func (v *Views) subscribeRequests(ctx context.Context, direction store.Predicate, fn func([]models.FriendRequest)) (store.CancelFunc, error) {
	preds := []store.Predicate{
		direction,
		store.Where("status", store.OpEqual, models.RequestPending),
	}
	return v.store.Subscribe(ctx, models.FriendRequestsCollection, preds, func(docs []store.Document) {
		requests := make([]models.FriendRequest, 0, len(docs))
		for _, doc := range docs {
			requests = append(requests, models.FriendRequestFromFields(doc.ID, doc.Fields))
		}
		fn(requests)
	})
}

// Messages delivers the conversation timeline between two users, ordered by
// store timestamp. Messages whose timestamp has not materialized yet sort as
// if sent now, which keeps just-sent messages at the tail.
func (v *Views) Messages(ctx context.Context, uidA, uidB string, fn func([]models.Message)) (store.CancelFunc, error) {
	conversationID := chat.ConversationID(uidA, uidB)
	preds := []store.Predicate{
		store.Where("conversationId", store.OpEqual, conversationID),
	}

	return v.store.Subscribe(ctx, models.MessagesCollection, preds, func(docs []store.Document) {
		messages := make([]models.Message, 0, len(docs))
		for _, doc := range docs {
			messages = append(messages, models.MessageFromFields(doc.ID, doc.Fields))
		}

		now := v.NowFunc()
		at := func(m models.Message) time.Time {
			if m.Timestamp.IsZero() {
				return now
			}
			return m.Timestamp
		}
		sort.SliceStable(messages, func(i, j int) bool {
			return at(messages[i]).Before(at(messages[j]))
		})

		fn(messages)
	})
}
