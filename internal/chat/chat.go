// Package chat implements direct messaging between two users over the
// document store.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

// ConversationID derives the deterministic conversation address for a pair
// of users: both participants' uids in lexicographic order joined by an
// underscore, so either side computes the same id.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// Engine appends messages to conversation timelines.
type Engine struct {
	store store.Store
}

// NewEngine returns a chat engine backed by the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Send appends a message from sender to receiver. Messages that are empty
// after trimming are silently dropped. The store assigns the timestamp, so
// ordering never depends on sender clocks.
func (e *Engine) Send(ctx context.Context, senderID, receiverID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	_, err := e.store.Insert(ctx, models.MessagesCollection, map[string]any{
		"text":           text,
		"senderId":       senderID,
		"receiverId":     receiverID,
		"conversationId": ConversationID(senderID, receiverID),
		"timestamp":      store.ServerTimestamp,
		"seen":           false,
	})
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}
