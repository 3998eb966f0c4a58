package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/glassychat/backend/internal/logging"
)

// MessageHandler implements the message sending endpoint.
type MessageHandler struct {
	Chat     ChatEngine
	Sessions SessionManager
	Limiter  RateLimiter
}

// Send handles POST /api/v1/messages.
func (h MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	uid, ok := requireUser(w, r, h.Sessions)
	if !ok {
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "message") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many messages"})
		return
	}

	var req sendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid message payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "recipient uid is required"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "message text is required"})
		return
	}

	if err := h.Chat.Send(ctx, uid, req.To, req.Text); err != nil {
		logger.Error("message send failed", "from", uid, "to", req.To, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to send message"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"status": "sent"})
}

type sendMessagePayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}
