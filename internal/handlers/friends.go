package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/glassychat/backend/internal/friends"
	"github.com/glassychat/backend/internal/logging"
)

// FriendHandler implements the friend request endpoints.
type FriendHandler struct {
	Friends  FriendEngine
	Sessions SessionManager
	Limiter  RateLimiter
}

// Request handles POST /api/v1/friends/request.
func (h FriendHandler) Request(w http.ResponseWriter, r *http.Request) {
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

	if !allowRequest(h.Limiter, r, "friend-request") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many friend requests"})
		return
	}

	var req friendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid friend request payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.ToUID = strings.TrimSpace(req.ToUID)
	if req.ToUID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "recipient uid is required"})
		return
	}

	if err := h.Friends.SendRequest(ctx, uid, req.ToUID); err != nil {
		if errors.Is(err, friends.ErrSelfRequest) {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "cannot send a friend request to yourself"})
			return
		}
		logger.Error("friend request failed", "from", uid, "to", req.ToUID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to send friend request"})
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"status": "request recorded"})
}

// Respond handles POST /api/v1/friends/respond: the recipient accepts or
// rejects a pending request.
func (h FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
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

	var req friendRespondPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid friend respond payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.RequestID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "request id is required"})
		return
	}

	request, err := h.Friends.Request(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, friends.ErrRequestNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "friend request not found"})
			return
		}
		logger.Error("friend request lookup failed", "requestId", req.RequestID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load friend request"})
		return
	}

	if request.ToUID != uid {
		logger.Warn("friend respond by non-recipient", "requestId", req.RequestID, "uid", uid)
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "only the recipient can respond"})
		return
	}

	switch req.Action {
	case "accept":
		err = h.Friends.Accept(ctx, req.RequestID)
	case "reject":
		err = h.Friends.Reject(ctx, req.RequestID)
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "action must be accept or reject"})
		return
	}
	if err != nil {
		logger.Error("friend respond failed", "requestId", req.RequestID, "action", req.Action, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to update friend request"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": req.Action + "ed"})
}

type friendRequestPayload struct {
	ToUID string `json:"toUid"`
}

type friendRespondPayload struct {
	RequestID string `json:"requestId"`
	Action    string `json:"action"`
}
