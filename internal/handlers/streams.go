package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/glassychat/backend/internal/logging"
	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

// StreamHandler forwards live views to clients as server-sent events. Each
// event carries the full current result set; clients replace their state
// with every snapshot rather than patching it.
type StreamHandler struct {
	Views    ViewStreamer
	Sessions SessionManager
}

// Friends handles GET /api/v1/friends/stream.
func (h StreamHandler) Friends(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.streamSetup(w, r)
	if !ok {
		return
	}

	h.serve(w, r, func(push func(any)) (store.CancelFunc, error) {
		return h.Views.Friends(r.Context(), uid, func(profiles []models.UserProfile) {
			push(profiles)
		})
	})
}

// Requests handles GET /api/v1/friends/requests/stream?direction=incoming|outgoing.
func (h StreamHandler) Requests(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.streamSetup(w, r)
	if !ok {
		return
	}

	subscribe := h.Views.IncomingRequests
	switch r.URL.Query().Get("direction") {
	case "", "incoming":
	case "outgoing":
		subscribe = h.Views.OutgoingRequests
	default:
		respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "direction must be incoming or outgoing"})
		return
	}

	h.serve(w, r, func(push func(any)) (store.CancelFunc, error) {
		return subscribe(r.Context(), uid, func(requests []models.FriendRequest) {
			push(requests)
		})
	})
}

// Messages handles GET /api/v1/messages/stream?peer=UID.
func (h StreamHandler) Messages(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.streamSetup(w, r)
	if !ok {
		return
	}

	peer := r.URL.Query().Get("peer")
	if peer == "" {
		respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "peer uid is required"})
		return
	}

	h.serve(w, r, func(push func(any)) (store.CancelFunc, error) {
		return h.Views.Messages(r.Context(), uid, peer, func(messages []models.Message) {
			push(messages)
		})
	})
}

func (h StreamHandler) streamSetup(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	return requireUser(w, r, h.Sessions)
}

// serve runs the SSE loop: subscribe, forward snapshots as they arrive, and
// tear the subscription down when the client disconnects. Snapshots are
// coalesced so a slow client only ever lags to the newest state.
func (h StreamHandler) serve(w http.ResponseWriter, r *http.Request, subscribe func(push func(any)) (store.CancelFunc, error)) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming unsupported by response writer")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	snapshots := make(chan []byte, 1)
	push := func(payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Error("encode stream snapshot", "error", err)
			return
		}
		for {
			select {
			case snapshots <- data:
				return
			default:
				select {
				case <-snapshots:
				default:
				}
			}
		}
	}

	cancel, err := subscribe(push)
	if err != nil {
		logger.Error("stream subscription failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to open stream"})
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-snapshots:
			if _, err := w.Write([]byte("event: snapshot\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
