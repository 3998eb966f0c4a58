package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/glassychat/backend/internal/logging"
	"github.com/glassychat/backend/internal/models"
	"github.com/glassychat/backend/internal/store"
)

// maxAvatarBytes caps avatar uploads at 5 MiB.
const maxAvatarBytes = 5 << 20

// UserHandler implements directory and profile endpoints.
type UserHandler struct {
	Directory DirectoryService
	Sessions  SessionManager
	Avatars   AvatarStorage
}

// Search handles GET /api/v1/users/search?q= requests.
func (h UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	uid, ok := requireUser(w, r, h.Sessions)
	if !ok {
		return
	}

	ctx := r.Context()
	query := r.URL.Query().Get("q")

	profiles, err := h.Directory.Search(ctx, uid, query)
	if err != nil {
		logging.FromContext(ctx).Error("user search failed", "query", query, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}
	if profiles == nil {
		profiles = []models.UserProfile{}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"users": profiles})
}

// Me handles GET and PATCH /api/v1/users/me requests.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.profile(w, r)
	case http.MethodPatch:
		h.updateProfile(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h UserHandler) profile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r, h.Sessions)
	if !ok {
		return
	}

	ctx := r.Context()
	profile, err := h.Directory.Profile(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "profile not found"})
			return
		}
		logging.FromContext(ctx).Error("profile lookup failed", "uid", uid, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, profile)
}

func (h UserHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r, h.Sessions)
	if !ok {
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "display name is required"})
		return
	}

	if err := h.Directory.SetDisplayName(ctx, uid, req.DisplayName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "profile not found"})
			return
		}
		logger.Error("profile update failed", "uid", uid, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to update profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "updated"})
}

// UploadAvatar handles POST /api/v1/users/me/avatar multipart requests.
func (h UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
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

	if h.Avatars == nil {
		logger.Error("avatar storage unavailable")
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "avatar uploads are not enabled"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		logger.Warn("invalid avatar upload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "avatar file is required"})
		return
	}
	defer file.Close()

	key := "avatars/" + uid + "/" + uuid.NewString() + strings.ToLower(path.Ext(header.Filename))
	location, err := h.Avatars.Save(ctx, key, file)
	if err != nil {
		logger.Error("avatar upload failed", "uid", uid, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to store avatar"})
		return
	}

	if err := h.Directory.SetPhotoURL(ctx, uid, location); err != nil {
		logger.Error("avatar profile update failed", "uid", uid, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to update profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"photoURL": location})
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
}
