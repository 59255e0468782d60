package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/streamtube/backend/internal/logging"
	"github.com/streamtube/backend/internal/repositories"
)

// ChannelHandler serves the read-only derived views: channel profiles and the
// caller's watch history.
type ChannelHandler struct {
	Profiles ProfileSource
	Videos   VideoStore
}

// Profile handles GET /api/v1/users/c/{username} (protected).
func (h ChannelHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	viewer, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	username := strings.ToLower(strings.TrimSpace(r.PathValue("username")))
	if username == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	profile, err := h.Profiles.ChannelProfile(ctx, username, viewer.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "channel not found"})
			return
		}
		logger.Error("channel profile lookup failed", "error", err, "username", username)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load channel"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, profile)
}

// History handles GET /api/v1/users/history (protected). An empty history is
// an empty list, not an error.
func (h ChannelHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	history, err := h.Videos.WatchHistory(ctx, user.ID)
	if err != nil {
		logging.FromContext(ctx).Error("watch history lookup failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load watch history"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"history": history})
}
