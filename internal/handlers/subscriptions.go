package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/streamtube/backend/internal/logging"
	"github.com/streamtube/backend/internal/models"
	"github.com/streamtube/backend/internal/repositories"
)

// SubscriptionHandler manages the viewer-to-channel subscription edge.
type SubscriptionHandler struct {
	Users         UserStore
	Subscriptions SubscriptionStore
}

// Subscribe handles POST /api/v1/subscriptions/{username} (protected).
func (h SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	channel, ok := h.resolveChannel(w, r)
	if !ok {
		return
	}
	if channel.ID == user.ID {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "cannot subscribe to your own channel"})
		return
	}

	if err := h.Subscriptions.Subscribe(ctx, user.ID, channel.ID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "already subscribed"})
		case errors.Is(err, repositories.ErrNotFound):
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "channel not found"})
		default:
			logging.FromContext(ctx).Error("subscribe failed", "error", err, "channelId", channel.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to subscribe"})
		}
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

// Unsubscribe handles DELETE /api/v1/subscriptions/{username} (protected).
func (h SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	channel, ok := h.resolveChannel(w, r)
	if !ok {
		return
	}

	if err := h.Subscriptions.Unsubscribe(ctx, user.ID, channel.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "subscription not found"})
			return
		}
		logging.FromContext(ctx).Error("unsubscribe failed", "error", err, "channelId", channel.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to unsubscribe"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h SubscriptionHandler) resolveChannel(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	ctx := r.Context()

	username := strings.ToLower(strings.TrimSpace(r.PathValue("username")))
	if username == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "channel username is required"})
		return models.User{}, false
	}

	user, err := h.Users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "channel not found"})
			return models.User{}, false
		}
		logging.FromContext(ctx).Error("lookup channel failed", "error", err, "username", username)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to look up channel"})
		return models.User{}, false
	}

	return user, true
}
