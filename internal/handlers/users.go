package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/streamtube/backend/internal/logging"
	"github.com/streamtube/backend/internal/models"
	"github.com/streamtube/backend/internal/repositories"
)

// UserHandler implements the profile endpoints for the authenticated user.
type UserHandler struct {
	Users UserStore
	Media MediaStorage
}

// CurrentUser handles GET /api/v1/users/current-user (protected).
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	respondJSON(ctx, w, http.StatusOK, userResponse{User: user.Public()})
}

// UpdateDetails handles PATCH /api/v1/users/update-details (protected).
func (h UserHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	var req updateDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update-details payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FullName == "" || req.Email == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "fullName and email are required"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}

	updated, err := h.Users.UpdateDetails(ctx, user.ID, req.FullName, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("update-details email conflict", "userId", user.ID, "email", req.Email)
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "email already registered"})
			return
		}
		logger.Error("update-details failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, errorStatus(err), map[string]string{"error": "failed to update account"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, userResponse{User: updated.Public()})
}

// UpdateAvatar handles PATCH /api/v1/users/avatar (protected, single file).
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateMedia(w, r, "avatar", "avatars", h.Users.UpdateAvatar)
}

// UpdateCoverImage handles PATCH /api/v1/users/cover-image (protected, single file).
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateMedia(w, r, "coverImage", "covers", h.Users.UpdateCoverImage)
}

func (h UserHandler) updateMedia(
	w http.ResponseWriter,
	r *http.Request,
	field, prefix string,
	update func(ctx context.Context, id, url string) (models.User, error),
) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Warn("invalid media upload form", "field", field, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file := formFile(r.MultipartForm, field)
	if file == nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": field + " file is required"})
		return
	}

	src, err := file.open()
	if err != nil {
		logger.Error("open uploaded media", "field", field, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unable to read uploaded file"})
		return
	}
	defer src.Close()

	// The row is only touched after the object store accepted the upload.
	url, err := h.Media.Save(ctx, file.storageKey(prefix), file.contentType(), src)
	if err != nil {
		logger.Error("media upload failed", "field", field, "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store " + field})
		return
	}

	updated, err := update(ctx, user.ID, url)
	if err != nil {
		logger.Error("media update failed", "field", field, "error", err, "userId", user.ID)
		respondJSON(ctx, w, errorStatus(err), map[string]string{"error": "failed to update " + field})
		return
	}

	respondJSON(ctx, w, http.StatusOK, userResponse{User: updated.Public()})
}

type updateDetailsRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}
