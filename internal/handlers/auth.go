package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamtube/backend/internal/auth"
	"github.com/streamtube/backend/internal/logging"
	"github.com/streamtube/backend/internal/models"
	"github.com/streamtube/backend/internal/repositories"
)

// AuthHandler implements registration, login and session lifecycle endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Media    MediaStorage
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

// Register handles POST /api/v1/users/register (multipart).
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "register") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many registration attempts"})
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Warn("invalid registration form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	username := strings.ToLower(strings.TrimSpace(r.FormValue("username")))
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	fullName := strings.TrimSpace(r.FormValue("fullName"))
	// The password is hashed exactly as submitted; the trim is only for the
	// blankness check so login verifies the same bytes the user typed.
	password := r.FormValue("password")

	if username == "" || email == "" || fullName == "" || strings.TrimSpace(password) == "" {
		logger.Warn("registration missing fields", "username", username, "email", email)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "all fields are required"})
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		logger.Warn("registration invalid email", "email", email, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}

	if taken, err := h.identityTaken(r, username, email); err != nil {
		logger.Error("registration lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to verify existing accounts"})
		return
	} else if taken {
		logger.Warn("registration conflict", "username", username, "email", email)
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "username or email already registered"})
		return
	}

	avatar := formFile(r.MultipartForm, "avatar")
	if avatar == nil {
		logger.Warn("registration missing avatar", "username", username)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "avatar is required"})
		return
	}
	coverImage := formFile(r.MultipartForm, "coverImage")

	// Nothing is written to the store until every upload has succeeded, so a
	// failed upload never leaves a partial user record behind.
	avatarURL, err := h.uploadImage(r, avatar, "avatars")
	if err != nil {
		logger.Error("avatar upload failed", "username", username, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store avatar"})
		return
	}

	var coverImageURL string
	if coverImage != nil {
		coverImageURL, err = h.uploadImage(r, coverImage, "covers")
		if err != nil {
			logger.Error("cover image upload failed", "username", username, "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store cover image"})
			return
		}
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("registration failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	now := h.now()
	user := models.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		FullName:      fullName,
		Password:      hashed,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("registration conflict on insert", "username", username)
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "username or email already registered"})
			return
		}
		logger.Error("registration failed to create user", "error", err, "username", username)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, userResponse{User: user.Public()})
}

// Login handles POST /api/v1/users/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many login attempts"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if (req.Username == "" && req.Email == "") || req.Password == "" {
		logger.Warn("login missing credentials")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username or email and password are required"})
		return
	}

	var (
		user models.User
		err  error
	)
	if req.Username != "" {
		user, err = h.Users.FindByUsername(ctx, req.Username)
	} else {
		user, err = h.Users.FindByEmail(ctx, req.Email)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("login for unknown user")
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		logger.Error("login user lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to verify credentials"})
		return
	}

	if !auth.VerifyPassword(user.Password, req.Password) {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	setSessionCookies(w, r, tokens)
	respondJSON(ctx, w, http.StatusOK, sessionResponse{User: user.Public(), Tokens: tokens})
}

// Logout handles POST /api/v1/users/logout (protected).
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	if err := h.Sessions.Revoke(ctx, user.ID); err != nil {
		logging.FromContext(ctx).Error("logout failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to end session"})
		return
	}

	clearSessionCookies(w, r)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Refresh handles POST /api/v1/users/refresh-token. The incoming token is
// read from the refreshToken cookie or the JSON body. Every rotation failure
// maps to the same generic 401 so callers cannot probe which check rejected
// them.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	token := refreshTokenFromRequest(r)
	if token == "" {
		logger.Warn("refresh without token")
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "refresh token is invalid or has been used"})
		return
	}

	tokens, err := h.Sessions.Rotate(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			logger.Warn("refresh token rejected")
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "refresh token is invalid or has been used"})
			return
		}
		logger.Error("refresh failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to refresh session"})
		return
	}

	setSessionCookies(w, r, tokens)
	respondJSON(ctx, w, http.StatusOK, tokensResponse{Tokens: tokens})
}

// ChangePassword handles POST /api/v1/users/change-password (protected).
func (h AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid change-password payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.NewPassword = strings.TrimSpace(req.NewPassword)
	if req.NewPassword == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "new password is required"})
		return
	}

	if !auth.VerifyPassword(user.Password, req.OldPassword) {
		logger.Warn("change-password old password mismatch", "userId", user.ID)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "old password is incorrect"})
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("change-password failed to hash", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	if err := h.Users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		logger.Error("change-password update failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, errorStatus(err), map[string]string{"error": "failed to change password"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "password changed"})
}

func (h AuthHandler) identityTaken(r *http.Request, username, email string) (bool, error) {
	ctx := r.Context()

	if _, err := h.Users.FindByUsername(ctx, username); err == nil {
		return true, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return false, err
	}

	if _, err := h.Users.FindByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return false, err
	}

	return false, nil
}

func (h AuthHandler) uploadImage(r *http.Request, file *uploadedFile, prefix string) (string, error) {
	src, err := file.open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	return h.Media.Save(r.Context(), file.storageKey(prefix), file.contentType(), src)
}

func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type userResponse struct {
	User models.PublicUser `json:"user"`
}

type tokensResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
}

type sessionResponse struct {
	User   models.PublicUser    `json:"user"`
	Tokens models.SessionTokens `json:"tokens"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
