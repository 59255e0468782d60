package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamtube/backend/internal/logging"
	"github.com/streamtube/backend/internal/media"
	"github.com/streamtube/backend/internal/models"
	"github.com/streamtube/backend/internal/repositories"
)

// VideoHandler implements video publishing, the subscription feed and view
// recording.
type VideoHandler struct {
	Videos         VideoStore
	Media          MediaStorage
	Ingest         AssetIngestor
	MaxUploadBytes int64
}

// Publish handles POST /api/v1/videos (protected, multipart). The thumbnail
// is uploaded synchronously; the video file is spooled to disk and hosted by
// the background ingestor, which publishes the video once the upload lands.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		logger.Warn("invalid video upload form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid or oversized multipart form"})
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if title == "" || description == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "title and description are required"})
		return
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("duration")), 64)
	if err != nil || duration < 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "duration must be a non-negative number of seconds"})
		return
	}

	videoFile := formFile(r.MultipartForm, "video")
	thumbnail := formFile(r.MultipartForm, "thumbnail")
	if videoFile == nil || thumbnail == nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "video and thumbnail files are required"})
		return
	}

	thumbSrc, err := thumbnail.open()
	if err != nil {
		logger.Error("open uploaded thumbnail", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unable to read thumbnail"})
		return
	}
	defer thumbSrc.Close()

	thumbnailURL, err := h.Media.Save(ctx, thumbnail.storageKey("thumbnails"), thumbnail.contentType(), thumbSrc)
	if err != nil {
		logger.Error("thumbnail upload failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store thumbnail"})
		return
	}

	spoolPath, err := spoolUpload(videoFile)
	if err != nil {
		logger.Error("spool video upload", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to accept video upload"})
		return
	}

	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      user.ID,
		Title:        title,
		Description:  description,
		ThumbnailURL: thumbnailURL,
		Duration:     duration,
		AssetStatus:  models.AssetStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		_ = os.Remove(spoolPath)
		logger.Error("create video failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, errorStatus(err), map[string]string{"error": "failed to create video"})
		return
	}

	job := media.UploadJob{
		VideoID:     video.ID,
		Path:        spoolPath,
		Key:         videoFile.storageKey("videos"),
		ContentType: videoFile.contentType(),
	}
	if err := h.Ingest.Enqueue(ctx, job); err != nil {
		_ = os.Remove(spoolPath)
		logger.Error("enqueue video ingestion", "error", err, "videoId", video.ID)
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "video ingestion is unavailable"})
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]any{"video": video})
}

// Feed handles GET /api/v1/videos/feed (protected).
func (h VideoHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	videos, err := h.Videos.ListFeed(ctx, user.ID)
	if err != nil {
		logging.FromContext(ctx).Error("video feed failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load feed"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"videos": videos})
}

// View handles POST /api/v1/videos/{id}/view (protected). It bumps the view
// counter and records the video in the caller's watch history.
func (h VideoHandler) View(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	videoID := strings.TrimSpace(r.PathValue("id"))
	if videoID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "video id is required"})
		return
	}

	if err := h.Videos.RecordView(ctx, user.ID, videoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "video not found"})
			return
		}
		logging.FromContext(ctx).Error("record view failed", "error", err, "videoId", videoID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to record view"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// spoolUpload copies the uploaded video onto local disk so the HTTP request
// can finish before the object-store upload does.
func spoolUpload(file *uploadedFile) (string, error) {
	src, err := file.open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	ext := path.Ext(file.header.Filename)
	tmp, err := os.CreateTemp("", "streamtube-upload-*"+ext)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}
