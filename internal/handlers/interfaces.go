package handlers

import (
	"context"
	"io"

	"github.com/streamtube/backend/internal/media"
	"github.com/streamtube/backend/internal/models"
)

// UserStore captures the persistence operations required by the user-facing handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UpdateDetails(ctx context.Context, id, fullName, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, id, url string) (models.User, error)
	UpdateCoverImage(ctx context.Context, id, url string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SessionManager issues, rotates, verifies and revokes session token pairs.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Rotate(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
	Revoke(ctx context.Context, userID string) error
}

// VideoStore captures persistence for video publishing and watch history.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	ListFeed(ctx context.Context, userID string) ([]models.Video, error)
	RecordView(ctx context.Context, userID, videoID string) error
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
}

// SubscriptionStore maintains subscriber->channel edges.
type SubscriptionStore interface {
	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
}

// ProfileSource serves the aggregated channel profile view.
type ProfileSource interface {
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
}

// MediaStorage hosts uploaded content and returns its public location.
type MediaStorage interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// AssetIngestor schedules background persistence of video files.
type AssetIngestor interface {
	Enqueue(ctx context.Context, job media.UploadJob) error
}
