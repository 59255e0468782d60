package repositories

import (
	"context"

	"github.com/streamtube/backend/internal/models"
)

// VideoRepository defines persistence for uploaded videos and watch history.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	ListFeed(ctx context.Context, userID string) ([]models.Video, error)
	RecordView(ctx context.Context, userID, videoID string) error
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
}

// SubscriptionRepository maintains subscriber->channel edges and the derived
// channel profile view.
type SubscriptionRepository interface {
	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
}
