package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamtube/backend/internal/auth"
	"github.com/streamtube/backend/internal/config"
	"github.com/streamtube/backend/internal/db"
	"github.com/streamtube/backend/internal/handlers"
	"github.com/streamtube/backend/internal/media"
	"github.com/streamtube/backend/internal/middleware"
	"github.com/streamtube/backend/internal/profiles"
	"github.com/streamtube/backend/internal/repositories"
	"github.com/streamtube/backend/internal/storage"
)

// buildDependencies wires together the concrete implementations used by the
// HTTP handlers. The returned cleanup drains background workers and must be
// called before the process exits.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	users := repositories.NewPostgresUserRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)
	subscriptions := repositories.NewPostgresSubscriptionRepository(pool)

	sessions, err := auth.NewManager(auth.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.TokenIssuer,
	}, users)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure session manager: %w", err)
	}

	mediaStore, err := storage.NewS3MediaStore(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure media store: %w", err)
	}

	ingestor := media.NewIngestor(mediaStore, videos, media.IngestorConfig{
		QueueSize: cfg.Ingest.QueueSize,
		Workers:   cfg.Ingest.Workers,
	}, slog.Default())

	limiter := middleware.NewKeyRateLimiter(cfg.LoginRateRequests, cfg.LoginRateWindow, cfg.LoginRateBurst, 10*time.Minute)

	deps := handlers.Dependencies{
		Users:          users,
		Sessions:       sessions,
		Videos:         videos,
		Subscriptions:  subscriptions,
		Profiles:       profiles.NewCachingSource(subscriptions, cfg.ProfileCacheTTL),
		Media:          mediaStore,
		Ingest:         ingestor,
		AuthLimiter:    limiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	cleanup := func(ctx context.Context) error {
		return ingestor.Shutdown(ctx)
	}

	return deps, cleanup, nil
}
