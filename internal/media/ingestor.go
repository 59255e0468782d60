package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// AssetUpdater persists upload outcomes for videos.
type AssetUpdater interface {
	MarkAssetReady(ctx context.Context, videoID, location string) error
	MarkAssetFailed(ctx context.Context, videoID string) error
}

// Storage hosts media content and returns its public location.
type Storage interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// IngestorConfig controls the concurrency characteristics of the ingestor.
type IngestorConfig struct {
	QueueSize     int
	Workers       int
	UploadTimeout time.Duration
}

// UploadJob describes a spooled video file waiting to be hosted.
type UploadJob struct {
	VideoID     string
	Path        string
	Key         string
	ContentType string
}

// Ingestor uploads spooled video files to the media store in the background
// and flips the video's asset status to ready or failed.
type Ingestor struct {
	storage Storage
	updater AssetUpdater
	logger  *slog.Logger
	timeout time.Duration

	jobs   chan UploadJob
	closed chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var errIngestorClosed = errors.New("media ingestor closed")

// NewIngestor constructs a background worker pool that persists video assets.
func NewIngestor(storage Storage, updater AssetUpdater, cfg IngestorConfig, logger *slog.Logger) *Ingestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ing := &Ingestor{
		storage: storage,
		updater: updater,
		logger:  logger,
		timeout: cfg.UploadTimeout,
		jobs:    make(chan UploadJob, cfg.QueueSize),
		closed:  make(chan struct{}),
	}

	ing.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go ing.worker()
	}

	return ing
}

// Enqueue schedules the upload. The caller hands over ownership of the
// spooled file; it is removed once the job finishes either way.
func (i *Ingestor) Enqueue(ctx context.Context, job UploadJob) error {
	if job.VideoID == "" || job.Path == "" || job.Key == "" {
		return errors.New("media: incomplete upload job")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.closed:
		return errIngestorClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.closed:
		return errIngestorClosed
	case i.jobs <- job:
		return nil
	}
}

// Shutdown stops accepting work and waits for queued jobs to drain.
func (i *Ingestor) Shutdown(ctx context.Context) error {
	i.once.Do(func() {
		close(i.closed)
		close(i.jobs)
	})

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (i *Ingestor) worker() {
	defer i.wg.Done()
	for job := range i.jobs {
		i.process(job)
	}
}

func (i *Ingestor) process(job UploadJob) {
	defer func() {
		if err := os.Remove(job.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			i.logger.Warn("remove spooled asset", "videoId", job.VideoID, "path", job.Path, "error", err)
		}
	}()

	// Jobs already in the queue finish during shutdown, so the upload runs on
	// its own deadline rather than a context canceled by Shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	location, err := i.upload(ctx, job)
	if err != nil {
		i.logger.Error("video asset ingestion failed", "videoId", job.VideoID, "error", err)
		if err := i.updater.MarkAssetFailed(ctx, job.VideoID); err != nil {
			i.logger.Error("mark asset failed", "videoId", job.VideoID, "error", err)
		}
		return
	}

	if err := i.updater.MarkAssetReady(ctx, job.VideoID, location); err != nil {
		i.logger.Error("mark asset ready", "videoId", job.VideoID, "error", err)
		return
	}

	i.logger.Info("video asset hosted", "videoId", job.VideoID, "location", location)
}

func (i *Ingestor) upload(ctx context.Context, job UploadJob) (string, error) {
	file, err := os.Open(job.Path)
	if err != nil {
		return "", fmt.Errorf("open spooled asset: %w", err)
	}
	defer file.Close()

	location, err := i.storage.Save(ctx, job.Key, job.ContentType, file)
	if err != nil {
		return "", err
	}
	return location, nil
}
