package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeStorage struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func (s *fakeStorage) Save(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	s.saved[key] = string(body)
	s.mu.Unlock()
	return "https://cdn.example.com/" + key, nil
}

type fakeUpdater struct {
	mu     sync.Mutex
	ready  map[string]string
	failed map[string]bool
}

func (u *fakeUpdater) MarkAssetReady(_ context.Context, videoID, location string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ready == nil {
		u.ready = make(map[string]string)
	}
	u.ready[videoID] = location
	return nil
}

func (u *fakeUpdater) MarkAssetFailed(_ context.Context, videoID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failed == nil {
		u.failed = make(map[string]bool)
	}
	u.failed[videoID] = true
	return nil
}

func spoolFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.mp4")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write spool file: %v", err)
	}
	return path
}

func TestIngestorUploadsAndMarksReady(t *testing.T) {
	storage := &fakeStorage{}
	updater := &fakeUpdater{}
	ing := NewIngestor(storage, updater, IngestorConfig{QueueSize: 4, Workers: 2}, nil)

	path := spoolFile(t, "video-bytes")
	job := UploadJob{VideoID: "vid-1", Path: path, Key: "videos/vid-1.mp4", ContentType: "video/mp4"}
	if err := ing.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ing.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := storage.saved["videos/vid-1.mp4"]; got != "video-bytes" {
		t.Fatalf("expected uploaded body, got %q", got)
	}
	if updater.ready["vid-1"] != "https://cdn.example.com/videos/vid-1.mp4" {
		t.Fatalf("expected ready location, got %q", updater.ready["vid-1"])
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected spooled file to be removed")
	}
}

func TestIngestorMarksFailedOnUploadError(t *testing.T) {
	storage := &fakeStorage{err: errors.New("bucket unavailable")}
	updater := &fakeUpdater{}
	ing := NewIngestor(storage, updater, IngestorConfig{}, nil)

	path := spoolFile(t, "video-bytes")
	if err := ing.Enqueue(context.Background(), UploadJob{VideoID: "vid-2", Path: path, Key: "videos/vid-2.mp4"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ing.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if !updater.failed["vid-2"] {
		t.Fatal("expected the video to be marked failed")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected spooled file to be removed after failure")
	}
}

func TestIngestorRejectsAfterShutdown(t *testing.T) {
	ing := NewIngestor(&fakeStorage{}, &fakeUpdater{}, IngestorConfig{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ing.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	err := ing.Enqueue(context.Background(), UploadJob{VideoID: "vid-3", Path: "/tmp/x", Key: "k"})
	if !errors.Is(err, errIngestorClosed) {
		t.Fatalf("expected errIngestorClosed got %v", err)
	}
}

func TestIngestorRejectsIncompleteJob(t *testing.T) {
	ing := NewIngestor(&fakeStorage{}, &fakeUpdater{}, IngestorConfig{}, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = ing.Shutdown(ctx)
	}()

	if err := ing.Enqueue(context.Background(), UploadJob{VideoID: "vid-4"}); err == nil {
		t.Fatal("expected error for incomplete job")
	}
}
