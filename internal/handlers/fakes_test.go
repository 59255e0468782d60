package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/streamtube/backend/internal/auth"
	"github.com/streamtube/backend/internal/media"
	"github.com/streamtube/backend/internal/middleware"
	"github.com/streamtube/backend/internal/models"
	"github.com/streamtube/backend/internal/repositories"
)

var errInjected = errors.New("injected failure")

type inMemoryUserStore struct {
	mu        sync.Mutex
	users     map[string]models.User
	lookupErr error
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) add(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Email == email })
}

func (s *inMemoryUserStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Username == username })
}

func (s *inMemoryUserStore) findBy(match func(models.User) bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return models.User{}, s.lookupErr
	}
	for _, user := range s.users {
		if match(user) {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) UpdateDetails(ctx context.Context, id, fullName, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for otherID, other := range s.users {
		if otherID != id && other.Email == email {
			return models.User{}, repositories.ErrConflict
		}
	}
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	user.FullName = fullName
	user.Email = email
	s.users[id] = user
	return user, nil
}

func (s *inMemoryUserStore) UpdateAvatar(_ context.Context, id, url string) (models.User, error) {
	return s.updateField(id, func(u *models.User) { u.AvatarURL = url })
}

func (s *inMemoryUserStore) UpdateCoverImage(_ context.Context, id, url string) (models.User, error) {
	return s.updateField(id, func(u *models.User) { u.CoverImageURL = url })
}

func (s *inMemoryUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := s.updateField(id, func(u *models.User) { u.Password = passwordHash })
	return err
}

func (s *inMemoryUserStore) updateField(id string, apply func(*models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	apply(&user)
	s.users[id] = user
	return user, nil
}

type fakeMediaStore struct {
	mu     sync.Mutex
	saved  []string
	failOn string
	err    error
}

func (s *fakeMediaStore) Save(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && (s.failOn == "" || containsPrefix(key, s.failOn)) {
		return "", s.err
	}
	s.saved = append(s.saved, key)
	return "https://cdn.test/" + key, nil
}

func containsPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

type fakeVideoStore struct {
	mu      sync.Mutex
	videos  map[string]models.Video
	history []models.WatchedVideo
	viewErr error
}

func newFakeVideoStore() *fakeVideoStore {
	return &fakeVideoStore{videos: make(map[string]models.Video)}
}

func (s *fakeVideoStore) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = video
	return nil
}

func (s *fakeVideoStore) FindByID(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (s *fakeVideoStore) ListFeed(_ context.Context, _ string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed := make([]models.Video, 0, len(s.videos))
	for _, video := range s.videos {
		if video.IsPublished {
			feed = append(feed, video)
		}
	}
	return feed, nil
}

func (s *fakeVideoStore) RecordView(_ context.Context, _, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewErr != nil {
		return s.viewErr
	}
	if _, ok := s.videos[videoID]; !ok {
		return repositories.ErrNotFound
	}
	return nil
}

func (s *fakeVideoStore) WatchHistory(_ context.Context, _ string) ([]models.WatchedVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return make([]models.WatchedVideo, 0), nil
	}
	return s.history, nil
}

type fakeSubscriptionStore struct {
	mu    sync.Mutex
	edges map[string]struct{}
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{edges: make(map[string]struct{})}
}

func edgeKey(subscriberID, channelID string) string {
	return subscriberID + "->" + channelID
}

func (s *fakeSubscriptionStore) Subscribe(_ context.Context, subscriberID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(subscriberID, channelID)
	if _, ok := s.edges[key]; ok {
		return repositories.ErrConflict
	}
	s.edges[key] = struct{}{}
	return nil
}

func (s *fakeSubscriptionStore) Unsubscribe(_ context.Context, subscriberID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(subscriberID, channelID)
	if _, ok := s.edges[key]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.edges, key)
	return nil
}

type fakeProfileSource struct {
	profiles map[string]models.ChannelProfile
}

func (s fakeProfileSource) ChannelProfile(_ context.Context, username, _ string) (models.ChannelProfile, error) {
	profile, ok := s.profiles[username]
	if !ok {
		return models.ChannelProfile{}, repositories.ErrNotFound
	}
	return profile, nil
}

type fakeIngestor struct {
	mu   sync.Mutex
	jobs []media.UploadJob
	err  error
}

func (f *fakeIngestor) Enqueue(_ context.Context, job media.UploadJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

// newSessionManager wires a real token manager over an in-memory store so
// handler tests exercise real rotation semantics.
func newSessionManager(t *testing.T, userIDs ...string) (*auth.Manager, *auth.InMemoryTokenStore) {
	t.Helper()

	store := auth.NewInMemoryTokenStore()
	for _, id := range userIDs {
		store.AddUser(id)
	}

	manager, err := auth.NewManager(auth.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}, store)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager, store
}

func authenticatedRequest(t *testing.T, user models.User, method, target string, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(middleware.ContextWithUser(req.Context(), user))
}

// multipartBody builds a multipart form with string fields and in-memory files.
func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for name, filename := range files {
		part, err := writer.CreateFormFile(name, filename)
		if err != nil {
			t.Fatalf("create file %s: %v", name, err)
		}
		if _, err := fmt.Fprint(part, "binary-content"); err != nil {
			t.Fatalf("write file %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}
