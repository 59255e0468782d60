package profiles

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/streamtube/backend/internal/models"
)

// ErrSourceUnavailable indicates the profile source is not configured.
var ErrSourceUnavailable = errors.New("channel profile source unavailable")

// Source computes the aggregated channel profile view. The subscription
// repository is the canonical implementation.
type Source interface {
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
}

type cacheKey struct {
	username string
	viewerID string
}

type cacheEntry struct {
	profile models.ChannelProfile
	expires time.Time
}

// CachingSource wraps another Source with a TTL-based in-memory cache. The
// viewer id is part of the key because the view embeds the viewer's
// subscription status.
type CachingSource struct {
	base Source
	ttl  time.Duration

	mu    sync.RWMutex
	items map[cacheKey]cacheEntry
}

// NewCachingSource returns a Source that caches lookups for the provided TTL.
func NewCachingSource(base Source, ttl time.Duration) *CachingSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingSource{
		base:  base,
		ttl:   ttl,
		items: make(map[cacheKey]cacheEntry),
	}
}

// ChannelProfile returns a cached profile when available, otherwise it
// delegates to the underlying source and stores the result. Only successful
// lookups are cached, so a profile created after a miss shows up immediately.
func (c *CachingSource) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	if c == nil || c.base == nil {
		return models.ChannelProfile{}, ErrSourceUnavailable
	}

	key := cacheKey{username: username, viewerID: viewerID}
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.profile, nil
	}

	profile, err := c.base.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		return models.ChannelProfile{}, err
	}

	c.mu.Lock()
	c.items[key] = cacheEntry{profile: profile, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return profile, nil
}
