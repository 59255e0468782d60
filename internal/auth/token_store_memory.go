package auth

import (
	"context"
	"sync"
)

// NewInMemoryTokenStore returns a TokenStore backed by an in-memory map.
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[string]string)}
}

// InMemoryTokenStore implements TokenStore for tests and local development.
// Users must be registered with AddUser before tokens can be stored.
type InMemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

// AddUser registers a user id with no refresh token outstanding.
func (s *InMemoryTokenStore) AddUser(userID string) {
	s.mu.Lock()
	if _, ok := s.tokens[userID]; !ok {
		s.tokens[userID] = ""
	}
	s.mu.Unlock()
}

// RefreshToken returns the currently persisted refresh token for the user.
func (s *InMemoryTokenStore) RefreshToken(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return token, nil
}

// SetRefreshToken overwrites the user's refresh token unconditionally.
func (s *InMemoryTokenStore) SetRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		return ErrUserNotFound
	}
	s.tokens[userID] = token
	return nil
}

// SwapRefreshToken replaces the stored token only while it still equals
// current. The map mutex makes the read-compare-write atomic, mirroring the
// conditional UPDATE the postgres store performs.
func (s *InMemoryTokenStore) SwapRefreshToken(_ context.Context, userID, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tokens[userID]
	if !ok {
		return ErrUserNotFound
	}
	if stored != current {
		return ErrTokenMismatch
	}
	s.tokens[userID] = next
	return nil
}

// ClearRefreshToken removes any outstanding refresh token for the user.
func (s *InMemoryTokenStore) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		return ErrUserNotFound
	}
	s.tokens[userID] = ""
	return nil
}

var _ TokenStore = (*InMemoryTokenStore)(nil)
