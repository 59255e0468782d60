package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "streamtube-test",
	}
}

func newTestManager(t *testing.T) (*Manager, *InMemoryTokenStore) {
	t.Helper()
	store := NewInMemoryTokenStore()
	manager, err := NewManager(testConfig(), store)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager, store
}

func TestManagerIssuePersistsRefreshToken(t *testing.T) {
	manager, store := newTestManager(t)
	store.AddUser("user-1")

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", tokens)
	}
	if tokens.AccessToken == tokens.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	stored, err := store.RefreshToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("read stored token: %v", err)
	}
	if stored != tokens.RefreshToken {
		t.Fatal("persisted refresh token does not match the issued one")
	}
}

func TestManagerIssueUnknownUser(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, err := manager.Issue(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound got %v", err)
	}
	if _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestManagerRotateInvalidatesOldToken(t *testing.T) {
	manager, store := newTestManager(t)
	store.AddUser("user-1")

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// The signing input includes issued-at with second resolution; step the
	// clock so the rotated pair differs from the original.
	manager.NowFunc = func() time.Time { return time.Now().UTC().Add(2 * time.Second) }

	rotated, err := manager.Rotate(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if _, err := manager.Rotate(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stale token must be rejected, got %v", err)
	}

	if _, err := manager.Rotate(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("current token must still rotate: %v", err)
	}
}

func TestManagerRotateRejectsGarbage(t *testing.T) {
	manager, store := newTestManager(t)
	store.AddUser("user-1")

	for _, token := range []string{"", "   ", "not-a-jwt", "aaaa.bbbb.cccc"} {
		if _, err := manager.Rotate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized got %v", token, err)
		}
	}
}

func TestManagerRotateRejectsForeignSignature(t *testing.T) {
	manager, store := newTestManager(t)
	store.AddUser("user-1")
	if _, err := manager.Issue(context.Background(), "user-1"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	otherCfg := testConfig()
	otherCfg.RefreshSecret = []byte("a-different-refresh-secret")
	other, err := NewManager(otherCfg, store)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	foreign, err := other.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}

	if _, err := manager.Rotate(context.Background(), foreign.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized got %v", err)
	}
}

func TestManagerRotateSingleWinner(t *testing.T) {
	manager, store := newTestManager(t)
	store.AddUser("user-1")

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	manager.NowFunc = func() time.Time { return time.Now().UTC().Add(2 * time.Second) }

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := manager.Rotate(context.Background(), tokens.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrUnauthorized):
			losses++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if losses != n-1 {
		t.Fatalf("expected %d losers, got %d", n-1, losses)
	}
}

func TestManagerAuthenticate(t *testing.T) {
	manager, store := newTestManager(t)
	store.AddUser("user-1")

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := manager.Authenticate(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1 got %q", userID)
	}

	// A refresh token must never pass as an access token.
	if _, err := manager.Authenticate(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized got %v", err)
	}

	tampered := tokens.AccessToken[:len(tokens.AccessToken)-2] + "xx"
	if _, err := manager.Authenticate(context.Background(), tampered); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("tampered token: expected ErrUnauthorized got %v", err)
	}

	manager.NowFunc = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if _, err := manager.Authenticate(context.Background(), tokens.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token: expected ErrUnauthorized got %v", err)
	}
}

func TestManagerRevoke(t *testing.T) {
	manager, store := newTestManager(t)
	store.AddUser("user-1")

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := manager.Revoke(context.Background(), "user-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := manager.Rotate(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	store := NewInMemoryTokenStore()

	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	if _, err := NewManager(cfg, store); err == nil {
		t.Fatal("expected error for identical secrets")
	}

	cfg = testConfig()
	cfg.AccessTTL = 0
	if _, err := NewManager(cfg, store); err == nil {
		t.Fatal("expected error for zero TTL")
	}

	if _, err := NewManager(testConfig(), nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Fatal("expected match")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Fatal("expected mismatch")
	}
	if VerifyPassword("", "anything") {
		t.Fatal("missing hash must fail closed")
	}
	if VerifyPassword("not-a-bcrypt-hash", "anything") {
		t.Fatal("malformed hash must fail closed")
	}
}
