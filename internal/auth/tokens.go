package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/streamtube/backend/internal/models"
)

var (
	// ErrUnauthorized covers every token validation failure. Rotation
	// deliberately collapses signature, expiry, lookup and replay failures
	// into this one sentinel so callers cannot tell which step rejected them.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound indicates the token subject does not map to a user.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenMismatch indicates a conditional refresh-token update lost the
	// race against a concurrent rotation.
	ErrTokenMismatch = errors.New("refresh token mismatch")
)

// TokenStore persists the single currently-valid refresh token per user.
type TokenStore interface {
	RefreshToken(ctx context.Context, userID string) (string, error)
	SetRefreshToken(ctx context.Context, userID, token string) error
	// SwapRefreshToken replaces the stored token only while it still equals
	// current, returning ErrTokenMismatch otherwise.
	SwapRefreshToken(ctx context.Context, userID, current, next string) error
	ClearRefreshToken(ctx context.Context, userID string) error
}

// Config captures the signing material for both token families. The two
// secrets must differ so an access token can never be replayed as a refresh
// token.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Manager issues, rotates and verifies session token pairs.
type Manager struct {
	cfg   Config
	store TokenStore

	// NowFunc overrides the time source for tests.
	NowFunc func() time.Time
}

// NewManager validates the configuration and constructs a Manager.
func NewManager(cfg Config, store TokenStore) (*Manager, error) {
	if store == nil {
		return nil, errors.New("auth: token store must not be nil")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("auth: both token secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token TTLs must be positive")
	}
	return &Manager{cfg: cfg, store: store}, nil
}

// Issue mints a new access/refresh pair for the user and persists the refresh
// token as the single valid rotation value, superseding any prior one. Either
// both tokens are returned and the record updated, or neither.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("auth: user id must be provided")
	}

	tokens, err := m.mint(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := m.store.SetRefreshToken(ctx, userID, tokens.RefreshToken); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.SessionTokens{}, ErrUserNotFound
		}
		return models.SessionTokens{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return tokens, nil
}

// Rotate exchanges a refresh token for a new pair. The persisted value is
// re-fetched on every call and the replacement happens through a conditional
// update, so of N concurrent callers presenting the same token at most one
// succeeds; the rest fail ErrUnauthorized.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return models.SessionTokens{}, ErrUnauthorized
	}

	userID, err := m.subject(refreshToken, m.cfg.RefreshSecret)
	if err != nil {
		return models.SessionTokens{}, ErrUnauthorized
	}

	stored, err := m.store.RefreshToken(ctx, userID)
	if err != nil {
		return models.SessionTokens{}, ErrUnauthorized
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return models.SessionTokens{}, ErrUnauthorized
	}

	tokens, err := m.mint(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := m.store.SwapRefreshToken(ctx, userID, refreshToken, tokens.RefreshToken); err != nil {
		if errors.Is(err, ErrTokenMismatch) || errors.Is(err, ErrUserNotFound) {
			return models.SessionTokens{}, ErrUnauthorized
		}
		return models.SessionTokens{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return tokens, nil
}

// Authenticate verifies an access token and returns the user id it was issued
// for. The check is stateless; callers wanting to confirm the account still
// exists re-fetch the user themselves.
func (m *Manager) Authenticate(_ context.Context, accessToken string) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", ErrUnauthorized
	}
	return m.subject(accessToken, m.cfg.AccessSecret)
}

// Revoke clears the user's persisted refresh token, ending the session.
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := m.store.ClearRefreshToken(ctx, userID); err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (m *Manager) mint(userID string) (models.SessionTokens, error) {
	now := m.now()

	access, accessExp, err := m.sign(userID, now, m.cfg.AccessTTL, m.cfg.AccessSecret)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, refreshExp, err := m.sign(userID, now, m.cfg.RefreshTTL, m.cfg.RefreshSecret)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (m *Manager) sign(userID string, now time.Time, ttl time.Duration, secret []byte) (string, time.Time, error) {
	expires := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return signed, expires, err
}

func (m *Manager) subject(token string, secret []byte) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

func (m *Manager) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc()
	}
	return time.Now().UTC()
}
