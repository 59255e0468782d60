package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/streamtube/backend/internal/logging"
	"github.com/streamtube/backend/internal/models"
)

type userCtxKey struct{}

// AccessVerifier resolves a bearer access token to the user id it was issued for.
type AccessVerifier interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// IdentityStore re-fetches the account behind a verified token so deleted
// users stop authenticating the moment their row is gone.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionGate guards protected routes. It accepts the access token from the
// accessToken cookie or an Authorization bearer header, verifies it and
// stores the resolved user on the request context. Any failure terminates the
// request with a generic 401.
func SessionGate(verifier AccessVerifier, users IdentityStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := bearerToken(r)
			if token == "" {
				rejectUnauthorized(w)
				return
			}

			userID, err := verifier.Authenticate(ctx, token)
			if err != nil {
				logging.FromContext(ctx).Warn("access token rejected", "error", err)
				rejectUnauthorized(w)
				return
			}

			user, err := users.FindByID(ctx, userID)
			if err != nil {
				logging.FromContext(ctx).Warn("authenticated user missing", "userId", userID, "error", err)
				rejectUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userCtxKey{}, user)))
		})
	}
}

// UserFromContext returns the authenticated user stored by SessionGate.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userCtxKey{}).(models.User)
	return user, ok
}

// ContextWithUser stores a user the way SessionGate would. Intended for
// handler tests and internal request fan-out.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

func bearerToken(r *http.Request) string {
	if cookie, err := r.Cookie("accessToken"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func rejectUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired session"})
}
