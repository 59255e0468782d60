package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/streamtube/backend/internal/models"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// setSessionCookies attaches both tokens as HTTP-only cookies scoped to the
// whole API. Secure is derived from the request so local development over
// plain HTTP keeps working.
func setSessionCookies(w http.ResponseWriter, r *http.Request, tokens models.SessionTokens) {
	setTokenCookie(w, r, accessCookieName, tokens.AccessToken, tokens.AccessExpiresAt)
	setTokenCookie(w, r, refreshCookieName, tokens.RefreshToken, tokens.RefreshExpiresAt)
}

func clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	expireTokenCookie(w, r, accessCookieName)
	expireTokenCookie(w, r, refreshCookieName)
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, value string, expires time.Time) {
	if value == "" {
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func expireTokenCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	return false
}
