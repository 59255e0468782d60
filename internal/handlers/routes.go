package handlers

import (
	"net/http"

	"github.com/streamtube/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Media: deps.Media, Limiter: deps.AuthLimiter}
	users := UserHandler{Users: deps.Users, Media: deps.Media}
	channels := ChannelHandler{Profiles: deps.Profiles, Videos: deps.Videos}
	videos := VideoHandler{Videos: deps.Videos, Media: deps.Media, Ingest: deps.Ingest, MaxUploadBytes: deps.MaxUploadBytes}
	subscriptions := SubscriptionHandler{Users: deps.Users, Subscriptions: deps.Subscriptions}

	gate := middleware.SessionGate(deps.Sessions, deps.Users)
	protect := func(h http.HandlerFunc) http.Handler { return gate(h) }

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.HandleFunc("POST /api/v1/users/register", auth.Register)
	mux.HandleFunc("POST /api/v1/users/login", auth.Login)
	mux.HandleFunc("POST /api/v1/users/refresh-token", auth.Refresh)
	mux.Handle("POST /api/v1/users/logout", protect(auth.Logout))
	mux.Handle("POST /api/v1/users/change-password", protect(auth.ChangePassword))

	mux.Handle("GET /api/v1/users/current-user", protect(users.CurrentUser))
	mux.Handle("PATCH /api/v1/users/update-details", protect(users.UpdateDetails))
	mux.Handle("PATCH /api/v1/users/avatar", protect(users.UpdateAvatar))
	mux.Handle("PATCH /api/v1/users/cover-image", protect(users.UpdateCoverImage))

	mux.Handle("GET /api/v1/users/c/{username}", protect(channels.Profile))
	mux.Handle("GET /api/v1/users/history", protect(channels.History))

	mux.Handle("POST /api/v1/videos", protect(videos.Publish))
	mux.Handle("GET /api/v1/videos/feed", protect(videos.Feed))
	mux.Handle("POST /api/v1/videos/{id}/view", protect(videos.View))

	mux.Handle("POST /api/v1/subscriptions/{username}", protect(subscriptions.Subscribe))
	mux.Handle("DELETE /api/v1/subscriptions/{username}", protect(subscriptions.Unsubscribe))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users          UserStore
	Sessions       SessionManager
	Videos         VideoStore
	Subscriptions  SubscriptionStore
	Profiles       ProfileSource
	Media          MediaStorage
	Ingest         AssetIngestor
	AuthLimiter    RateLimiter
	MaxUploadBytes int64
}
