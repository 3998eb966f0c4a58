package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Identity: deps.Identity, Sessions: deps.Sessions, Directory: deps.Directory, Limiter: deps.AuthLimiter}
	users := UserHandler{Directory: deps.Directory, Sessions: deps.Sessions, Avatars: deps.Avatars}
	friends := FriendHandler{Friends: deps.Friends, Sessions: deps.Sessions, Limiter: deps.WriteLimiter}
	messages := MessageHandler{Chat: deps.Chat, Sessions: deps.Sessions, Limiter: deps.WriteLimiter}
	streams := StreamHandler{Views: deps.Views, Sessions: deps.Sessions}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("/api/v1/users/search", users.Search)
	mux.HandleFunc("/api/v1/users/me", users.Me)
	mux.HandleFunc("/api/v1/users/me/avatar", users.UploadAvatar)
	mux.HandleFunc("/api/v1/friends/request", friends.Request)
	mux.HandleFunc("/api/v1/friends/respond", friends.Respond)
	mux.HandleFunc("/api/v1/friends/stream", streams.Friends)
	mux.HandleFunc("/api/v1/friends/requests/stream", streams.Requests)
	mux.HandleFunc("/api/v1/messages", messages.Send)
	mux.HandleFunc("/api/v1/messages/stream", streams.Messages)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Identity     IdentityProvider
	Sessions     SessionManager
	Directory    DirectoryService
	Friends      FriendEngine
	Chat         ChatEngine
	Views        ViewStreamer
	Avatars      AvatarStorage
	AuthLimiter  RateLimiter
	WriteLimiter RateLimiter
}
