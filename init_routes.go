// Package main: HTTP route registration.
//
// initRoutes, tüm API endpoint'lerini mux'a bağlar. /api altındaki her şey
// JWT ister; /ws token'ı query'den kendisi doğrular.
package main

import (
	"net/http"

	"github.com/akinalp/sohbet/middleware"
	"github.com/akinalp/sohbet/pkg/metrics"
	"github.com/akinalp/sohbet/services"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Go 1.22+ ServeMux method + wildcard pattern'larını destekler; daha spesifik
// pattern kazandığı için "/api/chats/{targetId}/messages" ile
// "/api/chats/{targetId}" çakışmaz.
func initRoutes(mux *http.ServeMux, h *Handlers, authService services.AuthService, users services.UserDirectory) {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(authService, users)

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(http.HandlerFunc(handler))
	}

	// ─── Chats ───
	mux.Handle("GET /api/chats", auth(h.Chat.List))
	mux.Handle("GET /api/chats/{targetId}/messages", auth(h.Chat.GetMessages))
	mux.Handle("POST /api/chats/{targetId}/messages", auth(h.Chat.SendMessage))
	mux.Handle("POST /api/chats/{targetId}/block", auth(h.Chat.Block))
	mux.Handle("POST /api/chats/{targetId}/unblock", auth(h.Chat.Unblock))
	mux.Handle("POST /api/chats/{targetId}/clear", auth(h.Chat.Clear))
	mux.Handle("DELETE /api/chats/{targetId}", auth(h.Chat.Hide))

	// ─── Circles ───
	mux.Handle("POST /api/circles", auth(h.Circle.Create))
	mux.Handle("GET /api/circles", auth(h.Circle.List))
	mux.Handle("GET /api/circles/{id}", auth(h.Circle.Get))
	mux.Handle("DELETE /api/circles/{id}", auth(h.Circle.Delete))
	mux.Handle("POST /api/circles/{id}/join", auth(h.Circle.Join))
	mux.Handle("POST /api/circles/{id}/leave", auth(h.Circle.Leave))
	mux.Handle("POST /api/circles/{id}/transfer", auth(h.Circle.TransferOwnership))
	mux.Handle("DELETE /api/circles/{id}/members/{userId}", auth(h.Circle.RemoveMember))
	mux.Handle("POST /api/circles/{id}/pin", auth(h.Circle.TogglePin))
	mux.Handle("GET /api/circles/{id}/messages", auth(h.Circle.GetMessages))
	mux.Handle("POST /api/circles/{id}/messages", auth(h.Circle.PostMessage))

	// ─── Presence ───
	mux.Handle("GET /api/users/{id}/presence", auth(h.Presence.Get))

	// ─── Uploads ───
	// Dosya adları uuid prefix'lidir; indirme auth istemez.
	mux.HandleFunc("GET /api/uploads/{file}", h.Upload.Serve)

	// ─── WebSocket ───
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)

	// ─── Operasyon ───
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", h.Health.Healthz)
}
