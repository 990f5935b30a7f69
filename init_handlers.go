// Package main: Handler katmanı başlatma.
//
// Handler'lar "thin" dir: sadece HTTP parse + service call + response write.
package main

import (
	"database/sql"

	"github.com/akinalp/sohbet/config"
	"github.com/akinalp/sohbet/handlers"
	"github.com/akinalp/sohbet/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Chat     *handlers.ChatHandler
	Circle   *handlers.CircleHandler
	Presence *handlers.PresenceHandler
	Upload   *handlers.UploadHandler
	Health   *handlers.HealthHandler
	WS       *ws.Handler
}

// initHandlers, tüm handler'ları service ve rate limiter dependency'leri ile oluşturur.
func initHandlers(svcs *Services, limiters *RateLimiters, hub *ws.Hub, conn *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{
		Chat:     handlers.NewChatHandler(svcs.Chat, cfg.Upload.MaxSize),
		Circle:   handlers.NewCircleHandler(svcs.Circle, cfg.Upload.MaxSize),
		Presence: handlers.NewPresenceHandler(svcs.Presence),
		Upload:   handlers.NewUploadHandler(svcs.Attachments),
		Health:   handlers.NewHealthHandler(conn),
		WS:       ws.NewHandler(hub, svcs.Auth, svcs.Users, svcs.Presence, limiters.Connect, cfg.Server.CORSOrigins),
	}
}
