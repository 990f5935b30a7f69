// Package main: Service katmanı başlatma.
//
// initServices, tüm service implementasyonlarını oluşturur. Her service
// ihtiyaç duyduğu repository interface'lerini ve diğer dependency'leri
// constructor injection ile alır.
//
// Sıralama kuralı: PresenceTracker ve CallRelayService Hub callback'lerinden
// ÖNCE oluşturulmalı (registerHubCallbacks ikisini de closure'da kullanır).
package main

import (
	"fmt"
	"time"

	"github.com/akinalp/sohbet/config"
	"github.com/akinalp/sohbet/pkg/crypto"
	"github.com/akinalp/sohbet/pkg/email"
	"github.com/akinalp/sohbet/pkg/ratelimit"
	"github.com/akinalp/sohbet/services"
	"github.com/akinalp/sohbet/ws"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// userDirectoryTTL: kullanıcı profillerinin bellekte tutulma süresi.
const userDirectoryTTL = time.Minute

// limiterIdleTTL: bu süre boyunca istek gelmeyen anahtarın limiter'ı silinir.
const limiterIdleTTL = 10 * time.Minute

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth        services.AuthService
	Users       services.UserDirectory
	Attachments services.AttachmentStore
	Chat        services.ChatService
	Circle      services.CircleService
	Presence    services.PresenceTracker
	CallRelay   services.CallRelayService
}

// RateLimiters, tüm rate limiter instance'larını tutan container.
type RateLimiters struct {
	// Message: kullanıcı bazlı chat mesajı limiti.
	Message *ratelimit.KeyedLimiter
	// Connect: IP bazlı WebSocket bağlantı limiti.
	Connect *ratelimit.KeyedLimiter
}

// initServices, tüm service'leri ve rate limiter'ları oluşturur.
func initServices(repos *Repositories, hub ws.EventPublisher, cfg *config.Config, clk clock.Clock) (*Services, *RateLimiters, error) {
	limiters := &RateLimiters{
		Message: ratelimit.NewKeyedLimiter(clk, rate.Limit(cfg.RateLimit.MessagesPerSecond), cfg.RateLimit.MessageBurst, limiterIdleTTL),
	}
	if cfg.RateLimit.ConnectsPerMinute > 0 {
		limiters.Connect = ratelimit.NewKeyedLimiter(clk,
			rate.Every(time.Minute/time.Duration(cfg.RateLimit.ConnectsPerMinute)), cfg.RateLimit.ConnectsPerMinute, limiterIdleTTL)
	}

	attachments, err := services.NewDiskAttachmentStore(cfg.Upload.Dir, cfg.Upload.MaxSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init attachment store: %w", err)
	}

	// ─── Email service (opsiyonel) ───
	var emailSender email.EmailSender
	if cfg.Email.Enabled() {
		emailSender = email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.FromEmail, cfg.Email.AppURL)
		zap.S().Infow("[main] email service enabled", "from", cfg.Email.FromEmail)
	} else {
		zap.S().Info("[main] email service disabled (RESEND_API_KEY, RESEND_FROM or APP_URL not set)")
	}

	users := services.NewUserDirectory(repos.User, clk, userDirectoryTTL)

	svcs := &Services{
		Auth:        services.NewAuthService(cfg.JWT.Secret),
		Users:       users,
		Attachments: attachments,
		Chat: services.NewChatService(
			repos.Chat, repos.Message, users, attachments, hub, limiters.Message, clk,
		),
		Circle: services.NewCircleService(
			repos.Circle, repos.CircleMessage, users, crypto.NewBcryptVerifier(bcrypt.DefaultCost),
			attachments, hub, emailSender, clk,
		),
		Presence:  services.NewPresenceTracker(repos.Presence, hub, clk, cfg.Presence.GracePeriod),
		CallRelay: services.NewCallRelayService(repos.Chat, hub),
	}

	return svcs, limiters, nil
}
