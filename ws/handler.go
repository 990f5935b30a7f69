package ws

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/pkg/ratelimit"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenValidator, WebSocket handler'ın JWT doğrulaması için kullandığı interface.
//
// services.AuthService yerine kendi küçük interface'imiz: services paketi
// ws.EventPublisher'ı kullanıyor, ters yönde bağımlılık döngü oluştururdu.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// UserLookup, token'daki kullanıcının gerçekten var olduğunu doğrular
// (services.UserDirectory bunu karşılar).
type UserLookup interface {
	Get(ctx context.Context, userID string) (*models.User, error)
}

// userLookupTimeout, bağlantı sırasında kullanıcı sorgusu için üst süre.
const userLookupTimeout = 5 * time.Second

// OnlineLister, ready event'inde gönderilecek online kullanıcıları verir.
type OnlineLister interface {
	OnlineUserIDs() []string
}

// Handler, WebSocket bağlantı isteklerini işleyen HTTP handler'ı.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
	users          UserLookup
	online         OnlineLister
	connectLimiter *ratelimit.KeyedLimiter
	upgrader       websocket.Upgrader
}

// NewHandler, yeni bir WebSocket handler oluşturur.
//
// connectLimiter IP bazlıdır, nil ise bağlantı denemeleri sınırlanmaz.
// allowedOrigins boşsa tüm origin'lere izin verilir (development).
func NewHandler(hub *Hub, tokenValidator TokenValidator, users UserLookup, online OnlineLister, connectLimiter *ratelimit.KeyedLimiter, allowedOrigins []string) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
		users:          users,
		online:         online,
		connectLimiter: connectLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// HandleConnection, HTTP bağlantısını WebSocket'e yükseltir ve client'ı Hub'a kaydeder.
//
// Tarayıcı WS isteğine header ekleyemediği için token query'den gelir:
//
//	ws://server/ws?token=JWT_TOKEN
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if h.connectLimiter != nil {
		ip := ratelimit.ExtractIP(r)
		if !h.connectLimiter.Allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(h.connectLimiter.RetryAfterSeconds(ip)))
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// İmza geçerli olsa da hesap silinmiş olabilir; presence kaydı users'a bağlıdır.
	ctx, cancel := context.WithTimeout(r.Context(), userLookupTimeout)
	_, err = h.users.Get(ctx, claims.UserID)
	cancel()
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}
		zap.S().Errorw("[ws] user lookup failed", "user_id", claims.UserID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Infow("[ws] upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}

	client := newClient(h.hub, conn, claims.UserID)

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	var online []string
	if h.online != nil {
		online = h.online.OnlineUserIDs()
	}
	// Hub.Run presence callback'ini henüz çalıştırmamış olabilir; bu bağlantı
	// kayıtlı olduğuna göre kullanıcı online'dır.
	if !slices.Contains(online, claims.UserID) {
		online = append(slices.Clone(online), claims.UserID)
		slices.Sort(online)
	}
	client.sendEvent(Event{Op: OpReady, Data: ReadyData{UserID: claims.UserID, OnlineUserIDs: online}})

	go client.WritePump()
	client.ReadPump() // bağlantı kapanana kadar bloklar
}
