// Package ratelimit, anahtar (userID, IP) bazlı token bucket rate limiting sağlar.
//
// Her anahtar için ayrı bir golang.org/x/time/rate.Limiter tutulur.
// Kullanım alanları:
//   - Mesaj gönderme: userID bazlı (spam koruması).
//   - WebSocket bağlantı denemeleri: IP bazlı (token brute-force koruması).
//
// pkg/ratelimit hiçbir proje içi pakete bağımlı değildir (leaf dependency).
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// sweepThreshold aşıldığında Allow çağrısı sırasında boştaki limiter'lar silinir.
const sweepThreshold = 4096

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter, anahtar başına token bucket.
//
//	limiter := ratelimit.NewKeyedLimiter(clock.New(), rate.Limit(2), 5, 10*time.Minute)
//	if !limiter.Allow(userID) { return 429 }
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	clock   clock.Clock
}

// NewKeyedLimiter, saniyede perSecond token üreten ve burst kadar biriktiren limiter oluşturur.
// idleTTL süresince kullanılmayan anahtarlar temizlenebilir.
func NewKeyedLimiter(clk clock.Clock, perSecond rate.Limit, burst int, idleTTL time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		entries: make(map[string]*keyedEntry),
		limit:   perSecond,
		burst:   burst,
		idleTTL: idleTTL,
		clock:   clk,
	}
}

// Allow, anahtar için bir token tüketir. Token yoksa false döner.
func (l *KeyedLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.entryLocked(key, now).limiter.AllowN(now, 1)
}

// RetryAfter, bir sonraki token'a kadar beklenmesi gereken süre.
// Token mevcutsa 0 döner. Rezervasyon hemen iptal edilir, token tüketilmez.
func (l *KeyedLimiter) RetryAfter(key string) time.Duration {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return 0
	}
	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// RetryAfterSeconds, HTTP Retry-After header'ı için yukarı yuvarlanmış saniye.
func (l *KeyedLimiter) RetryAfterSeconds(key string) int {
	d := l.RetryAfter(key)
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// Len, takip edilen anahtar sayısı.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *KeyedLimiter) entryLocked(key string, now time.Time) *keyedEntry {
	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= sweepThreshold {
			l.sweepLocked(now)
		}
		e = &keyedEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e
}

// sweepLocked, idleTTL'den uzun süredir görülmeyen anahtarları siler.
// Bu süre burst'ün dolma süresinden uzunsa silinen limiter zaten dolu olurdu.
func (l *KeyedLimiter) sweepLocked(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.entries, key)
		}
	}
}

// ExtractIP, request'in gerçek client IP'sini döner.
// Reverse proxy arkasında X-Forwarded-For'un ilk elemanı, sonra X-Real-IP,
// en son RemoteAddr kullanılır.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormatRetryMessage, bekleme süresini okunabilir metne çevirir.
func FormatRetryMessage(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%d minute(s)", seconds/60)
	}
	return fmt.Sprintf("%d second(s)", seconds)
}
