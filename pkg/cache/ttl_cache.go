// Package cache, süreli (TTL) generic in-memory cache sağlar.
//
// Sık okunan ama nadiren değişen veriler için kullanılır; örneğin mesaj
// event'lerine gömülen gönderen özeti (id, görünen ad, avatar). Her mesajda
// users tablosuna gitmek yerine kısa süreli cache'ten okunur.
//
// Saat (clock) dışarıdan verilir; testlerde clock.NewMock ile süre ilerletilir.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache, thread-safe generic TTL cache.
//
//	c := cache.New[string, models.UserSummary](clock.New(), time.Minute)
//	v, err := c.GetOrLoad(ctx, id, loader)
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clock   clock.Clock
}

// New, boş bir cache oluşturur. Arka plan goroutine'i yoktur;
// süresi dolan entry'ler Set sırasında ve Sweep ile temizlenir.
func New[K comparable, V any](clk clock.Clock, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clock:   clk,
	}
}

// Get, süresi dolmamış bir değer varsa döner.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set, değeri TTL ile yazar.
func (c *TTLCache[K, V]) Set(key K, value V) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Map'in sınırsız büyümemesi için büyük cache'lerde yazarken süpür.
	if len(c.entries) >= 1024 {
		c.sweepLocked(now)
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}
}

// GetOrLoad, cache'te yoksa loader'ı çağırır ve başarılı sonucu cache'ler.
// Loader hatası cache'lenmez.
func (c *TTLCache[K, V]) GetOrLoad(ctx context.Context, key K, loader func(context.Context, K) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := loader(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete, key'i invalidate eder.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Sweep, süresi dolmuş entry'leri siler ve silinen sayıyı döner.
func (c *TTLCache[K, V]) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweepLocked(now)
}

// Len, süresi dolmuşlar dahil entry sayısı.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *TTLCache[K, V]) sweepLocked(now time.Time) int {
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
