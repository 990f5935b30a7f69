package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg/metrics"
	"github.com/akinalp/sohbet/repository"
	"github.com/akinalp/sohbet/ws"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// presenceStoreTimeout, tek bir presence commit'i için üst süre.
const presenceStoreTimeout = 5 * time.Second

// PresenceTracker, bağlantı sayısına göre online/offline durumunu yönetir.
//
// Bir kullanıcının birden fazla bağlantısı olabilir; son bağlantı kapandığında
// hemen offline olunmaz, grace süresi beklenir. Bu süre içinde yeniden
// bağlanan kullanıcı için hiçbir event yayınlanmaz.
type PresenceTracker interface {
	// Connect, hub'a her bağlantı kaydında çağrılır.
	Connect(userID string)
	// Disconnect, hub'dan her bağlantı çıkışında çağrılır.
	Disconnect(userID string)
	// Snapshot, kalıcı presence kaydını döner. Kayıt yoksa pkg.ErrNotFound.
	Snapshot(ctx context.Context, userID string) (*models.Presence, error)
	// OnlineUserIDs, şu an online olan kullanıcılar (sıralı).
	OnlineUserIDs() []string
	// Shutdown, bekleyen timer'ları durdurur ve online kullanıcıları offline yazar.
	Shutdown(ctx context.Context)
}

type presenceState struct {
	conns  int
	online bool
	timer  *clock.Timer
	// gen her Connect/Disconnect'te artar; iptal edilirken ateşlenen timer
	// kendi gen'i güncel değilse hiçbir şey yapmaz.
	gen uint64
}

type presenceTracker struct {
	mu    sync.Mutex
	users map[string]*presenceState

	repo  repository.PresenceRepository
	hub   ws.EventPublisher
	clock clock.Clock
	grace time.Duration
}

// NewPresenceTracker, constructor. grace: son bağlantıdan sonra offline'a
// geçmeden önce beklenen süre.
func NewPresenceTracker(repo repository.PresenceRepository, hub ws.EventPublisher, clk clock.Clock, grace time.Duration) PresenceTracker {
	return &presenceTracker{
		users: make(map[string]*presenceState),
		repo:  repo,
		hub:   hub,
		clock: clk,
		grace: grace,
	}
}

func (t *presenceTracker) Connect(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.users[userID]
	if !ok {
		st = &presenceState{}
		t.users[userID] = st
	}
	st.conns++
	st.gen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}

	if !st.online {
		st.online = true
		t.commitLocked(userID, true)
	}
}

func (t *presenceTracker) Disconnect(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.users[userID]
	if !ok || st.conns == 0 {
		zap.S().Warnw("[presence] disconnect without matching connect", "user_id", userID)
		return
	}
	st.conns--
	if st.conns > 0 {
		return
	}

	st.gen++
	gen := st.gen
	st.timer = t.clock.AfterFunc(t.grace, func() {
		t.expire(userID, gen)
	})
}

// expire, grace timer'ı ateşlendiğinde çalışır.
func (t *presenceTracker) expire(userID string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.users[userID]
	if !ok || st.gen != gen || st.conns > 0 {
		return
	}
	delete(t.users, userID)
	if st.online {
		t.commitLocked(userID, false)
	}
}

// commitLocked, geçişi store'a yazar ve herkese presence_update yayınlar.
// Store hatası loglanır; in-memory durum ve yayın yine de ilerler.
func (t *presenceTracker) commitLocked(userID string, online bool) {
	now := t.clock.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), presenceStoreTimeout)
	defer cancel()
	if err := t.repo.Upsert(ctx, userID, online, now); err != nil {
		zap.S().Errorw("[presence] failed to store transition", "user_id", userID, "online", online, "error", err)
	}

	state := "offline"
	if online {
		state = "online"
	}
	metrics.PresenceTransitions.WithLabelValues(state).Inc()
	zap.S().Debugw("[presence] transition", "user_id", userID, "state", state)

	t.hub.BroadcastToAll(ws.Event{
		Op: ws.OpPresence,
		Data: ws.PresenceData{
			UserID:     userID,
			IsOnline:   online,
			LastActive: now,
		},
	})
}

func (t *presenceTracker) Snapshot(ctx context.Context, userID string) (*models.Presence, error) {
	return t.repo.Get(ctx, userID)
}

func (t *presenceTracker) OnlineUserIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.users))
	for id, st := range t.users {
		if st.online {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *presenceTracker) Shutdown(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, st := range t.users {
		if st.timer != nil {
			st.timer.Stop()
		}
		if st.online {
			if err := t.repo.Upsert(ctx, id, false, t.clock.Now().UTC()); err != nil {
				zap.S().Warnw("[presence] failed to store offline on shutdown", "user_id", id, "error", err)
			}
			n++
		}
	}
	t.users = make(map[string]*presenceState)
	zap.S().Infow("[presence] tracker shut down", "marked_offline", n)
}
