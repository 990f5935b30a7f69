package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/akinalp/sohbet/pkg/metrics"
	"go.uber.org/zap"
)

// EventPublisher, service katmanının event yayınlamak için kullandığı interface.
//
// Service'ler Hub'ın concrete struct'ına değil bu interface'e bağımlıdır;
// testlerde kaydedici (recording) bir fake verilir.
type EventPublisher interface {
	// Publish, event'i verilen odalara yayınlar. Birden fazla odada olan
	// bir bağlantı event'i bir kez alır.
	Publish(event Event, rooms ...string)
	BroadcastToUser(userID string, event Event)
	BroadcastToAll(event Event)
	// RemoveUserFromRoom, kullanıcının tüm bağlantılarını odadan çıkarır
	// (circle'dan çıkarılan üye artık o odanın event'lerini almaz).
	RemoveUserFromRoom(userID, room string)
}

// Callback imzaları. Hub servis katmanını tanımaz; bağlantı main'de yapılır.
type (
	// ConnectionFunc, her bağlantı kaydında ve çıkışında çağrılır (ilk/son değil).
	ConnectionFunc func(userID string)
	// RoomAuthorizer, odaya katılım için sunucu tarafı doğrulama. nil hata = izin.
	RoomAuthorizer func(ctx context.Context, userID, id string) error
	// CallSignalFunc, call_signal'ı relay'e iletir. *models.CallRelayError
	// dönerse kodu call_error olarak başlatan bağlantıya gönderilir.
	CallSignalFunc func(ctx context.Context, fromID string, data CallSignalData) error
)

// Hub, tüm WebSocket bağlantılarını ve odaları yöneten merkezi yapıdır.
//
// rooms: oda adı → bağlantı kümesi. Her client kendi katıldığı odaları da
// tutar (client.rooms); ikisi de mu altında değişir. Bir kullanıcının birden
// fazla sekmesi olabilir, hepsi user:<id> odasındadır.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	conns int

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// seq: her outbound event'e verilen artan sayaç.
	seq atomic.Int64

	onConnect    ConnectionFunc
	onDisconnect ConnectionFunc
	onJoinChat   RoomAuthorizer
	onJoinCircle RoomAuthorizer
	onCallSignal CallSignalFunc
}

// NewHub, yeni bir Hub oluşturur.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnConnect, bağlantı kaydı callback'ini ayarlar (presence tracker).
func (h *Hub) OnConnect(fn ConnectionFunc) { h.onConnect = fn }

// OnDisconnect, bağlantı çıkışı callback'ini ayarlar.
func (h *Hub) OnDisconnect(fn ConnectionFunc) { h.onDisconnect = fn }

// OnJoinChat, chat odası katılım doğrulamasını ayarlar.
func (h *Hub) OnJoinChat(fn RoomAuthorizer) { h.onJoinChat = fn }

// OnJoinCircle, circle odası katılım doğrulamasını ayarlar.
func (h *Hub) OnJoinCircle(fn RoomAuthorizer) { h.onJoinCircle = fn }

// OnCallSignal, call relay callback'ini ayarlar.
func (h *Hub) OnCallSignal(fn CallSignalFunc) { h.onCallSignal = fn }

// Run, Hub'ın ana event loop'udur. main'de `go hub.Run()` ile başlatılır.
//
// Kayıt ve çıkış tek goroutine'den sıralı işlenir; böylece aynı bağlantı
// için connect callback'i disconnect'ten önce çalışır.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
			if h.onConnect != nil {
				h.onConnect(client.userID)
			}

		case client := <-h.unregister:
			if h.removeClient(client) && h.onDisconnect != nil {
				h.onDisconnect(client.userID)
			}

		case <-h.done:
			return
		}
	}
}

// addClient, client'ı Hub'a ekler ve kullanıcı odasına katar.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.joinLocked(client, UserRoom(client.userID))
	h.conns++
	metrics.WSConnections.Inc()

	zap.S().Debugw("[ws] client connected",
		"user_id", client.userID, "user_connections", len(h.rooms[UserRoom(client.userID)]))
}

// removeClient, client'ı tüm odalardan çıkarır ve send channel'ını kapatır.
// Client zaten çıkarılmışsa false döner (yavaş client iki kez düşürülebilir).
func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return false
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	client.closed = true
	close(client.send)
	h.conns--
	metrics.WSConnections.Dec()

	zap.S().Debugw("[ws] client disconnected",
		"user_id", client.userID, "user_connections", len(h.rooms[UserRoom(client.userID)]))
	return true
}

func (h *Hub) joinLocked(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// JoinRoom, client'ı odaya katar. Kapanmış client için hiçbir şey yapmaz.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	h.joinLocked(client, room)
}

// beginRoomOp, client'ın bu oda için yeni join/leave isteğine sıra numarası verir.
func (h *Hub) beginRoomOp(client *Client, room string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.roomOps[room]++
	return client.roomOps[room]
}

// joinRoomIfCurrent, seq hâlâ bu oda için son istekse client'ı odaya katar.
// Doğrulama sürerken leave (ya da yeni bir join) geldiyse false döner.
func (h *Hub) joinRoomIfCurrent(client *Client, room string, seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed || client.roomOps[room] != seq {
		return false
	}
	h.joinLocked(client, room)
	return true
}

// LeaveRoom, client'ı odadan çıkarır. Kullanıcı odasından çıkılamaz.
func (h *Hub) LeaveRoom(client *Client, room string) {
	if room == UserRoom(client.userID) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) RemoveUserFromRoom(userID, room string) {
	if room == UserRoom(userID) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.rooms[UserRoom(userID)] {
		h.leaveLocked(client, room)
	}
}

// Publish, event'i odalara yayınlar; her bağlantı en fazla bir kopya alır.
func (h *Hub) Publish(event Event, rooms ...string) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		zap.S().Errorw("[ws] failed to marshal event", "op", event.Op, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(event.Op).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, room := range rooms {
		for client := range h.rooms[room] {
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}
			h.deliverLocked(client, data)
		}
	}
}

// BroadcastToUser, kullanıcının tüm bağlantılarına event gönderir.
func (h *Hub) BroadcastToUser(userID string, event Event) {
	h.Publish(event, UserRoom(userID))
}

// BroadcastToAll, tüm bağlı client'lara event gönderir.
func (h *Hub) BroadcastToAll(event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		zap.S().Errorw("[ws] failed to marshal broadcast event", "op", event.Op, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(event.Op).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for room, members := range h.rooms {
		if !strings.HasPrefix(room, "user:") {
			continue
		}
		for client := range members {
			h.deliverLocked(client, data)
		}
	}
}

// deliverLocked, veriyi client'ın buffer'ına koyar. Buffer doluysa client
// yavaştır, ayrı goroutine'de çıkarılır (RLock tutulurken Lock alınamaz).
func (h *Hub) deliverLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		metrics.SlowClientsDropped.Inc()
		zap.S().Warnw("[ws] send buffer full, dropping client", "user_id", client.userID)
		go h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ConnectionCount, hub'a kayıtlı toplam bağlantı sayısı.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns
}

// Shutdown, event loop'u durdurur ve tüm bağlantıları kapatır.
func (h *Hub) Shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, members := range h.rooms {
		for client := range members {
			if client.closed {
				continue
			}
			client.closed = true
			close(client.send)
			n++
		}
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.conns = 0
	metrics.WSConnections.Set(0)
	zap.S().Infow("[ws] hub shut down", "closed_connections", n)
}
