package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: client heartbeat'i için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// maxMessageSize: client'ın gönderebileceği maksimum mesaj boyutu.
	// call_signal SDP taşıdığı için birkaç KB'ı aşabilir.
	maxMessageSize = 64 * 1024

	// sendBufferSize: buffer doluysa client yavaş sayılır ve düşürülür.
	sendBufferSize = 256

	// callbackTimeout: oda doğrulaması ve relay için üst süre.
	callbackTimeout = 5 * time.Second
)

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır: ReadPump client'tan okur,
// WritePump send channel'ını WS'e yazar. gorilla/websocket aynı anda bir
// okuyucu ve bir yazıcı destekler.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	mu     sync.Mutex // conn.WriteMessage çağrılarını korur

	// rooms, roomOps ve closed hub.mu altında değişir.
	rooms  map[string]struct{}
	closed bool

	// roomOps: oda başına son join/leave isteğinin sıra numarası. Doğrulaması
	// geç biten bir join, arada gelen leave'i ezmez.
	roomOps map[string]uint64
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBufferSize),
		rooms:   make(map[string]struct{}),
		roomOps: make(map[string]uint64),
	}
}

// ReadPump, bağlantıdan gelen mesajları okur ve işler. Bağlantı kapanana
// kadar bloklar; çıkarken client'ı hub'dan düşürür.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		zap.S().Warnw("[ws] failed to set read deadline", "user_id", c.userID, "error", err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.S().Infow("[ws] unexpected close", "user_id", c.userID, "error", err)
			}
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			zap.S().Debugw("[ws] invalid message", "user_id", c.userID, "error", err)
			continue
		}

		c.handleEvent(event)
	}
}

// handleEvent, client'tan gelen event'leri türüne göre işler.
func (c *Client) handleEvent(event inboundEvent) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			zap.S().Warnw("[ws] failed to set read deadline", "user_id", c.userID, "error", err)
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpJoinChat, OpLeaveChat, OpJoinCircle, OpLeaveCircle:
		c.handleRoomOp(event)

	case OpCallSignal:
		c.handleCallSignal(event)

	default:
		zap.S().Debugw("[ws] unknown op", "user_id", c.userID, "op", event.Op)
	}
}

// handleRoomOp, chat/circle odasına katılma ve ayrılmayı işler.
// Katılım sunucu tarafında doğrulanır; ayrılma her zaman serbesttir.
func (c *Client) handleRoomOp(event inboundEvent) {
	var data RoomData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		c.sendError(event.Op, "invalid payload")
		return
	}

	var id, room string
	var authorize RoomAuthorizer
	switch event.Op {
	case OpJoinChat, OpLeaveChat:
		id, room, authorize = data.ChatID, ChatRoom(data.ChatID), c.hub.onJoinChat
	default:
		id, room, authorize = data.CircleID, CircleRoom(data.CircleID), c.hub.onJoinCircle
	}
	if id == "" {
		c.sendError(event.Op, "missing id")
		return
	}

	seq := c.hub.beginRoomOp(c, room)

	if event.Op == OpLeaveChat || event.Op == OpLeaveCircle {
		c.hub.LeaveRoom(c, room)
		return
	}

	if authorize == nil {
		c.sendError(event.Op, "room not available")
		return
	}

	// Doğrulama DB'ye gider; read loop'u bloklamamak için ayrı goroutine.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		if err := authorize(ctx, c.userID, id); err != nil {
			zap.S().Debugw("[ws] room join rejected", "user_id", c.userID, "room", room, "error", err)
			c.sendError(event.Op, "not allowed")
			return
		}
		if !c.hub.joinRoomIfCurrent(c, room, seq) {
			zap.S().Debugw("[ws] stale room join dropped", "user_id", c.userID, "room", room)
		}
	}()
}

// handleCallSignal, call_signal'ı relay callback'ine iletir. Hata client'a
// call_error olarak döner; transport'a hiçbir zaman hata fırlatılmaz.
func (c *Client) handleCallSignal(event inboundEvent) {
	var data CallSignalData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.To == "" {
		c.sendError(event.Op, "invalid payload")
		return
	}
	data.From = c.userID

	if c.hub.onCallSignal == nil {
		c.sendEvent(Event{Op: OpCallError, Data: CallErrorData{Code: models.CallErrCallSetupFailed, To: data.To}})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		err := c.hub.onCallSignal(ctx, c.userID, data)
		if err == nil {
			return
		}

		code := models.CallErrCallSetupFailed
		var relayErr *models.CallRelayError
		if errors.As(err, &relayErr) {
			code = relayErr.Code
		}
		c.sendEvent(Event{Op: OpCallError, Data: CallErrorData{Code: code, To: data.To}})
	}()
}

func (c *Client) sendError(op, message string) {
	c.sendEvent(Event{Op: OpError, Data: ErrorData{Op: op, Message: message}})
}

// sendEvent, sadece bu bağlantıya tek bir event gönderir.
func (c *Client) sendEvent(event Event) {
	event.Seq = c.hub.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		zap.S().Errorw("[ws] failed to marshal event", "user_id", c.userID, "op", event.Op, "error", err)
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	c.hub.deliverLocked(c, data)
}

// WritePump, send channel'ındaki mesajları WebSocket bağlantısına yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			// Channel kapatıldı: hub client'ı çıkardı.
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}

		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// writeMessage, WebSocket'e mesaj yazar (mutex ile korunur).
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
