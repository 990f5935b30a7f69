// Package ws, WebSocket bağlantı yönetimi ve oda (room) tabanlı event dağıtımını sağlar.
//
// Mimari:
//   - Hub: tüm bağlantıları ve odaları yöneten merkezi yapı
//   - Client: tek bir WebSocket bağlantısı (read/write pump)
//   - Event: client-server arası iletilen zarf {op, d, seq}
//
// Odalar:
//   - user:<id>   bağlantı kaydında otomatik katılınır
//   - chat:<id>   join_chat ile, katılımcı doğrulandıktan sonra
//   - circle:<id> join_circle ile, üyelik doğrulandıktan sonra
//
// Teslimat en fazla bir kez ve kalıcı değildir. Offline client hiçbir şey
// almaz; durumu HTTP ile yeniden çeker. Kaynak doğruluk veritabanıdır.
package ws

import (
	"encoding/json"
	"time"

	"github.com/akinalp/sohbet/models"
)

// Event, WebSocket üzerinden iletilen bir mesajı temsil eder.
//
// Seq her outbound event'e verilen artan sayıdır; client boşluk görürse
// (5'ten sonra 7) kaçırdığı bir şey olduğunu anlar ve fetch ile uzlaşır.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// inboundEvent, client'tan gelen zarf. Data ham tutulur, op'a göre parse edilir.
type inboundEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Client → Server operasyonları
const (
	OpHeartbeat   = "heartbeat"
	OpJoinChat    = "join_chat"
	OpLeaveChat   = "leave_chat"
	OpJoinCircle  = "join_circle"
	OpLeaveCircle = "leave_circle"
)

// Server → Client operasyonları
const (
	OpReady              = "ready"
	OpHeartbeatAck       = "heartbeat_ack"
	OpChatMessageCreate  = "chat_message_create"
	OpCircleMessage      = "circle_message_create"
	OpChatBlockUpdate    = "chat_block_update"
	OpChatCleared        = "chat_cleared"
	OpChatRemoved        = "chat_removed"
	OpPresence           = "presence_update"
	OpCallError          = "call_error"
	OpCircleMemberUpdate = "circle_member_update"
	OpCircleOwnerChanged = "circle_owner_changed"
	OpCircleDelete       = "circle_delete"
	OpError              = "error"
)

// OpCallSignal iki yönlüdür: client gönderir, relay karşı tarafa aynı op ile iletir.
const OpCallSignal = "call_signal"

// UserRoom, kullanıcının tüm bağlantılarını kapsayan oda.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ChatRoom, açık direkt sohbet odası.
func ChatRoom(chatID string) string {
	return "chat:" + chatID
}

// CircleRoom, circle odası.
func CircleRoom(circleID string) string {
	return "circle:" + circleID
}

// ─── Payload'lar ───

// ReadyData, bağlantı kurulunca gönderilen ilk event.
type ReadyData struct {
	UserID        string   `json:"user_id"`
	OnlineUserIDs []string `json:"online_user_ids"`
}

// RoomData, join/leave_chat ve join/leave_circle payload'ı.
type RoomData struct {
	ChatID   string `json:"chat_id,omitempty"`
	CircleID string `json:"circle_id,omitempty"`
}

// ErrorData, client op'u reddedildiğinde o bağlantıya gönderilir.
type ErrorData struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

// PresenceData, presence_update payload'ı.
type PresenceData struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastActive time.Time `json:"last_active"`
}

// CallSignalData, call_signal payload'ı. Payload opaktır; sunucu yorumlamaz.
// Client'tan gelirken From boştur, sunucu kimlikten doldurur.
type CallSignalData struct {
	From    string          `json:"from,omitempty"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// CallErrorData, relay başarısız olunca sadece başlatan bağlantıya gider.
type CallErrorData struct {
	Code models.CallErrorCode `json:"code"`
	To   string               `json:"to"`
}

// ChatMessageData, chat_message_create payload'ı.
type ChatMessageData struct {
	ChatID  string             `json:"chat_id"`
	Message *models.Message    `json:"message"`
	Sender  models.UserSummary `json:"sender"`
}

// ChatBlockUpdateData, her katılımcıya kendi bakış açısından gönderilir.
type ChatBlockUpdateData struct {
	ChatID      string                 `json:"chat_id"`
	ActorID     string                 `json:"actor_id"`
	Blocked     bool                   `json:"blocked"`
	BlockedBy   models.IDSet           `json:"blocked_by"`
	Permissions models.ChatPermissions `json:"permissions"`
}

// ChatRemovedData, chat_removed payload'ı (hide).
type ChatRemovedData struct {
	ChatID     string `json:"chat_id"`
	RemovedFor string `json:"removed_for"`
}

// ChatClearedData, chat_cleared payload'ı.
type ChatClearedData struct {
	ChatID       string   `json:"chat_id"`
	Participants []string `json:"participants"`
	ClearedBy    string   `json:"cleared_by"`
}

// CircleMessageData, circle_message_create payload'ı.
type CircleMessageData struct {
	CircleID string                `json:"circle_id"`
	Message  *models.CircleMessage `json:"message"`
}

// CircleMemberUpdateData, üyelik değişiminde circle odasına gider.
// Action: joined | left | removed.
type CircleMemberUpdateData struct {
	CircleID    string `json:"circle_id"`
	UserID      string `json:"user_id"`
	Action      string `json:"action"`
	MemberCount int    `json:"member_count"`
}

// CircleOwnerChangedData, circle_owner_changed payload'ı.
// Reason: transfer | promotion.
type CircleOwnerChangedData struct {
	CircleID        string `json:"circle_id"`
	PreviousOwnerID string `json:"previous_owner_id"`
	NewOwnerID      string `json:"new_owner_id"`
	Reason          string `json:"reason"`
}

// CircleDeleteData, circle_delete payload'ı.
type CircleDeleteData struct {
	CircleID string `json:"circle_id"`
}
