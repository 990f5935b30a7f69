package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/pkg/metrics"
	"github.com/akinalp/sohbet/pkg/ratelimit"
	"github.com/akinalp/sohbet/repository"
	"github.com/akinalp/sohbet/ws"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Direkt mesaj sayfalama sınırları.
const (
	DefaultChatMessageLimit = 50
	MaxChatMessageLimit     = 100
)

// ChatService, direkt sohbet iş mantığı.
//
// Sohbet:
//   - ResolveChat: çift için sohbeti bul veya oluştur (eşzamanlı çağrılar tek kayıt üretir)
//   - ListChats: çağıranın gizlemediği sohbetler, son mesaja göre
//
// Mesaj:
//   - GetMessages: sayfa getir, okundu işaretle, unread sıfırla
//   - SendMessage: engel kontrolü, ek dosya, unread sayacı, WS yayını
//
// Moderasyon:
//   - Block / Unblock / Hide / Clear
type ChatService interface {
	ResolveChat(ctx context.Context, userA, userB string) (*models.Chat, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatListItem, error)

	GetMessages(ctx context.Context, requesterID, targetID string, page, limit int) (*models.MessagePage, error)
	SendMessage(ctx context.Context, senderID, targetID string, req *models.SendMessageRequest, upload *Upload) (*models.Message, error)

	Block(ctx context.Context, userID, targetID string) (*models.ChatPermissions, error)
	Unblock(ctx context.Context, userID, targetID string) (*models.ChatPermissions, error)
	Hide(ctx context.Context, userID, targetID string) error
	Clear(ctx context.Context, userID, targetID string) error

	// AuthorizeChatRoom, join_chat için katılımcı kontrolü (ws.RoomAuthorizer).
	AuthorizeChatRoom(ctx context.Context, userID, chatID string) error
}

type chatService struct {
	chatRepo    repository.ChatRepository
	messageRepo repository.MessageRepository
	users       UserDirectory
	attachments AttachmentStore
	hub         ws.EventPublisher
	limiter     *ratelimit.KeyedLimiter
	clock       clock.Clock
}

// NewChatService, constructor. limiter nil ise gönderim sınırlanmaz.
func NewChatService(
	chatRepo repository.ChatRepository,
	messageRepo repository.MessageRepository,
	users UserDirectory,
	attachments AttachmentStore,
	hub ws.EventPublisher,
	limiter *ratelimit.KeyedLimiter,
	clk clock.Clock,
) ChatService {
	return &chatService{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		users:       users,
		attachments: attachments,
		hub:         hub,
		limiter:     limiter,
		clock:       clk,
	}
}

func (s *chatService) now() time.Time {
	return s.clock.Now().UTC()
}

// ResolveChat, çift için sohbeti döner; yoksa oluşturur.
// İki istek aynı anda oluşturmaya çalışırsa kaybeden ErrAlreadyExists görür
// ve kazananın kaydını tekrar okur; çağırana conflict hiç dönmez.
func (s *chatService) ResolveChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	if userA == userB {
		return nil, fmt.Errorf("%w: cannot open a chat with yourself", pkg.ErrBadRequest)
	}
	for _, id := range []string{userA, userB} {
		if _, err := s.users.Summary(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.resolve(ctx, userA, userB)
}

// resolve, kullanıcıların varlığı kontrol edildikten sonra çağrılır.
func (s *chatService) resolve(ctx context.Context, userA, userB string) (*models.Chat, error) {
	chat, err := s.chatRepo.GetByPair(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return chat, nil
	}

	chat = &models.Chat{
		Participants: []string{userA, userB},
		CreatedAt:    s.now(),
	}
	err = s.chatRepo.Create(ctx, chat)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, pkg.ErrAlreadyExists) {
		return nil, err
	}

	chat, err = s.chatRepo.GetByPair(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fmt.Errorf("%w: chat vanished after concurrent create", pkg.ErrInternal)
	}
	return chat, nil
}

// existingChat, sohbeti oluşturmadan arar. Hedef yoksa NotFound, sohbet yoksa (nil, nil).
func (s *chatService) existingChat(ctx context.Context, userID, targetID string) (*models.Chat, error) {
	if userID == targetID {
		return nil, fmt.Errorf("%w: target must be another user", pkg.ErrBadRequest)
	}
	if _, err := s.users.Summary(ctx, targetID); err != nil {
		return nil, err
	}
	return s.chatRepo.GetByPair(ctx, userID, targetID)
}

func (s *chatService) ListChats(ctx context.Context, userID string) ([]models.ChatListItem, error) {
	chats, err := s.chatRepo.ListVisible(ctx, userID)
	if err != nil {
		return nil, err
	}

	others := make([]string, 0, len(chats))
	for i := range chats {
		if other, err := chats[i].OtherParticipant(userID); err == nil {
			others = append(others, other)
		}
	}
	summaries, err := s.users.Summaries(ctx, others)
	if err != nil {
		return nil, err
	}

	items := make([]models.ChatListItem, 0, len(chats))
	for i := range chats {
		chat := chats[i]
		other, err := chat.OtherParticipant(userID)
		if err != nil {
			continue
		}
		summary, ok := summaries[other]
		if !ok {
			// Hesabı silinmiş kullanıcı: id ile göster.
			summary = models.UserSummary{ID: other}
		}
		items = append(items, models.ChatListItem{
			Chat:        chat,
			OtherUser:   summary,
			UnreadCount: chat.UnreadFor(userID),
			Permissions: chat.PermissionsFor(userID),
		})
	}
	return items, nil
}

// GetMessages, sayfayı eskiden yeniye döner. Yan etkiler: çağırana gelen
// okunmamış mesajlar read olur, çağıranın sayacı sıfırlanır ve sohbet
// çağıranın listesinde tekrar görünür.
func (s *chatService) GetMessages(ctx context.Context, requesterID, targetID string, page, limit int) (*models.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit, 1, MaxChatMessageLimit, DefaultChatMessageLimit)

	chat, err := s.ResolveChat(ctx, requesterID, targetID)
	if err != nil {
		return nil, err
	}

	// Bir fazla çekerek sonraki sayfanın varlığını anlarız.
	messages, err := s.messageRepo.ListByChat(ctx, chat.ID, (page-1)*limit, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	slices.Reverse(messages)

	if _, err := s.messageRepo.MarkReadForReceiver(ctx, chat.ID, requesterID, s.now()); err != nil {
		return nil, err
	}
	if err := s.chatRepo.ResetUnread(ctx, chat.ID, requesterID); err != nil {
		return nil, err
	}
	if err := s.chatRepo.RemoveHidden(ctx, chat.ID, requesterID); err != nil {
		return nil, err
	}

	// Dönen sayfa okundu işaretlemesini yansıtsın.
	for i := range messages {
		m := &messages[i]
		if m.ReceiverID == requesterID && m.Status != models.MessageStatusRead {
			m.Status = models.MessageStatusRead
			if m.ReadBy == nil {
				m.ReadBy = models.NewIDSet()
			}
			m.ReadBy.Add(requesterID)
		}
	}

	return &models.MessagePage{
		ChatID:   chat.ID,
		Messages: messages,
		Page:     page,
		Limit:    limit,
		HasMore:  hasMore,
	}, nil
}

// SendMessage, yazım öncesi kontrolleri sırayla yapar: hedef var mı, kendisi
// mi, istek geçerli mi, sohbet, engel. Ek dosya mesajdan önce saklanır;
// mesaj yazılamazsa dosya silinir.
func (s *chatService) SendMessage(ctx context.Context, senderID, targetID string, req *models.SendMessageRequest, upload *Upload) (*models.Message, error) {
	if s.limiter != nil && !s.limiter.Allow(senderID) {
		return nil, &pkg.RateLimitError{RetryAfterSeconds: s.limiter.RetryAfterSeconds(senderID)}
	}

	if _, err := s.users.Summary(ctx, targetID); err != nil {
		return nil, err
	}
	if senderID == targetID {
		return nil, fmt.Errorf("%w: cannot message yourself", pkg.ErrBadRequest)
	}

	req.HasAttachment = upload != nil
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	chat, err := s.resolve(ctx, senderID, targetID)
	if err != nil {
		return nil, err
	}

	perms := chat.PermissionsFor(senderID)
	if perms.IsBlocked {
		return nil, fmt.Errorf("%w: you blocked this user", pkg.ErrForbidden)
	}
	if perms.IsBlockedByTarget {
		return nil, fmt.Errorf("%w: this user blocked you", pkg.ErrForbidden)
	}

	msg := &models.Message{
		ChatID:       chat.ID,
		SenderID:     senderID,
		ReceiverID:   targetID,
		Text:         req.Text,
		Media:        []models.Media{},
		Status:       models.MessageStatusSent,
		ReadBy:       models.NewIDSet(),
		CallType:     req.CallType,
		CallStatus:   req.CallStatus,
		CallDuration: req.CallDuration,
		CreatedAt:    s.now(),
	}

	var stored *StoredAttachment
	if upload != nil {
		stored, err = s.attachments.Save(ctx, upload.File, upload.Header)
		if err != nil {
			return nil, err
		}
		msg.Media = append(msg.Media, models.Media{
			URL:      stored.URL,
			Type:     stored.Type,
			Size:     stored.Size,
			MimeType: stored.MimeType,
		})
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if stored != nil {
			if rmErr := s.attachments.Remove(stored); rmErr != nil {
				zap.S().Warnw("[chat] failed to remove orphan attachment", "url", stored.URL, "error", rmErr)
			}
		}
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues("direct").Inc()

	// Mesaj kalıcı; sohbet durumu güncellemeleri başarısız olursa mesaj yine teslim edilir.
	s.applyDeliveryState(ctx, chat.ID, msg)

	sender, err := s.users.Summary(ctx, senderID)
	if err != nil {
		sender = models.UserSummary{ID: senderID}
	}
	msg.Sender = &sender

	s.hub.Publish(ws.Event{
		Op: ws.OpChatMessageCreate,
		Data: ws.ChatMessageData{
			ChatID:  chat.ID,
			Message: msg,
			Sender:  sender,
		},
	}, ws.UserRoom(targetID), ws.UserRoom(senderID), ws.ChatRoom(chat.ID))

	return msg, nil
}

func (s *chatService) applyDeliveryState(ctx context.Context, chatID string, msg *models.Message) {
	if err := s.chatRepo.SetLastMessage(ctx, chatID, msg.Snapshot()); err != nil {
		zap.S().Errorw("[chat] failed to update last message", "chat_id", chatID, "error", err)
	}
	if err := s.chatRepo.IncrementUnread(ctx, chatID, msg.ReceiverID); err != nil {
		zap.S().Errorw("[chat] failed to increment unread", "chat_id", chatID, "error", err)
	}
	if err := s.chatRepo.ResetUnread(ctx, chatID, msg.SenderID); err != nil {
		zap.S().Errorw("[chat] failed to reset sender unread", "chat_id", chatID, "error", err)
	}
	if err := s.chatRepo.RemoveHidden(ctx, chatID, msg.SenderID, msg.ReceiverID); err != nil {
		zap.S().Errorw("[chat] failed to unhide chat", "chat_id", chatID, "error", err)
	}
}

func (s *chatService) Block(ctx context.Context, userID, targetID string) (*models.ChatPermissions, error) {
	return s.setBlock(ctx, userID, targetID, true)
}

func (s *chatService) Unblock(ctx context.Context, userID, targetID string) (*models.ChatPermissions, error) {
	return s.setBlock(ctx, userID, targetID, false)
}

// setBlock, engel kümesine idempotent ekleme/çıkarma yapar ve her
// katılımcıya kendi bakış açısından chat_block_update gönderir.
func (s *chatService) setBlock(ctx context.Context, userID, targetID string, blocked bool) (*models.ChatPermissions, error) {
	chat, err := s.ResolveChat(ctx, userID, targetID)
	if err != nil {
		return nil, err
	}

	var changed bool
	if blocked {
		changed, err = s.chatRepo.AddBlock(ctx, chat.ID, userID)
		chat.BlockedBy.Add(userID)
	} else {
		changed, err = s.chatRepo.RemoveBlock(ctx, chat.ID, userID)
		chat.BlockedBy.Remove(userID)
	}
	if err != nil {
		return nil, err
	}

	zap.S().Infow("[chat] block state updated",
		"chat_id", chat.ID, "actor_id", userID, "blocked", blocked, "changed", changed)

	for _, p := range chat.Participants {
		s.hub.BroadcastToUser(p, ws.Event{
			Op: ws.OpChatBlockUpdate,
			Data: ws.ChatBlockUpdateData{
				ChatID:      chat.ID,
				ActorID:     userID,
				Blocked:     blocked,
				BlockedBy:   chat.BlockedBy,
				Permissions: chat.PermissionsFor(p),
			},
		})
	}

	perms := chat.PermissionsFor(userID)
	return &perms, nil
}

// Hide, sohbeti sadece çağıranın listesinden kaldırır. Sohbet yoksa no-op.
func (s *chatService) Hide(ctx context.Context, userID, targetID string) error {
	chat, err := s.existingChat(ctx, userID, targetID)
	if err != nil || chat == nil {
		return err
	}

	if _, err := s.chatRepo.AddHidden(ctx, chat.ID, userID); err != nil {
		return err
	}

	data := ws.ChatRemovedData{ChatID: chat.ID, RemovedFor: userID}
	for _, p := range chat.Participants {
		s.hub.BroadcastToUser(p, ws.Event{Op: ws.OpChatRemoved, Data: data})
	}
	return nil
}

// Clear, tüm mesajları siler; sohbet kaydı, engel ve gizleme kümeleri kalır.
// Sohbet yoksa no-op.
func (s *chatService) Clear(ctx context.Context, userID, targetID string) error {
	chat, err := s.existingChat(ctx, userID, targetID)
	if err != nil || chat == nil {
		return err
	}

	deleted, err := s.chatRepo.ClearHistory(ctx, chat.ID)
	if err != nil {
		return err
	}

	zap.S().Infow("[chat] chat cleared", "chat_id", chat.ID, "cleared_by", userID, "deleted", deleted)

	rooms := make([]string, 0, len(chat.Participants)+1)
	for _, p := range chat.Participants {
		rooms = append(rooms, ws.UserRoom(p))
	}
	rooms = append(rooms, ws.ChatRoom(chat.ID))
	s.hub.Publish(ws.Event{
		Op: ws.OpChatCleared,
		Data: ws.ChatClearedData{
			ChatID:       chat.ID,
			Participants: chat.Participants,
			ClearedBy:    userID,
		},
	}, rooms...)
	return nil
}

func (s *chatService) AuthorizeChatRoom(ctx context.Context, userID, chatID string) error {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return fmt.Errorf("%w: not a participant of this chat", pkg.ErrForbidden)
	}
	return nil
}

// clampLimit, 0 veya negatif limit için varsayılanı, aksi halde [lo, hi] aralığını döner.
func clampLimit(limit, lo, hi, def int) int {
	if limit <= 0 {
		return def
	}
	if limit < lo {
		return lo
	}
	if limit > hi {
		return hi
	}
	return limit
}
