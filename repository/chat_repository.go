package repository

import (
	"context"

	"github.com/akinalp/sohbet/models"
)

// ChatRepository, direkt sohbet kayıtları ve per-key sayaç/küme işlemleri.
//
// Sayaç ve küme işlemleri tek anahtarlıdır (atomic upsert / INSERT OR IGNORE /
// DELETE); tüm dokümanı okuyup geri yazan bir işlem yoktur. İki katılımcı
// aynı anda aynı sohbette işlem yapabilir.
type ChatRepository interface {
	// GetByPair, çift için sohbeti döner; yoksa (nil, nil).
	GetByPair(ctx context.Context, userA, userB string) (*models.Chat, error)
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	// Create, çift zaten kayıtlıysa pkg.ErrAlreadyExists döner.
	Create(ctx context.Context, chat *models.Chat) error
	// ListVisible, userID'nin katılımcı olduğu ve gizlemediği sohbetler,
	// last_message_at azalan sırada.
	ListVisible(ctx context.Context, userID string) ([]models.Chat, error)

	// SetLastMessage, özet daha eski değilse yazar; eşzamanlı gönderimlerde geri gitmez.
	SetLastMessage(ctx context.Context, chatID string, lm *models.LastMessage) error
	// ClearHistory, tek transaction'da sohbetin mesajlarını siler, son mesaj
	// özetini boşaltır ve tüm okunmamış sayaçlarını sıfırlar. Silinen mesaj
	// sayısını döner.
	ClearHistory(ctx context.Context, chatID string) (int64, error)

	IncrementUnread(ctx context.Context, chatID, userID string) error
	ResetUnread(ctx context.Context, chatID, userID string) error

	AddBlock(ctx context.Context, chatID, userID string) (bool, error)
	RemoveBlock(ctx context.Context, chatID, userID string) (bool, error)
	AddHidden(ctx context.Context, chatID, userID string) (bool, error)
	RemoveHidden(ctx context.Context, chatID string, userIDs ...string) error
}
