package repository

import (
	"context"
	"time"

	"github.com/akinalp/sohbet/models"
)

// MessageRepository, direkt mesaj veritabanı işlemleri için interface.
//
// ListByChat offset-based sayfalama kullanır (page/limit); sonuçlar
// created_at DESC döner, service katmanında eskiden yeniye çevrilir.
type MessageRepository interface {
	// Create, mesajı ve medya kayıtlarını tek transaction'da yazar.
	Create(ctx context.Context, msg *models.Message) error
	ListByChat(ctx context.Context, chatID string, offset, limit int) ([]models.Message, error)
	// MarkReadForReceiver, receiverID'ye gönderilmiş ve henüz okunmamış mesajları
	// read yapar, okundu bilgisini kaydeder ve güncellenen mesaj sayısını döner.
	MarkReadForReceiver(ctx context.Context, chatID, receiverID string, at time.Time) (int64, error)
}
