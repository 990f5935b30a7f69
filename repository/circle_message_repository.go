package repository

import (
	"context"

	"github.com/akinalp/sohbet/models"
)

// CircleMessageRepository, circle mesajları için veritabanı işlemleri.
type CircleMessageRepository interface {
	// Create, mesajı ve eklerini tek transaction'da yazar.
	Create(ctx context.Context, msg *models.CircleMessage) error
	// List, en yeniden eskiye sıralı sayfa döner; gönderen özetleri doldurulur.
	List(ctx context.Context, circleID string, offset, limit int) ([]models.CircleMessage, error)
	Count(ctx context.Context, circleID string) (int, error)
}
