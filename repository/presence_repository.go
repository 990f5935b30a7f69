package repository

import (
	"context"
	"time"

	"github.com/akinalp/sohbet/models"
)

// PresenceRepository, kalıcı presence kayıtları.
// Kayıt ilk bağlantıda oluşur ve hiç silinmez.
type PresenceRepository interface {
	// Upsert, kaydı yoksa oluşturur, varsa is_active ve last_active'i günceller.
	Upsert(ctx context.Context, userID string, isActive bool, lastActive time.Time) error
	// Get, kayıt yoksa pkg.ErrNotFound döner.
	Get(ctx context.Context, userID string) (*models.Presence, error)
	GetMany(ctx context.Context, userIDs []string) (map[string]*models.Presence, error)
}
