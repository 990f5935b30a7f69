package models

import "time"

// Presence, kullanıcının kalıcı presence kaydı.
// İlk bağlantıda oluşur, her commit edilen geçişte güncellenir, silinmez.
type Presence struct {
	UserID     string    `json:"user_id"`
	IsActive   bool      `json:"is_active"`
	LastActive time.Time `json:"last_active"`
}
