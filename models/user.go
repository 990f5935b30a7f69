// Package models, uygulamanın domain modellerini (veri yapıları) tanımlar.
//
// Model hem veritabanı tablosunun Go karşılığıdır hem de API'den gelen/giden
// verinin şeklini belirler. JSON alanları snake_case'tir.
package models

import "time"

// User, hesap servisi tarafından oluşturulan kullanıcı kaydı.
// Bu modül kullanıcıyı sadece okur ("resolve a user by id").
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name"` // *string = nullable
	AvatarURL   *string   `json:"avatar_url"`
	Email       *string   `json:"-"` // Sadece bildirim email'i için; API response'a dahil edilmez
	CreatedAt   time.Time `json:"created_at"`
}

// UserSummary, event payload'larına ve listelere gömülen kısa kullanıcı bilgisi.
type UserSummary struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// Summary, User'dan UserSummary üretir.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// Name, görünen ad varsa onu, yoksa kullanıcı adını döner.
func (s UserSummary) Name() string {
	if s.DisplayName != nil && *s.DisplayName != "" {
		return *s.DisplayName
	}
	return s.Username
}
