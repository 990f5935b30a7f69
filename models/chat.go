package models

import (
	"fmt"
	"time"
)

// Chat, iki katılımcılı direkt sohbet.
//
// Katılımcı çifti sırasızdır; DB'de CanonicalPair ile sıralı tutulur ve
// (user_low, user_high) UNIQUE olduğu için aynı çift için tek kayıt olur.
//
// BlockedBy ve HiddenFor birbirinden bağımsız iki eksendir:
//   - BlockedBy: karşı tarafı engelleyen katılımcılar (mesaj/arama kapanır).
//   - HiddenFor: sohbeti kendi listesinden gizleyen katılımcılar (veri silinmez).
type Chat struct {
	ID            string         `json:"id"`
	Participants  []string       `json:"participants"`
	IsGroup       bool           `json:"is_group"`
	LastMessage   *LastMessage   `json:"last_message"`
	LastMessageAt *time.Time     `json:"last_message_at"`
	UnreadCounts  map[string]int `json:"unread_counts"`
	BlockedBy     IDSet          `json:"blocked_by"`
	HiddenFor     IDSet          `json:"hidden_for"`
	CreatedAt     time.Time      `json:"created_at"`
}

// LastMessage, sohbet listesinde gösterilen son mesaj özeti.
type LastMessage struct {
	MessageID  string     `json:"message_id"`
	SenderID   string     `json:"sender_id"`
	Text       string     `json:"text"`
	MediaType  *MediaType `json:"media_type"`
	PreviewURL *string    `json:"preview_url"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ChatPermissions, bir katılımcının bakış açısından türetilen izinler.
type ChatPermissions struct {
	IsBlocked         bool `json:"is_blocked"`           // ben karşı tarafı engelledim
	IsBlockedByTarget bool `json:"is_blocked_by_target"` // karşı taraf beni engelledi
	CanMessage        bool `json:"can_message"`
	CanCall           bool `json:"can_call"`
}

// ChatListItem, sohbet listesinin bir satırı (çağıranın bakış açısından).
type ChatListItem struct {
	Chat
	OtherUser   UserSummary     `json:"other_user"`
	UnreadCount int             `json:"unread_count"`
	Permissions ChatPermissions `json:"permissions"`
}

// CanonicalPair, iki kullanıcı ID'sini sıralı döner.
// resolve(A, B) ve resolve(B, A) aynı anahtarı kullanır.
func CanonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// HasParticipant, kullanıcının bu sohbetin katılımcısı olup olmadığını döner.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant, verilen katılımcının karşısındaki kullanıcıyı döner.
func (c *Chat) OtherParticipant(userID string) (string, error) {
	if len(c.Participants) != 2 || !c.HasParticipant(userID) {
		return "", fmt.Errorf("user %s is not a participant of chat %s", userID, c.ID)
	}
	if c.Participants[0] == userID {
		return c.Participants[1], nil
	}
	return c.Participants[0], nil
}

// PermissionsFor, userID'nin bakış açısından engel durumunu hesaplar.
// userID katılımcı değilse tüm izinler kapalıdır.
func (c *Chat) PermissionsFor(userID string) ChatPermissions {
	other, err := c.OtherParticipant(userID)
	if err != nil {
		return ChatPermissions{}
	}
	p := ChatPermissions{
		IsBlocked:         c.BlockedBy.Contains(userID),
		IsBlockedByTarget: c.BlockedBy.Contains(other),
	}
	p.CanMessage = !p.IsBlocked && !p.IsBlockedByTarget
	p.CanCall = p.CanMessage
	return p
}

// UnreadFor, katılımcının okunmamış sayısını döner (kayıt yoksa 0).
func (c *Chat) UnreadFor(userID string) int {
	return c.UnreadCounts[userID]
}
