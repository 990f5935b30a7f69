package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxCircleNameLength        = 80
	MaxCircleDescriptionLength = 500
	MaxCircleMessageLength     = 2000
	CircleJoinKeyLength        = 4
	CircleMembersPreviewSize   = 6
)

// CircleRole, üyenin circle içindeki rolü. Her circle'da tam bir owner vardır.
type CircleRole string

const (
	CircleRoleOwner  CircleRole = "owner"
	CircleRoleAdmin  CircleRole = "admin"
	CircleRoleMember CircleRole = "member"
)

// CircleVisibility: public circle'a herkes katılır, private için join key gerekir.
type CircleVisibility string

const (
	CircleVisibilityPublic  CircleVisibility = "public"
	CircleVisibilityPrivate CircleVisibility = "private"
)

// CircleTheme, circle'ın görsel teması.
type CircleTheme string

const (
	CircleThemeBlue     CircleTheme = "blue"
	CircleThemeLight    CircleTheme = "light"
	CircleThemeMidnight CircleTheme = "midnight"
)

// Circle, rollü üyeliği olan küçük grup sohbeti.
//
// OwnerID ve MemberCount circle_members'tan türetilir; ayrı kolonda tutulmaz.
// JoinKeyHash sadece private circle'larda doludur ve API'ye çıkmaz.
type Circle struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	OwnerID        string           `json:"owner_id"`
	Visibility     CircleVisibility `json:"visibility"`
	Theme          CircleTheme      `json:"theme"`
	MemberCount    int              `json:"member_count"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	CreatedAt      time.Time        `json:"created_at"`
	JoinKeyHash    string           `json:"-"`
}

// IsPrivate, circle'ın join key ile korunup korunmadığını döner.
func (c *Circle) IsPrivate() bool {
	return c.Visibility == CircleVisibilityPrivate
}

// CircleMember, circle üyeliği. IsPinned sadece bu üyenin kendi listesini etkiler.
type CircleMember struct {
	UserID   string       `json:"user_id"`
	Role     CircleRole   `json:"role"`
	JoinedAt time.Time    `json:"joined_at"`
	IsPinned bool         `json:"is_pinned"`
	User     *UserSummary `json:"user,omitempty"`
}

// CircleListItem, circle listesi satırı (çağıranın bakış açısından).
type CircleListItem struct {
	Circle
	IsMember       bool          `json:"is_member"`
	MyRole         *CircleRole   `json:"my_role"`
	IsPinned       bool          `json:"is_pinned"`
	MembersPreview []UserSummary `json:"members_preview"`
}

// CircleDetails, tek circle görünümü: üyeler join sırasıyla.
type CircleDetails struct {
	Circle
	Members  []CircleMember `json:"members"`
	IsMember bool           `json:"is_member"`
	MyRole   *CircleRole    `json:"my_role"`
}

// CreateCircleRequest, yeni circle oluşturma isteği.
type CreateCircleRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Visibility  CircleVisibility `json:"visibility"`
	JoinKey     string           `json:"join_key"`
	Theme       CircleTheme      `json:"theme"`
}

// Validate, isteği normalize eder: boş visibility → public, boş tema → blue.
// Public circle'da join key yoksayılır.
func (r *CreateCircleRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)

	nameLen := utf8.RuneCountInString(r.Name)
	if nameLen < 1 || nameLen > MaxCircleNameLength {
		return fmt.Errorf("circle name must be between 1 and %d characters", MaxCircleNameLength)
	}
	if utf8.RuneCountInString(r.Description) > MaxCircleDescriptionLength {
		return fmt.Errorf("circle description must be at most %d characters", MaxCircleDescriptionLength)
	}

	switch r.Visibility {
	case "":
		r.Visibility = CircleVisibilityPublic
	case CircleVisibilityPublic, CircleVisibilityPrivate:
	default:
		return fmt.Errorf("invalid visibility %q", r.Visibility)
	}

	switch r.Theme {
	case "":
		r.Theme = CircleThemeBlue
	case CircleThemeBlue, CircleThemeLight, CircleThemeMidnight:
	default:
		return fmt.Errorf("invalid theme %q", r.Theme)
	}

	if r.Visibility == CircleVisibilityPrivate {
		if err := ValidateJoinKey(r.JoinKey); err != nil {
			return err
		}
	} else {
		r.JoinKey = ""
	}
	return nil
}

// ValidateJoinKey, private circle key'inin tam 4 karakter olduğunu kontrol eder.
func ValidateJoinKey(key string) error {
	if utf8.RuneCountInString(key) != CircleJoinKeyLength {
		return fmt.Errorf("join key must be exactly %d characters", CircleJoinKeyLength)
	}
	return nil
}

// JoinCircleRequest, circle'a katılma isteği. Public circle'da key yoksayılır.
type JoinCircleRequest struct {
	JoinKey string `json:"join_key"`
}

// TransferOwnershipRequest, sahipliği bir üyeye devretme isteği.
type TransferOwnershipRequest struct {
	MemberID string `json:"member_id"`
}

// JoinResult, Join sonucunu taşır. AlreadyMember=true ise hiçbir şey değişmedi.
type JoinResult struct {
	CircleID      string `json:"circle_id"`
	AlreadyMember bool   `json:"already_member"`
	Message       string `json:"message"`
}

// LeaveResult, Leave sonucunu taşır.
type LeaveResult struct {
	CircleID      string  `json:"circle_id"`
	CircleDeleted bool    `json:"circle_deleted"`
	NewOwnerID    *string `json:"new_owner_id"`
}

// CircleAttachment, circle mesajına eklenmiş dosya.
type CircleAttachment struct {
	URL      string    `json:"url"`
	Type     MediaType `json:"type"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mime_type"`
}

// CircleMessage, circle'a gönderilen mesaj. System=true ise sunucunun ürettiği
// bildirimdir (üye katıldı/ayrıldı, sahiplik değişti) ve SenderID boştur.
type CircleMessage struct {
	ID          string             `json:"id"`
	CircleID    string             `json:"circle_id"`
	SenderID    *string            `json:"sender_id"`
	Text        string             `json:"text"`
	Attachments []CircleAttachment `json:"attachments"`
	System      bool               `json:"system"`
	CreatedAt   time.Time          `json:"created_at"`

	Sender *UserSummary `json:"sender,omitempty"`
}

// PostCircleMessageRequest, circle mesajı gönderme isteği.
type PostCircleMessageRequest struct {
	Text          string `json:"text"`
	HasAttachment bool   `json:"-"`
}

// Validate, metin veya ek zorunludur.
func (r *PostCircleMessageRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)
	n := utf8.RuneCountInString(r.Text)
	if n == 0 && !r.HasAttachment {
		return fmt.Errorf("message text is required")
	}
	if n > MaxCircleMessageLength {
		return fmt.Errorf("message text must be at most %d characters", MaxCircleMessageLength)
	}
	return nil
}

// CircleMessagePage, circle mesaj sayfası. Messages eskiden yeniye sıralıdır.
type CircleMessagePage struct {
	CircleID string          `json:"circle_id"`
	Messages []CircleMessage `json:"messages"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
	Total    int             `json:"total"`
	HasMore  bool            `json:"has_more"`
}
