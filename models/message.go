package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength, direkt mesaj metninin rune cinsinden üst sınırı.
const MaxMessageLength = 4000

// MessageStatus, mesajın teslim durumu. Sadece ileri yönde değişir: sent → delivered → read.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// MediaType, ek dosyanın türü. MIME tipinden türetilir.
type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeAudio    MediaType = "audio"
	MediaTypeDocument MediaType = "document"
)

// MediaTypeFromMime, "image/png" → image, "audio/ogg" → audio; tanınmayanlar document.
func MediaTypeFromMime(mime string) MediaType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(mime, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeDocument
	}
}

// CallType, arama özeti mesajlarında arama türü.
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallStatus, arama özetinin sonucu. Client katmanı arama bittiğinde yazar.
type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusDeclined CallStatus = "declined"
	CallStatusMissed   CallStatus = "missed"
	CallStatusEnded    CallStatus = "ended"
)

// Media, mesaja eklenmiş tek bir dosya.
type Media struct {
	URL      string    `json:"url"`
	Type     MediaType `json:"type"`
	Size     int64     `json:"size"`
	ThumbURL *string   `json:"thumb_url"`
	MimeType string    `json:"mime_type"`
	Duration *int      `json:"duration"` // Saniye; ses/video için
}

// Message, direkt sohbetteki bir mesaj.
// Oluşturulduktan sonra sadece Status ve ReadBy değişir.
type Message struct {
	ID           string        `json:"id"`
	ChatID       string        `json:"chat_id"`
	SenderID     string        `json:"sender_id"`
	ReceiverID   string        `json:"receiver_id"`
	Text         string        `json:"text"`
	Media        []Media       `json:"media"`
	Status       MessageStatus `json:"status"`
	ReadBy       IDSet         `json:"read_by"`
	CallType     *CallType     `json:"call_type"`
	CallStatus   *CallStatus   `json:"call_status"`
	CallDuration *int          `json:"call_duration"`
	CreatedAt    time.Time     `json:"created_at"`

	Sender *UserSummary `json:"sender,omitempty"`
}

// IsCallRecord, mesajın metin yerine arama özeti olup olmadığını döner.
func (m *Message) IsCallRecord() bool {
	return m.CallType != nil
}

// Snapshot, sohbet listesi için son mesaj özetini üretir.
//
// Sadece ek içeren mesajlarda metin "Shared a <tür>" olur (ses için "voice note"),
// arama özetlerinde "Voice call" / "Video call".
func (m *Message) Snapshot() *LastMessage {
	lm := &LastMessage{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}

	if len(m.Media) > 0 {
		first := m.Media[0]
		mt := first.Type
		lm.MediaType = &mt
		preview := first.URL
		if first.ThumbURL != nil {
			preview = *first.ThumbURL
		}
		lm.PreviewURL = &preview
		if lm.Text == "" {
			label := string(mt)
			if mt == MediaTypeAudio {
				label = "voice note"
			}
			lm.Text = "Shared a " + label
		}
	}

	if lm.Text == "" && m.CallType != nil {
		if *m.CallType == CallTypeVideo {
			lm.Text = "Video call"
		} else {
			lm.Text = "Voice call"
		}
	}

	return lm
}

// SendMessageRequest, direkt mesaj gönderme isteği.
//
// HasAttachment handler tarafından set edilir (multipart'ta dosya varsa);
// bu durumda Text boş olabilir. Call* alanları arama özeti mesajı içindir.
type SendMessageRequest struct {
	Text          string      `json:"text"`
	CallType      *CallType   `json:"call_type,omitempty"`
	CallStatus    *CallStatus `json:"call_status,omitempty"`
	CallDuration  *int        `json:"call_duration,omitempty"`
	HasAttachment bool        `json:"-"`
}

// Validate, isteği normalize eder ve kontrol eder.
func (r *SendMessageRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)

	if utf8.RuneCountInString(r.Text) > MaxMessageLength {
		return fmt.Errorf("message text must be at most %d characters", MaxMessageLength)
	}

	if r.CallType != nil {
		switch *r.CallType {
		case CallTypeVoice, CallTypeVideo:
		default:
			return fmt.Errorf("invalid call type %q", *r.CallType)
		}
	}
	if r.CallStatus != nil {
		if r.CallType == nil {
			return fmt.Errorf("call status requires a call type")
		}
		switch *r.CallStatus {
		case CallStatusRinging, CallStatusDeclined, CallStatusMissed, CallStatusEnded:
		default:
			return fmt.Errorf("invalid call status %q", *r.CallStatus)
		}
	}
	if r.CallDuration != nil && *r.CallDuration < 0 {
		return fmt.Errorf("call duration must not be negative")
	}

	if r.Text == "" && !r.HasAttachment && r.CallType == nil {
		return fmt.Errorf("message must contain text or an attachment")
	}
	return nil
}

// MessagePage, direkt mesajlar için sayfa. Messages eskiden yeniye sıralıdır.
type MessagePage struct {
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	HasMore  bool      `json:"has_more"`
}
