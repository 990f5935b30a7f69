// Package email, uygulama genelinde email gönderimi için soyutlama katmanı sağlar.
//
// EmailSender interface'i ile gönderim detayları soyutlanır; şu anki
// implementasyon Resend API kullanır. Service'ler interface'e bağımlıdır,
// main'de sadece RESEND_* ayarları varsa gerçek sender verilir, yoksa nil.
package email

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v3"
)

// EmailSender, email gönderimi için interface.
type EmailSender interface {
	// SendOwnershipNotice, bir circle'ın sahipliği kullanıcıya geçtiğinde bilgi verir.
	SendOwnershipNotice(ctx context.Context, toEmail string, notice OwnershipNotice) error
}

// OwnershipNotice, sahiplik email'inin içerik verisi.
type OwnershipNotice struct {
	CircleID   string
	CircleName string
	// Reason: "transfer" (önceki sahip devretti) veya "promotion" (önceki sahip ayrıldı).
	Reason string
}

type resendSender struct {
	client    *resend.Client
	fromEmail string
	appURL    string
}

// NewResendSender, Resend API client'ı ile yeni bir EmailSender oluşturur.
//
// fromEmail: Resend'de doğrulanmış domain altında gönderici adresi.
// appURL: circle linkleri için uygulamanın public URL'i.
func NewResendSender(apiKey, fromEmail, appURL string) EmailSender {
	return &resendSender{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		appURL:    appURL,
	}
}

func (s *resendSender) SendOwnershipNotice(ctx context.Context, toEmail string, notice OwnershipNotice) error {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("sohbet <%s>", s.fromEmail),
		To:      []string{toEmail},
		Subject: fmt.Sprintf("You are now the owner of %s", notice.CircleName),
		Html:    ownershipHTML(s.appURL, notice),
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send ownership notice: %w", err)
	}
	return nil
}

func ownershipHTML(appURL string, notice OwnershipNotice) string {
	link := fmt.Sprintf("%s/circles/%s", appURL, notice.CircleID)

	lead := "The previous owner transferred the circle to you."
	if notice.Reason == "promotion" {
		lead = "The previous owner left the circle and you were promoted."
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:24px;background-color:#0f172a;font-family:Arial,Helvetica,sans-serif;">
  <h2 style="color:#e2e8f0;font-size:18px;margin:0 0 16px 0;">%s</h2>
  <p style="color:#94a3b8;font-size:15px;line-height:1.6;margin:0 0 24px 0;">%s You can now manage members and settings.</p>
  <a href="%s" style="color:#6366f1;">Open circle</a>
</body>
</html>`, html.EscapeString(notice.CircleName), lead, link)
}
