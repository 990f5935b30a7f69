// Package services: CallRelayService: arama signaling relay'i.
//
// Sunucu sadece signaling relay görevi görür; medya doğrudan P2P akar ve
// arama durumu (çalıyor, aktif, bitti) sunucuda tutulmaz. Relay, iki taraf
// arasında mevcut bir sohbet ister ve engel durumunu kontrol eder.
package services

import (
	"context"
	"encoding/json"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg/metrics"
	"github.com/akinalp/sohbet/ws"
	"go.uber.org/zap"
)

// ChatLookup, relay'in ihtiyaç duyduğu minimal interface.
// repository.ChatRepository bunu duck typing ile karşılar. Relay sohbet
// oluşturmaz, sadece arar.
type ChatLookup interface {
	GetByPair(ctx context.Context, userA, userB string) (*models.Chat, error)
}

// CallRelayService, call_signal event'lerini karşı tarafa iletir.
type CallRelayService interface {
	// Relay, payload'ı değiştirmeden user:<toID> odasına iletir.
	// Başarısızlıkta *models.CallRelayError döner.
	Relay(ctx context.Context, fromID, toID string, payload json.RawMessage) error
}

type callRelayService struct {
	chats ChatLookup
	hub   ws.EventPublisher
}

// NewCallRelayService, constructor.
func NewCallRelayService(chats ChatLookup, hub ws.EventPublisher) CallRelayService {
	return &callRelayService{chats: chats, hub: hub}
}

func (s *callRelayService) Relay(ctx context.Context, fromID, toID string, payload json.RawMessage) error {
	chat, err := s.chats.GetByPair(ctx, fromID, toID)
	if err != nil {
		zap.S().Errorw("[call] chat lookup failed", "from", fromID, "to", toID, "error", err)
		return s.fail(models.CallErrCallSetupFailed, err)
	}
	if chat == nil || fromID == toID {
		return s.fail(models.CallErrChatNotFound, nil)
	}

	// Karşı tarafın engeli önce kontrol edilir: iki taraf da engellediyse
	// arayan "engellendin" bilgisini görür.
	if chat.BlockedBy.Contains(toID) {
		return s.fail(models.CallErrBlockedByTarget, nil)
	}
	if chat.BlockedBy.Contains(fromID) {
		return s.fail(models.CallErrYouBlockedTarget, nil)
	}

	s.hub.BroadcastToUser(toID, ws.Event{
		Op: ws.OpCallSignal,
		Data: ws.CallSignalData{
			From:    fromID,
			To:      toID,
			Payload: payload,
		},
	})
	metrics.CallRelays.WithLabelValues("forwarded").Inc()
	return nil
}

func (s *callRelayService) fail(code models.CallErrorCode, cause error) error {
	metrics.CallRelays.WithLabelValues(string(code)).Inc()
	return &models.CallRelayError{Code: code, Err: cause}
}
