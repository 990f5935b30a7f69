// Package main: WebSocket Hub callback wire-up.
//
// Hub ws paketinde yaşıyor, ama presence, oda doğrulaması ve call relay
// service katmanında. Hub'ın service'lere bağımlı olmasını istemiyoruz;
// main package wire-up noktasıdır ve katmanları burada birbirine bağlar.
//
// OnConnect/OnDisconnect Hub.Run() goroutine'inde sırayla çağrılır.
// Oda doğrulaması ve call relay client'ın kendi goroutine'inde,
// timeout'lu bir context ile çalışır.
package main

import (
	"context"

	"github.com/akinalp/sohbet/services"
	"github.com/akinalp/sohbet/ws"
)

// registerHubCallbacks, tüm Hub callback'lerini register eder.
func registerHubCallbacks(hub *ws.Hub, svcs *Services) {
	// ─── Presence ───
	// Tracker bağlantı sayar; online/offline geçişini kendisi yayınlar.
	hub.OnConnect(svcs.Presence.Connect)
	hub.OnDisconnect(svcs.Presence.Disconnect)

	// ─── Oda doğrulaması ───
	hub.OnJoinChat(svcs.Chat.AuthorizeChatRoom)
	hub.OnJoinCircle(svcs.Circle.AuthorizeCircleRoom)

	// ─── Call signaling ───
	hub.OnCallSignal(newCallSignalFunc(svcs.CallRelay))
}

// newCallSignalFunc, relay service'ini Hub'ın callback imzasına uyarlar.
func newCallSignalFunc(relay services.CallRelayService) ws.CallSignalFunc {
	return func(ctx context.Context, fromID string, data ws.CallSignalData) error {
		return relay.Relay(ctx, fromID, data.To, data.Payload)
	}
}
