// Package metrics, Prometheus collector'larını tanımlar ve /metrics handler'ını sunar.
//
// Collector'lar promauto ile default registry'ye paket yüklenirken kaydedilir.
// Diğer paketler sadece Inc/Dec/Set çağırır; registry detayını bilmez.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sohbet"

var (
	// WSConnections, hub'a kayıtlı aktif WebSocket bağlantı sayısı.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Number of live WebSocket connections.",
	})

	// EventsPublished, op bazında yayınlanan event sayısı (bağlantı başına değil, yayın başına).
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "events_published_total",
		Help:      "Events published by the router, by op.",
	}, []string{"op"})

	// SlowClientsDropped, send buffer'ı dolduğu için düşürülen client sayısı.
	SlowClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "slow_clients_dropped_total",
		Help:      "Clients unregistered because their send buffer was full.",
	})

	// MessagesSent, kalıcı olarak yazılan mesajlar. kind: direct | circle | system.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages persisted, by kind.",
	}, []string{"kind"})

	// PresenceTransitions, store'a commit edilen presence geçişleri. state: online | offline.
	PresenceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "transitions_total",
		Help:      "Committed presence transitions, by resulting state.",
	}, []string{"state"})

	// CallRelays, call signal relay sonuçları. result: forwarded veya hata kodu.
	CallRelays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "call",
		Name:      "relays_total",
		Help:      "Call signal relay attempts, by result.",
	}, []string{"result"})
)

// Handler, default registry'yi Prometheus text formatında sunar.
func Handler() http.Handler {
	return promhttp.Handler()
}
