package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus instruments. All components share
// one instance; tests pass their own registry to keep runs isolated.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	MessagesPersisted prometheus.Counter
	BroadcastFrames   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Number of live gateway connections.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_online_users",
			Help: "Number of announced presence entries.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Inbound events processed, by event name.",
		}, []string{"event"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Inbound events dropped, by reason.",
		}, []string{"reason"}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_persisted_total",
			Help: "Messages durably appended to the store.",
		}),
		BroadcastFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcast_frames_total",
			Help: "Frames fanned out to connections.",
		}),
	}
}
