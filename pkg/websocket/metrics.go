package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveConnections tracks clients connected to the hub.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "price_bets_stream_active_connections",
		Help: "Number of clients connected to the event stream",
	})

	// MessagesSentTotal tracks messages queued to hub clients.
	MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_stream_messages_sent_total",
		Help: "Total number of event stream messages queued to clients",
	})

	// MessagesReceivedTotal tracks messages read by subscribers.
	MessagesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_stream_messages_received_total",
		Help: "Total number of event stream messages received by subscribers",
	})

	// MessagesDroppedTotal tracks dropped messages by reason.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_stream_messages_dropped_total",
			Help: "Total number of event stream messages dropped (hub_full, slow_client, channel_full)",
		},
		[]string{"reason"},
	)

	// ReconnectAttemptsTotal tracks subscriber reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_stream_reconnect_attempts_total",
		Help: "Total number of event stream reconnection attempts",
	})

	// ReconnectFailuresTotal tracks failed subscriber reconnections.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_stream_reconnect_failures_total",
		Help: "Total number of failed event stream reconnections",
	})

	// ConnectionDuration tracks subscriber connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "price_bets_stream_connection_duration_seconds",
		Help:    "Duration of subscriber connections before disconnect",
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
	})
)
