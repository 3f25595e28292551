package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Metrics = struct {
	BridgeSends         *prometheus.CounterVec
	SendDuration        *prometheus.HistogramVec
	Negotiations        *prometheus.CounterVec
	TransportCalls      *prometheus.CounterVec
	TransportDuration   *prometheus.HistogramVec
	RegisteredProtocols prometheus.Gauge
	EventHandlerPanics  *prometheus.CounterVec
	BotIterations       *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
}{
	BridgeSends: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agorat",
		Name:      "bridge_sends_total",
		Help:      "Bridge send operations by direction and status.",
	}, []string{"direction", "status"}),

	SendDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agorat",
		Name:      "bridge_send_duration_seconds",
		Help:      "End-to-end bridge send duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"direction"}),

	Negotiations: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agorat",
		Name:      "negotiations_total",
		Help:      "Protocol negotiation attempts by status.",
	}, []string{"status"}),

	TransportCalls: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agorat",
		Name:      "transport_calls_total",
		Help:      "Remote transport calls by side, operation and status.",
	}, []string{"side", "op", "status"}),

	TransportDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agorat",
		Name:      "transport_call_duration_seconds",
		Help:      "Remote transport call duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"side", "op"}),

	RegisteredProtocols: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agorat",
		Name:      "registered_protocols",
		Help:      "Number of message types with a negotiated protocol.",
	}),

	EventHandlerPanics: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agorat",
		Name:      "event_handler_panics_total",
		Help:      "Event callbacks recovered from a panic, by event kind.",
	}, []string{"kind"}),

	BotIterations: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agorat",
		Name:      "bot_iterations_total",
		Help:      "Bot polling iterations by status.",
	}, []string{"status"}),

	ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agorat",
		Name:      "errors_total",
		Help:      "Total errors by component.",
	}, []string{"component"}),
}
