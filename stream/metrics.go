package stream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sudocode-ai/Roo-Code-server/metric"
)

// serverMetrics holds the Prometheus instruments for one Server. A nil
// *serverMetrics is valid and records nothing, so metrics stay optional
// in tests and embedded deployments.
type serverMetrics struct {
	connectionsTotal    prometheus.Counter
	disconnectionsTotal *prometheus.CounterVec
	clientsConnected    prometheus.Gauge
	eventsSentTotal     *prometheus.CounterVec
	framesDroppedTotal  *prometheus.CounterVec
	commandsTotal       *prometheus.CounterVec
	heartbeatsTotal     prometheus.Counter
	broadcastDuration   prometheus.Histogram
}

func newServerMetrics(registry *metric.Registry) *serverMetrics {
	if registry == nil {
		return nil
	}

	m := &serverMetrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_connections_total",
			Help: "Total client connections accepted",
		}),
		disconnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_disconnections_total",
			Help: "Total client disconnections by reason",
		}, []string{"reason"}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_clients_connected",
			Help: "Currently connected clients",
		}),
		eventsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_events_sent_total",
			Help: "Stream events written to clients by event type",
		}, []string{"type"}),
		framesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_frames_dropped_total",
			Help: "Inbound frames dropped by reason",
		}, []string{"reason"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_task_commands_total",
			Help: "Inbound task commands by outcome",
		}, []string{"outcome"}),
		heartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_heartbeats_total",
			Help: "Heartbeat broadcasts performed",
		}),
		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stream_broadcast_duration_seconds",
			Help:    "Wall time of one broadcast fan-out",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister("stream",
		metric.Named("connections_total", m.connectionsTotal),
		metric.Named("disconnections_total", m.disconnectionsTotal),
		metric.Named("clients_connected", m.clientsConnected),
		metric.Named("events_sent_total", m.eventsSentTotal),
		metric.Named("frames_dropped_total", m.framesDroppedTotal),
		metric.Named("task_commands_total", m.commandsTotal),
		metric.Named("heartbeats_total", m.heartbeatsTotal),
		metric.Named("broadcast_duration_seconds", m.broadcastDuration),
	)
	return m
}

func (m *serverMetrics) connectionOpened(current int) {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.clientsConnected.Set(float64(current))
}

func (m *serverMetrics) connectionClosed(reason string, current int) {
	if m == nil {
		return
	}
	m.disconnectionsTotal.WithLabelValues(reason).Inc()
	m.clientsConnected.Set(float64(current))
}

func (m *serverMetrics) eventSent(eventType string) {
	if m == nil {
		return
	}
	m.eventsSentTotal.WithLabelValues(eventType).Inc()
}

func (m *serverMetrics) frameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDroppedTotal.WithLabelValues(reason).Inc()
}

func (m *serverMetrics) command(outcome string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(outcome).Inc()
}

func (m *serverMetrics) heartbeat() {
	if m == nil {
		return
	}
	m.heartbeatsTotal.Inc()
}

func (m *serverMetrics) broadcastObserved(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.broadcastDuration.Observe(elapsed.Seconds())
}
