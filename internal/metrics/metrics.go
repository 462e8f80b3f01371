// Package metrics holds the Prometheus instruments for voice sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// It satisfies realtime.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	Frames         *prometheus.CounterVec
	SessionErrors  *prometheus.CounterVec
	StartLatency   prometheus.Histogram
}

// New registers the instruments on a fresh registry so tests and
// multiple servers in one process do not collide.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active realtime voice sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datachannel_frames_total",
			Help:      "Data channel frames by direction and type.",
		}, []string{"direction", "type"}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Session errors by kind.",
		}, []string{"kind"}),
		StartLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_start_seconds",
			Help:      "Time from start request to negotiated peer connection.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13},
		}),
	}
}

func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
	m.SessionEvents.WithLabelValues("started").Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	m.ActiveSessions.Dec()
	m.SessionEvents.WithLabelValues("ended_" + reason).Inc()
}

func (m *Metrics) Event(event string) {
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) Frame(direction, frameType string) {
	m.Frames.WithLabelValues(direction, frameType).Inc()
}

func (m *Metrics) Error(kind string) {
	m.SessionErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveStart(d time.Duration) {
	m.StartLatency.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
