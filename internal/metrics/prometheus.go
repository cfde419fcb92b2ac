package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for capture sessions. Each
// instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsStarted prometheus.Counter
	ActiveSessions  prometheus.Gauge
	SessionErrors   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio metrics
	BlocksSent    prometheus.Counter
	BlocksDropped *prometheus.CounterVec
	SendErrors    prometheus.Counter

	// Transcript metrics
	FragmentsApplied prometheus.Counter

	// Summary metrics
	SummaryRequests prometheus.Counter
	SummaryFailures prometheus.Counter
	SummaryDuration prometheus.Histogram

	// Spend
	EstimatedCostCents *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_sessions_started_total",
			Help: "Total number of capture sessions that reached recording",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_active_sessions",
			Help: "Number of capture sessions currently holding resources",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_session_errors_total",
			Help: "Total number of session failures by error kind",
		}, []string{"kind"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_session_recorded_seconds",
			Help:    "Recorded time per session, excluding paused time",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),

		BlocksSent: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_audio_blocks_sent_total",
			Help: "Total number of audio blocks written to the live session",
		}),
		BlocksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_audio_blocks_dropped_total",
			Help: "Total number of audio blocks dropped before sending, by reason",
		}, []string{"reason"}),
		SendErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_audio_send_errors_total",
			Help: "Total number of audio blocks the live session failed to accept",
		}),

		FragmentsApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_transcript_fragments_total",
			Help: "Total number of non-empty transcript fragments applied",
		}),

		SummaryRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_summary_requests_total",
			Help: "Total number of summarization calls issued",
		}),
		SummaryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_summary_failures_total",
			Help: "Total number of failed summarization calls",
		}),
		SummaryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_summary_duration_seconds",
			Help:    "Summarization call latency",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
		}),

		EstimatedCostCents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_estimated_cost_cents_total",
			Help: "Estimated API spend in cents, by component",
		}, []string{"component"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
