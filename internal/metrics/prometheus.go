package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeOK labels a pipeline run that produced text
const OutcomeOK = "ok"

// Metrics contains all Prometheus metrics for the speechflow service
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	PipelineRuns  *prometheus.CounterVec
	PCMBytes      prometheus.Histogram
	AudioDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec

	// WebSocket session metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics on a fresh registry, together with the Go
// runtime and process collectors
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Pipeline metrics
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechflow_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		PCMBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechflow_pcm_bytes",
			Help:    "Size of raw PCM payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechflow_audio_duration_seconds",
			Help:    "Duration of validated audio",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechflow_transcription_requests_total",
			Help: "Total number of transcription requests sent upstream",
		}, []string{"provider", "outcome"}),
		TranscriptionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speechflow_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}, []string{"provider"}),

		// WebSocket session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speechflow_ws_active_sessions",
			Help: "Current number of open WebSocket sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechflow_ws_sessions_opened_total",
			Help: "Total number of WebSocket sessions opened",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechflow_ws_session_duration_seconds",
			Help:    "Lifetime of WebSocket sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechflow_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speechflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechflow_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry all metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPipelineRun records the outcome of one pipeline run. An empty
// outcome is recorded as OutcomeOK.
func (m *Metrics) RecordPipelineRun(outcome string, pcmBytes int) {
	if outcome == "" {
		outcome = OutcomeOK
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PCMBytes.Observe(float64(pcmBytes))
}

// RecordAudioDuration records the duration of validated audio
func (m *Metrics) RecordAudioDuration(durationSeconds float64) {
	m.AudioDuration.Observe(durationSeconds)
}

// RecordTranscription records an upstream transcription call
func (m *Metrics) RecordTranscription(provider, outcome string, durationSeconds float64) {
	m.TranscriptionRequests.WithLabelValues(provider, outcome).Inc()
	m.TranscriptionDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordSessionOpened increments the open session gauge and counter
func (m *Metrics) RecordSessionOpened() {
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionClosed decrements the open session gauge and records its lifetime
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
