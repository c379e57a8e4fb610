package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/su-jin-shin/speechflow/internal/config"
	"github.com/su-jin-shin/speechflow/internal/metrics"
	"github.com/su-jin-shin/speechflow/internal/pipeline"
	"github.com/su-jin-shin/speechflow/internal/session"
	"github.com/su-jin-shin/speechflow/internal/transcription"
)

const (
	serviceName    = "speechflow"
	serviceVersion = "1.0.0"
)

// HTTPServer exposes the transcription pipeline and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	router   chi.Router
	logger   *slog.Logger
	config   *config.Config
	pipeline *pipeline.Pipeline
	sessions *session.Manager
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	// Server state
	startTime time.Time
}

// transcribeResponse is the body of a successful POST /stt
type transcribeResponse struct {
	Text string `json:"text"`
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewHTTPServer creates a new HTTP API server. sessions may be nil, in which
// case the WebSocket endpoint is not mounted.
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger,
	p *pipeline.Pipeline, sessions *session.Manager, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		pipeline:  p,
		sessions:  sessions,
		metrics:   m,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(appConfig.HTTP.CORSAllowedOrigins),
		},
	}

	h.router = h.setupRoutes()

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      h.router,
		ReadTimeout:  appConfig.HTTP.GetReadTimeout(),
		WriteTimeout: appConfig.HTTP.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the root handler, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if origins := h.config.HTTP.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	// Transcription
	r.Post("/stt", h.withMetrics("/stt", h.handleTranscribe))

	// Monitoring endpoints
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// Utterance socket; the upgrade needs the raw ResponseWriter, so no metrics wrapper
	if h.sessions != nil {
		r.Get("/ws", h.handleWebSocket)
		r.Get("/sessions", h.withMetrics("/sessions", h.handleSessions))
		r.Get("/sessions/{id}", h.withMetrics("/sessions/{id}", h.handleSessionDetail))
	}

	// Root endpoint with API documentation
	r.Get("/", h.withMetrics("/", h.handleRoot))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NotFound", Message: "no such endpoint: " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "MethodNotAllowed", Message: r.Method + " is not allowed on " + r.URL.Path})
	})

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
		slog.String("provider", h.pipeline.Provider()),
		slog.Bool("websocket", h.sessions != nil),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Hijacked WebSocket connections are
// not tracked by Shutdown and are closed through the session manager.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	err := h.server.Shutdown(ctx)

	if h.sessions != nil {
		h.sessions.Stop()
	}

	return err
}

// handleTranscribe implements POST /stt: raw PCM in, {"text": ...} out
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if !errors.As(err, &maxBytesErr) {
			err = fmt.Errorf("failed to read request body: %w", err)
		}
		h.metrics.RecordPipelineRun(string(pipeline.KindOf(err)), len(body))
		h.writeError(w, requestID, err)
		return
	}

	outcome, err := h.runPipeline(r.Context(), &pipeline.Job{
		RequestID: requestID,
		PCM:       body,
		Language:  r.URL.Query().Get("lang"),
	})
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}

	h.logger.Info("Transcription completed",
		slog.String("request_id", requestID),
		slog.String("provider", outcome.Provider),
		slog.String("language", outcome.Language),
		slog.Float64("audio_seconds", outcome.Audio.Duration),
		slog.Duration("transcribe_time", outcome.TranscribeTime),
		slog.Int("text_length", len(outcome.Text)),
	)

	writeJSON(w, http.StatusOK, transcribeResponse{Text: outcome.Text})
}

// runPipeline processes a job and records its outcome. Shared by the HTTP
// and WebSocket boundaries.
func (h *HTTPServer) runPipeline(ctx context.Context, job *pipeline.Job) (*pipeline.Outcome, error) {
	start := time.Now()
	outcome, err := h.pipeline.Process(ctx, job)
	elapsed := time.Since(start).Seconds()

	kind := pipeline.KindOf(err)
	h.metrics.RecordPipelineRun(string(kind), len(job.PCM))

	switch kind {
	case "":
		h.metrics.RecordAudioDuration(outcome.Audio.Duration)
		h.metrics.RecordTranscription(outcome.Provider, metrics.OutcomeOK, outcome.TranscribeTime.Seconds())
	case pipeline.KindNoSpeech, pipeline.KindProviderUnavailable:
		// Both are answers from (or about) the upstream call
		h.metrics.RecordTranscription(h.pipeline.Provider(), string(kind), elapsed)
	}

	return outcome, err
}

// writeError renders a pipeline failure as JSON with the status of its kind
func (h *HTTPServer) writeError(w http.ResponseWriter, requestID string, err error) {
	resp, status := errorBody(err)
	resp.RequestID = requestID

	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("kind", resp.Error),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= 500 {
		h.logger.Error("Transcription request failed", attrs...)
	} else {
		h.logger.Warn("Transcription request rejected", attrs...)
	}

	writeJSON(w, status, resp)
}

// errorBody classifies err and builds the client-facing error.
// Input errors carry their own message; provider and internal faults get a
// fixed message with the underlying error in details.
func errorBody(err error) (errorResponse, int) {
	kind := pipeline.KindOf(err)

	resp := errorResponse{Error: kind.String(), Message: err.Error()}

	switch kind {
	case pipeline.KindProviderUnavailable:
		resp.Message = "speech recognition provider is unavailable"
	case pipeline.KindInternal:
		resp.Message = "internal error while processing audio"
	case pipeline.KindNoSpeech:
		resp.Message = "no speech could be recognized in the audio"
	}

	if kind.ExposesDetails() {
		resp.Details = err.Error()
	}

	return resp, kind.HTTPStatus()
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	activeSessions := 0
	if h.sessions != nil {
		activeSessions = h.sessions.Count()
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"transcription": map[string]interface{}{
				"status":   "running",
				"provider": h.pipeline.Provider(),
			},
			"websocket": map[string]interface{}{
				"enabled":         h.sessions != nil,
				"active_sessions": activeSessions,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	pcfg := h.pipeline.Config()

	// Return sanitized configuration (credentials omitted)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"address":              h.config.HTTP.Address,
			"port":                 h.config.HTTP.Port,
			"max_body_bytes":       h.config.HTTP.MaxBodyBytes,
			"cors_allowed_origins": h.config.HTTP.CORSAllowedOrigins,
		},
		"audio": map[string]interface{}{
			"sample_rate":     pcfg.SampleRate,
			"channels":        1,
			"bits_per_sample": 16,
			"min_duration":    pcfg.MinDuration,
		},
		"transcription": map[string]interface{}{
			"provider": h.pipeline.Provider(),
			"language": pcfg.Language,
			"timeout":  pcfg.Timeout.String(),
		},
		"websocket": map[string]interface{}{
			"enabled":             h.sessions != nil,
			"max_utterance_bytes": h.config.WebSocket.MaxUtteranceBytes,
			"idle_timeout":        h.config.WebSocket.IdleTimeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"provider":  h.pipeline.Provider(),
	}

	if reporter, ok := h.pipeline.Transcriber().(transcription.StatsReporter); ok {
		stats["transcription"] = reporter.GetStats()
	}

	if h.sessions != nil {
		stats["sessions"] = map[string]interface{}{
			"active_count": h.sessions.Count(),
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.All()
	infos := make([]session.SessionInfo, 0, len(sessions))

	for _, s := range sessions {
		infos = append(infos, s.Info())
	}

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleSessionDetail implements the /sessions/{id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	s, exists := h.sessions.Get(chi.URLParam(r, "id"))
	if !exists {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NotFound", Message: "session not found"})
		return
	}

	writeJSON(w, http.StatusOK, s.Info())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]interface{}{
		"GET /":        "API documentation",
		"POST /stt":    "Transcribe raw PCM-16 mono audio (optional ?lang=)",
		"GET /health":  "Service health check",
		"GET /config":  "Get service configuration",
		"GET /stats":   "Get service statistics",
		"GET /metrics": "Prometheus metrics",
	}

	if h.sessions != nil {
		endpoints["GET /ws"] = "Utterance WebSocket: binary PCM frames, {\"type\":\"stop\"} to transcribe"
		endpoints["GET /sessions"] = "List open WebSocket sessions"
		endpoints["GET /sessions/{id}"] = "Get WebSocket session details"
	}

	apiDoc := map[string]interface{}{
		"service":   serviceName,
		"version":   serviceVersion,
		"endpoints": endpoints,
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
