package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/su-jin-shin/speechflow/internal/pipeline"
	"github.com/su-jin-shin/speechflow/internal/session"
)

// controlMessage is a text frame sent by the client
type controlMessage struct {
	Type string `json:"type"` // "stop" or "reset"
}

// socketMessage is a text frame sent to the client
type socketMessage struct {
	Type       string  `json:"type"` // "ready", "result", "reset" or "error"
	Status     string  `json:"status"`
	SessionID  string  `json:"session_id,omitempty"`
	RequestID  string  `json:"request_id,omitempty"`
	Text       string  `json:"text,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Language   string  `json:"language,omitempty"`
	Error      string  `json:"error,omitempty"`
	Message    string  `json:"message,omitempty"`
	Details    string  `json:"details,omitempty"`
}

// handleWebSocket implements GET /ws. Binary frames are raw PCM appended to
// the current utterance; {"type":"stop"} transcribes it once and clears the
// buffer, {"type":"reset"} clears it without transcribing.
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang != "" {
		tag, err := pipeline.ParseLanguage(lang)
		if err != nil {
			h.writeError(w, "", err)
			return
		}
		lang = tag
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	s, err := h.sessions.Create(r.RemoteAddr, lang, func() { conn.Close() })
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}

	h.metrics.RecordSessionOpened()
	logger := h.logger.With(slog.String("session_id", s.ID))
	logger.Info("WebSocket session opened", slog.String("remote_addr", r.RemoteAddr))

	defer func() {
		h.sessions.Remove(s.ID)
		h.metrics.RecordSessionClosed(time.Since(s.StartTime).Seconds())
		logger.Info("WebSocket session closed", slog.Uint64("utterances", s.Info().Utterances))
	}()

	// A frame is read up to one byte past the utterance limit so that an
	// oversized frame fails in Buffer.Append like an overflowing utterance.
	// NextReader discards whatever the previous frame left unread.
	frameLimit := int64(h.config.WebSocket.MaxUtteranceBytes) + 1

	cfg := h.pipeline.Config()
	language := cfg.Language
	if lang != "" {
		language = lang
	}

	if err := conn.WriteJSON(socketMessage{
		Type:       "ready",
		Status:     "ok",
		SessionID:  s.ID,
		SampleRate: cfg.SampleRate,
		Language:   language,
	}); err != nil {
		return
	}

	for {
		messageType, reader, err := conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read ended", slog.String("error", err.Error()))
			}
			return
		}

		data, err := io.ReadAll(io.LimitReader(reader, frameLimit))
		if err != nil {
			logger.Debug("WebSocket frame read failed", slog.String("error", err.Error()))
			return
		}

		s.Touch()

		var reply socketMessage
		switch messageType {
		case websocket.BinaryMessage:
			if err := s.Buffer.Append(data); err != nil {
				s.Buffer.Reset()
				s.RecordUtterance(session.OutcomeRejected)
				reply = errorMessage(err, "")
				break
			}
			continue

		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				reply = socketMessage{Type: "error", Status: "error", Error: "InvalidMessage", Message: "control frames must be JSON"}
				break
			}

			switch strings.ToLower(msg.Type) {
			case "stop":
				reply = h.transcribeUtterance(r, s, lang, logger)
			case "reset":
				s.Buffer.Reset()
				reply = socketMessage{Type: "reset", Status: "ok"}
			default:
				reply = socketMessage{Type: "error", Status: "error", Error: "InvalidMessage", Message: "unknown message type: " + msg.Type}
			}
		}

		if err := conn.WriteJSON(reply); err != nil {
			logger.Debug("WebSocket write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// transcribeUtterance runs the buffered utterance through the pipeline once
func (h *HTTPServer) transcribeUtterance(r *http.Request, s *session.Session, lang string, logger *slog.Logger) socketMessage {
	requestID := uuid.NewString()

	s.BeginTranscription()
	defer s.EndTranscription()

	outcome, err := h.runPipeline(r.Context(), &pipeline.Job{
		RequestID: requestID,
		PCM:       s.Buffer.Take(),
		Language:  lang,
	})
	if err != nil {
		kind := pipeline.KindOf(err)
		if kind.HTTPStatus() >= 500 {
			s.RecordUtterance(session.OutcomeFailed)
			logger.Error("Utterance transcription failed", slog.String("kind", kind.String()), slog.String("error", err.Error()))
		} else {
			s.RecordUtterance(session.OutcomeRejected)
			logger.Warn("Utterance rejected", slog.String("kind", kind.String()), slog.String("error", err.Error()))
		}
		return errorMessage(err, requestID)
	}

	s.RecordUtterance(session.OutcomeTranscribed)
	logger.Info("Utterance transcribed",
		slog.String("request_id", outcome.RequestID),
		slog.Float64("audio_seconds", outcome.Audio.Duration),
		slog.Duration("transcribe_time", outcome.TranscribeTime),
	)

	return socketMessage{
		Type:      "result",
		Status:    "ok",
		RequestID: outcome.RequestID,
		Text:      outcome.Text,
		Duration:  outcome.Audio.Duration,
		Language:  outcome.Language,
	}
}

func errorMessage(err error, requestID string) socketMessage {
	body, _ := errorBody(err)
	return socketMessage{
		Type:      "error",
		Status:    "error",
		RequestID: requestID,
		Error:     body.Error,
		Message:   body.Message,
		Details:   body.Details,
	}
}

// checkOrigin allows same-host requests, any origin when "*" is configured,
// and otherwise only the configured CORS origins
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}

		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
