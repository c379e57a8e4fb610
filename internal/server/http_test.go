package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/su-jin-shin/speechflow/internal/config"
	"github.com/su-jin-shin/speechflow/internal/metrics"
	"github.com/su-jin-shin/speechflow/internal/pipeline"
	"github.com/su-jin-shin/speechflow/internal/session"
	"github.com/su-jin-shin/speechflow/internal/transcription"
)

// fakeTranscriber answers with a fixed text or error and records requests
type fakeTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	delay    time.Duration
	requests []*transcription.Request
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req *transcription.Request) (*transcription.Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &transcription.Result{Text: f.text, Language: req.Language, Provider: f.Name()}, nil
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Close() error { return nil }

func (f *fakeTranscriber) calls() []*transcription.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*transcription.Request(nil), f.requests...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	*HTTPServer
	metrics *metrics.Metrics
	http    *httptest.Server
}

func newTestServer(t *testing.T, tr transcription.Transcriber, mutate func(c *config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.WebSocket.MaxUtteranceBytes = 1 << 20
	if mutate != nil {
		mutate(cfg)
	}

	p, err := pipeline.New(pipeline.Config{
		SampleRate:  cfg.Audio.SampleRate,
		MinDuration: cfg.Audio.MinDuration,
		Language:    cfg.Transcription.Language,
		Timeout:     cfg.Transcription.GetTimeoutDuration(),
	}, tr)
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}

	var sessions *session.Manager
	if cfg.WebSocket.Enabled {
		sessions, err = session.NewManager(testLogger(), session.ManagerConfig{
			IdleTimeout:       cfg.WebSocket.GetIdleTimeout(),
			MaxUtteranceBytes: cfg.WebSocket.MaxUtteranceBytes,
		})
		if err != nil {
			t.Fatalf("session.NewManager failed: %v", err)
		}
	}

	m := metrics.NewMetrics()
	h := NewHTTPServer(cfg, testLogger(), p, sessions, m)

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		srv.Close()
		if sessions != nil {
			sessions.Stop()
		}
	})

	return &testServer{HTTPServer: h, metrics: m, http: srv}
}

func (ts *testServer) postSTT(t *testing.T, query string, body []byte) (*http.Response, map[string]string) {
	t.Helper()

	resp, err := http.Post(ts.http.URL+"/stt"+query, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /stt failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return resp, decoded
}

func TestTranscribeSuccess(t *testing.T) {
	tr := &fakeTranscriber{text: "안녕하세요"}
	ts := newTestServer(t, tr, nil)

	resp, body := ts.postSTT(t, "", make([]byte, 96000))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, body)
	}

	if body["text"] != "안녕하세요" {
		t.Errorf("Unexpected text %q", body["text"])
	}

	if len(body) != 1 {
		t.Errorf("Expected only the text field, got %v", body)
	}

	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("Expected X-Request-Id header")
	}

	if got := resp.Header.Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Expected UTF-8 JSON content type, got %q", got)
	}

	calls := tr.calls()
	if len(calls) != 1 || calls[0].Language != "ko-KR" || calls[0].Duration != time.Second {
		t.Errorf("Unexpected transcription calls %+v", calls)
	}

	if calls[0].RequestID != resp.Header.Get("X-Request-Id") {
		t.Error("Expected request ID to be forwarded to the provider")
	}
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		query       string
		err         error
		wantStatus  int
		wantKind    string
		wantMessage string
		wantDetails string
	}{
		{
			name:       "empty body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
			wantKind:   "EmptyInputError",
		},
		{
			name:       "odd length",
			body:       make([]byte, 9601),
			wantStatus: http.StatusBadRequest,
			wantKind:   "MalformedSampleError",
		},
		{
			name:        "too short",
			body:        make([]byte, 10000),
			wantStatus:  http.StatusBadRequest,
			wantKind:    "AudioTooShortError",
			wantMessage: "0.10s",
		},
		{
			name:       "no speech",
			body:       make([]byte, 192000),
			err:        transcription.ErrNoSpeech,
			wantStatus: http.StatusBadRequest,
			wantKind:   "NoSpeechRecognizedError",
		},
		{
			name:        "provider unavailable",
			body:        make([]byte, 192000),
			err:         &transcription.ProviderUnavailableError{Provider: "fake", StatusCode: 503, Err: errors.New("quota exceeded")},
			wantStatus:  http.StatusInternalServerError,
			wantKind:    "ProviderUnavailableError",
			wantDetails: "quota exceeded",
		},
		{
			name:        "internal",
			body:        make([]byte, 96000),
			err:         errors.New("unexpected nil pointer"),
			wantStatus:  http.StatusInternalServerError,
			wantKind:    "InternalError",
			wantDetails: "unexpected nil pointer",
		},
		{
			name:       "invalid language",
			body:       make([]byte, 96000),
			query:      "?lang=not_a_tag!",
			wantStatus: http.StatusBadRequest,
			wantKind:   "InvalidLanguageError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeTranscriber{text: "unused", err: tt.err}, nil)

			resp, body := ts.postSTT(t, tt.query, tt.body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			if body["error"] != tt.wantKind {
				t.Errorf("Expected error kind %s, got %q", tt.wantKind, body["error"])
			}

			if body["message"] == "" {
				t.Error("Expected a human-readable message")
			}

			if tt.wantMessage != "" && !strings.Contains(body["message"], tt.wantMessage) {
				t.Errorf("Expected message to contain %q, got %q", tt.wantMessage, body["message"])
			}

			if tt.wantDetails == "" {
				if body["details"] != "" {
					t.Errorf("Expected no details, got %q", body["details"])
				}
			} else if !strings.Contains(body["details"], tt.wantDetails) {
				t.Errorf("Expected details to contain %q, got %q", tt.wantDetails, body["details"])
			}
		})
	}
}

func TestTranscribeProviderUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	endpoint := upstream.URL
	upstream.Close()

	google, err := transcription.NewGoogleProvider(transcription.GoogleConfig{APIKey: "k", Endpoint: endpoint}, time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewGoogleProvider failed: %v", err)
	}

	ts := newTestServer(t, google, nil)

	resp, body := ts.postSTT(t, "", make([]byte, 96000))

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", resp.StatusCode)
	}

	if body["error"] != "ProviderUnavailableError" {
		t.Errorf("Expected ProviderUnavailableError, got %q", body["error"])
	}

	if !strings.Contains(body["details"], "google provider unavailable") {
		t.Errorf("Expected upstream details, got %q", body["details"])
	}
}

func TestTranscribeLanguageOverride(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	ts := newTestServer(t, tr, nil)

	resp, _ := ts.postSTT(t, "?lang=en-US", make([]byte, 96000))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	if got := tr.calls()[0].Language; got != "en-US" {
		t.Errorf("Expected language en-US, got %s", got)
	}
}

func TestTranscribeBodyTooLarge(t *testing.T) {
	tr := &fakeTranscriber{text: "unused"}
	ts := newTestServer(t, tr, func(c *config.Config) { c.HTTP.MaxBodyBytes = 1000 })

	resp, body := ts.postSTT(t, "", make([]byte, 2000))

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", resp.StatusCode)
	}

	if body["error"] != "PayloadTooLargeError" {
		t.Errorf("Expected PayloadTooLargeError, got %q", body["error"])
	}

	if len(tr.calls()) != 0 {
		t.Error("Expected no transcription call")
	}
}

func TestTranscribeMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &fakeTranscriber{}, nil)

	resp, err := http.Get(ts.http.URL + "/stt")
	if err != nil {
		t.Fatalf("GET /stt failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Expected JSON error body: %v", err)
	}

	if body["error"] != "MethodNotAllowed" {
		t.Errorf("Expected MethodNotAllowed, got %q", body["error"])
	}
}

func TestUnknownEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeTranscriber{}, nil)

	resp, err := http.Get(ts.http.URL + "/transcribe")
	if err != nil {
		t.Fatalf("GET /transcribe failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	if got := resp.Header.Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Expected JSON content type, got %q", got)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Expected JSON error body: %v", err)
	}

	if body["error"] != "NotFound" || body["message"] == "" {
		t.Errorf("Expected NotFound error, got %v", body)
	}
}

func TestMonitoringEndpoints(t *testing.T) {
	ts := newTestServer(t, &fakeTranscriber{text: "ok"}, func(c *config.Config) {
		c.Transcription.Google.APIKey = "super-secret"
	})

	ts.postSTT(t, "", make([]byte, 10000))

	tests := []struct {
		path    string
		want    []string
		notWant string
	}{
		{"/health", []string{`"status":"healthy"`, `"provider":"fake"`}, ""},
		{"/config", []string{`"sample_rate":48000`, `"language":"ko-KR"`}, "super-secret"},
		{"/stats", []string{`"provider":"fake"`, `"active_count":0`}, ""},
		{"/sessions", []string{`"total_sessions":0`}, ""},
		{"/", []string{"POST /stt", "GET /ws"}, ""},
		{"/metrics", []string{`speechflow_pipeline_runs_total{outcome="AudioTooShortError"} 1`}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.http.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s failed: %v", tt.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d", resp.StatusCode)
			}

			data, _ := io.ReadAll(resp.Body)
			text := string(data)

			for _, want := range tt.want {
				if !strings.Contains(text, want) {
					t.Errorf("Expected %s to contain %q, got %s", tt.path, want, text)
				}
			}

			if tt.notWant != "" && strings.Contains(text, tt.notWant) {
				t.Errorf("Expected %s not to contain %q", tt.path, tt.notWant)
			}
		})
	}
}

func TestSessionDetailNotFound(t *testing.T) {
	ts := newTestServer(t, &fakeTranscriber{}, nil)

	resp, err := http.Get(ts.http.URL + "/sessions/missing")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestWebSocketDisabled(t *testing.T) {
	ts := newTestServer(t, &fakeTranscriber{}, func(c *config.Config) { c.WebSocket.Enabled = false })

	resp, err := http.Get(ts.http.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 when websocket is disabled, got %d", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, &fakeTranscriber{text: "ok"}, func(c *config.Config) {
		c.HTTP.CORSAllowedOrigins = []string{"http://app.example.com"}
	})

	req, _ := http.NewRequest(http.MethodOptions, ts.http.URL+"/stt", nil)
	req.Header.Set("Origin", "http://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://app.example.com" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}
}
