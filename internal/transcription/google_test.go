package transcription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest() *Request {
	return &Request{
		Audio:      []byte("RIFF....WAVE"),
		Language:   "ko-KR",
		SampleRate: 48000,
		Duration:   time.Second,
		RequestID:  "req-1",
	}
}

func newGoogleTestProvider(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewGoogleProvider(GoogleConfig{APIKey: "test-key", Endpoint: srv.URL + "/v1/speech:recognize"}, 5*time.Second, discardLogger())
	if err != nil {
		t.Fatalf("NewGoogleProvider failed: %v", err)
	}
	return p
}

func TestGoogleProviderTranscribe(t *testing.T) {
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("Expected API key in query, got %q", r.URL.RawQuery)
		}

		var body googleRecognizeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		if body.Config.Encoding != "LINEAR16" {
			t.Errorf("Expected LINEAR16, got %s", body.Config.Encoding)
		}
		if body.Config.SampleRateHertz != 48000 {
			t.Errorf("Expected 48000 Hz, got %d", body.Config.SampleRateHertz)
		}
		if body.Config.LanguageCode != "ko-KR" {
			t.Errorf("Expected ko-KR, got %s", body.Config.LanguageCode)
		}

		audio, err := base64.StdEncoding.DecodeString(body.Audio.Content)
		if err != nil || string(audio) != "RIFF....WAVE" {
			t.Errorf("Unexpected audio content %q (%v)", audio, err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"안녕하세요","confidence":0.9}],"languageCode":"ko-kr"},
			{"alternatives":[{"transcript":" 반갑습니다 ","confidence":0.7}]}
		]}`))
	})

	result, err := p.Transcribe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if result.Text != "안녕하세요 반갑습니다" {
		t.Errorf("Unexpected text %q", result.Text)
	}

	if result.Confidence < 0.79 || result.Confidence > 0.81 {
		t.Errorf("Expected average confidence 0.8, got %f", result.Confidence)
	}

	if result.Provider != "google" {
		t.Errorf("Expected provider google, got %s", result.Provider)
	}
}

func TestGoogleProviderNoSpeech(t *testing.T) {
	for _, body := range []string{`{}`, `{"results":[]}`, `{"results":[{"alternatives":[]}]}`} {
		p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})

		_, err := p.Transcribe(context.Background(), testRequest())
		if !errors.Is(err, ErrNoSpeech) {
			t.Errorf("body %s: expected ErrNoSpeech, got %v", body, err)
		}
	}
}

func TestGoogleProviderServiceError(t *testing.T) {
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"quota exceeded"}}`))
	})

	_, err := p.Transcribe(context.Background(), testRequest())

	var unavailable *ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected ProviderUnavailableError, got %v", err)
	}

	if unavailable.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", unavailable.StatusCode)
	}

	if unavailable.Err.Error() != "google API error: quota exceeded" {
		t.Errorf("Unexpected detail %q", unavailable.Err.Error())
	}
}

func TestGoogleProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	p, err := NewGoogleProvider(GoogleConfig{APIKey: "k", Endpoint: endpoint}, time.Second, discardLogger())
	if err != nil {
		t.Fatalf("NewGoogleProvider failed: %v", err)
	}

	_, err = p.Transcribe(context.Background(), testRequest())

	var unavailable *ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected ProviderUnavailableError, got %v", err)
	}

	if unavailable.StatusCode != 0 {
		t.Errorf("Expected no status for transport failure, got %d", unavailable.StatusCode)
	}
}

func TestNewGoogleProviderRequiresKey(t *testing.T) {
	if _, err := NewGoogleProvider(GoogleConfig{}, 0, discardLogger()); err == nil {
		t.Error("Expected error without API key")
	}
}
