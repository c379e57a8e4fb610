package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrNoSpeech is returned when the provider answered but found no intelligible speech.
// It is an expected outcome for silent or noisy audio, not a fault.
var ErrNoSpeech = errors.New("transcription: no speech recognized")

// ProviderUnavailableError reports that the provider could not be reached or
// failed to serve the request
type ProviderUnavailableError struct {
	Provider   string
	StatusCode int // Upstream HTTP status, 0 when no response was received
	Err        error
}

func (e *ProviderUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider unavailable (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// Request is a single transcription request
type Request struct {
	Audio      []byte // Complete WAV file
	Language   string // BCP-47 tag, e.g. "ko-KR"
	SampleRate int
	Duration   time.Duration
	RequestID  string
}

// Result is the recognized text of one request
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Language   string  `json:"language,omitempty"`
	Provider   string  `json:"provider"`
}

// Transcriber is implemented by every speech-to-text provider.
// Transcribe makes exactly one upstream attempt.
type Transcriber interface {
	Transcribe(ctx context.Context, req *Request) (*Result, error)

	// Name returns the provider name (e.g. "google", "openai")
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Config selects and configures a provider
type Config struct {
	Provider string // "google", "openai" or "http"
	Timeout  time.Duration

	Google GoogleConfig
	OpenAI OpenAIConfig
	HTTP   HTTPConfig
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg Config, logger *slog.Logger) (Transcriber, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Provider) {
	case "google", "":
		return NewGoogleProvider(cfg.Google, cfg.Timeout, logger)
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.Timeout, logger)
	case "http":
		return NewClient(cfg.HTTP, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s", cfg.Provider)
	}
}

// StatsReporter is implemented by providers that keep request statistics
type StatsReporter interface {
	GetStats() ClientStats
}
