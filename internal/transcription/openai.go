package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/language"
)

// OpenAIConfig holds OpenAI Whisper configuration
type OpenAIConfig struct {
	APIKey  string
	Model   string // "whisper-1"
	BaseURL string // OpenAI-compatible API root, e.g. "https://api.openai.com/v1"
}

// OpenAIProvider implements Transcriber using OpenAI's Whisper API
type OpenAIProvider struct {
	model  string
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIProvider creates a new OpenAI Whisper STT provider
func NewOpenAIProvider(cfg OpenAIConfig, timeout time.Duration, logger *slog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		model:  model,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// Transcribe uploads the WAV file to the audio transcriptions endpoint.
// Whisper takes ISO-639-1 codes, so "ko-KR" is sent as "ko".
func (o *OpenAIProvider) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	lang := whisperLanguage(req.Language)

	o.logger.Debug("stt: sending to openai",
		slog.String("request_id", req.RequestID),
		slog.String("model", o.model),
		slog.String("language", lang),
		slog.Int("audio_bytes", len(req.Audio)),
	)

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(req.Audio),
		Language: lang,
	})
	if err != nil {
		return nil, o.classify(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	return &Result{
		Text:     text,
		Language: req.Language,
		Provider: o.Name(),
	}, nil
}

func (o *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderUnavailableError{Provider: o.Name(), StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderUnavailableError{Provider: o.Name(), StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	return &ProviderUnavailableError{Provider: o.Name(), Err: err}
}

// whisperLanguage reduces a BCP-47 tag to its base language.
func whisperLanguage(tag string) string {
	if tag == "" {
		return ""
	}

	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}

	base, _ := t.Base()
	return base.String()
}

// Name returns the provider name.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// Close releases any resources (none for HTTP client).
func (o *OpenAIProvider) Close() error {
	return nil
}
