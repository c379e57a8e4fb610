package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGoogleEndpoint = "https://speech.googleapis.com/v1/speech:recognize"

// GoogleConfig holds Google Cloud Speech-to-Text configuration
type GoogleConfig struct {
	APIKey   string
	Endpoint string // Overrides the public v1 recognize URL
	Model    string // "default", "latest_short", ...
}

// GoogleProvider implements Transcriber using the Google Cloud Speech-to-Text v1 REST API
type GoogleProvider struct {
	config GoogleConfig
	client *http.Client
	logger *slog.Logger
}

type googleRecognizeRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz"`
	AudioChannelCount          int    `json:"audioChannelCount"`
	LanguageCode               string `json:"languageCode"`
	Model                      string `json:"model,omitempty"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type googleRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		LanguageCode string `json:"languageCode"`
	} `json:"results"`
}

// NewGoogleProvider creates a new Google Cloud STT provider
func NewGoogleProvider(cfg GoogleConfig, timeout time.Duration, logger *slog.Logger) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key not configured")
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultGoogleEndpoint
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GoogleProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Transcribe sends the WAV file to speech:recognize as LINEAR16.
func (g *GoogleProvider) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	body := googleRecognizeRequest{
		Config: googleRecognitionConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            req.SampleRate,
			AudioChannelCount:          1,
			LanguageCode:               req.Language,
			Model:                      g.config.Model,
			EnableAutomaticPunctuation: true,
		},
	}
	body.Audio.Content = base64.StdEncoding.EncodeToString(req.Audio)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint, err := url.Parse(g.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("key", g.config.APIKey)
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	g.logger.Debug("stt: sending to google",
		slog.String("request_id", req.RequestID),
		slog.String("language", req.Language),
		slog.Int("audio_bytes", len(req.Audio)),
	)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: g.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: g.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, &ProviderUnavailableError{Provider: g.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("google API error: %s", errResp.Error.Message)}
		}
		return nil, &ProviderUnavailableError{Provider: g.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("google API error: status %d", resp.StatusCode)}
	}

	var result googleRecognizeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProviderUnavailableError{Provider: g.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}

	// Concatenate the best alternative of every result
	var transcripts []string
	var confidence float64
	language := req.Language
	for _, r := range result.Results {
		if len(r.Alternatives) == 0 || strings.TrimSpace(r.Alternatives[0].Transcript) == "" {
			continue
		}
		transcripts = append(transcripts, strings.TrimSpace(r.Alternatives[0].Transcript))
		confidence += r.Alternatives[0].Confidence
		if r.LanguageCode != "" {
			language = r.LanguageCode
		}
	}

	if len(transcripts) == 0 {
		return nil, ErrNoSpeech
	}

	return &Result{
		Text:       strings.Join(transcripts, " "),
		Confidence: confidence / float64(len(transcripts)),
		Language:   language,
		Provider:   g.Name(),
	}, nil
}

// Name returns the provider name.
func (g *GoogleProvider) Name() string {
	return "google"
}

// Close releases any resources (none for HTTP client).
func (g *GoogleProvider) Close() error {
	return nil
}
