package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is a provider for any HTTP transcription endpoint that accepts a
// multipart WAV upload and answers with JSON
type Client struct {
	config     HTTPConfig
	httpClient *http.Client
	semaphore  chan struct{} // Bounds concurrent upstream requests
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	noSpeech        uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// HTTPConfig contains configuration of the generic HTTP provider
type HTTPConfig struct {
	Endpoint      string
	APIKey        string
	MaxConcurrent int
}

// transcriptionResponse represents the response from the transcription endpoint
type transcriptionResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	NoSpeech        uint64        `json:"no_speech"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new transcription HTTP client
func NewClient(config HTTPConfig, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
	}, nil
}

// Transcribe sends the WAV file to the endpoint. An empty transcript or
// HTTP 422 means no speech; any other failure makes the provider unavailable.
func (c *Client) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, &ProviderUnavailableError{Provider: c.Name(), Err: ctx.Err()}
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	result, err := c.doRequest(ctx, req)
	switch {
	case err == nil:
		c.incrementSuccessRequests()
		c.updateAvgResponseTime(time.Since(startTime))
	case errors.Is(err, ErrNoSpeech):
		c.incrementNoSpeech()
		c.updateAvgResponseTime(time.Since(startTime))
	default:
		c.incrementFailedRequests()
	}

	return result, err
}

// doRequest performs a single HTTP request to the transcription endpoint
func (c *Client) doRequest(ctx context.Context, req *Request) (*Result, error) {
	body, contentType, err := c.createMultipartRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "speechflow/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	c.logger.Debug("stt: sending to http endpoint",
		slog.String("request_id", req.RequestID),
		slog.String("endpoint", c.config.Endpoint),
		slog.Int("audio_bytes", len(req.Audio)),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: c.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, ErrNoSpeech
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderUnavailableError{Provider: c.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderUnavailableError{Provider: c.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response JSON: %w", err)}
	}

	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	language := parsed.Language
	if language == "" {
		language = req.Language
	}

	return &Result{
		Text:       text,
		Confidence: parsed.Confidence,
		Language:   language,
		Provider:   c.Name(),
	}, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(req *Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := "audio.wav"
	if req.RequestID != "" {
		filename = req.RequestID + ".wav"
	}

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := []struct{ key, value string }{
		{"request_id", req.RequestID},
		{"language", req.Language},
		{"sample_rate", fmt.Sprintf("%d", req.SampleRate)},
		{"duration", fmt.Sprintf("%.3f", req.Duration.Seconds())},
		{"format", "wav"},
		{"response_format", "json"},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementNoSpeech() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noSpeech++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		NoSpeech:        c.noSpeech,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "http"
}

// Close waits for in-flight requests to complete
func (c *Client) Close() error {
	for i := 0; i < cap(c.semaphore); i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}
