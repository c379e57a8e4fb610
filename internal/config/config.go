package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port               int      `yaml:"port"`
	Address            string   `yaml:"address"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
	ReadTimeout        int      `yaml:"read_timeout"`  // seconds
	WriteTimeout       int      `yaml:"write_timeout"` // seconds
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// AudioConfig contains audio processing parameters
type AudioConfig struct {
	SampleRate  int     `yaml:"sample_rate"`
	MinDuration float64 `yaml:"min_duration"` // seconds
}

// TranscriptionConfig contains speech-to-text provider configuration
type TranscriptionConfig struct {
	Provider string `yaml:"provider"` // google, openai or http
	Language string `yaml:"language"` // BCP-47
	Timeout  int    `yaml:"timeout"`  // seconds

	Google GoogleConfig       `yaml:"google"`
	OpenAI OpenAIConfig       `yaml:"openai"`
	HTTP   HTTPProviderConfig `yaml:"http"`
}

// GoogleConfig contains Google Cloud Speech-to-Text settings
type GoogleConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// OpenAIConfig contains OpenAI Whisper settings
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// HTTPProviderConfig contains settings of a generic multipart transcription endpoint
type HTTPProviderConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// WebSocketConfig contains the utterance socket configuration
type WebSocketConfig struct {
	Enabled           bool `yaml:"enabled"`
	MaxUtteranceBytes int  `yaml:"max_utterance_bytes"`
	IdleTimeout       int  `yaml:"idle_timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:         8080,
			Address:      "0.0.0.0",
			MaxBodyBytes: 10 << 20,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Audio: AudioConfig{
			SampleRate:  48000,
			MinDuration: 0.3,
		},
		Transcription: TranscriptionConfig{
			Provider: "google",
			Language: "ko-KR",
			Timeout:  30,
			OpenAI: OpenAIConfig{
				Model: "whisper-1",
			},
			HTTP: HTTPProviderConfig{
				MaxConcurrent: 10,
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:           true,
			MaxUtteranceBytes: 10 << 20,
			IdleTimeout:       60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment override failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadEnvFiles loads .env files into the process environment without
// overriding variables that are already set. With no arguments it loads
// ./.env when present.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		paths = []string{".env"}
	}

	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env files %s: %w", strings.Join(paths, ", "), err)
	}

	return nil
}

// applyEnv overrides selected fields from environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if err := integer("SPEECHFLOW_HTTP_PORT", &c.HTTP.Port); err != nil {
		return err
	}
	if err := integer("SPEECHFLOW_SAMPLE_RATE", &c.Audio.SampleRate); err != nil {
		return err
	}

	str("SPEECHFLOW_LANGUAGE", &c.Transcription.Language)
	str("SPEECHFLOW_PROVIDER", &c.Transcription.Provider)
	str("GOOGLE_STT_API_KEY", &c.Transcription.Google.APIKey)
	str("OPENAI_API_KEY", &c.Transcription.OpenAI.APIKey)
	str("SPEECHFLOW_STT_ENDPOINT", &c.Transcription.HTTP.Endpoint)
	str("SPEECHFLOW_STT_API_KEY", &c.Transcription.HTTP.APIKey)

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.WebSocket.Validate(); err != nil {
		return fmt.Errorf("websocket config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.MaxBodyBytes < 1 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", h.MaxBodyBytes)
	}

	if h.ReadTimeout < 1 || h.WriteTimeout < 1 {
		return fmt.Errorf("read_timeout and write_timeout must be at least 1 second, got %d and %d", h.ReadTimeout, h.WriteTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.MinDuration <= 0 {
		return fmt.Errorf("min_duration must be positive, got %f", a.MinDuration)
	}

	return nil
}

// Validate validates transcription configuration. Credentials are checked
// only for the selected provider.
func (t *TranscriptionConfig) Validate() error {
	if _, err := language.Parse(t.Language); err != nil {
		return fmt.Errorf("language %q is not a valid BCP-47 tag: %w", t.Language, err)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	switch t.Provider {
	case "google":
		if t.Google.APIKey == "" {
			return fmt.Errorf("google.api_key cannot be empty (or set GOOGLE_STT_API_KEY)")
		}
	case "openai":
		if t.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key cannot be empty (or set OPENAI_API_KEY)")
		}
	case "http":
		if t.HTTP.Endpoint == "" {
			return fmt.Errorf("http.endpoint cannot be empty (or set SPEECHFLOW_STT_ENDPOINT)")
		}
		if t.HTTP.MaxConcurrent < 1 {
			return fmt.Errorf("http.max_concurrent must be at least 1, got %d", t.HTTP.MaxConcurrent)
		}
	default:
		return fmt.Errorf("provider must be one of [google, openai, http], got '%s'", t.Provider)
	}

	return nil
}

// Validate validates WebSocket configuration
func (w *WebSocketConfig) Validate() error {
	if !w.Enabled {
		return nil
	}

	if w.MaxUtteranceBytes < 1 {
		return fmt.Errorf("max_utterance_bytes must be positive when websocket is enabled, got %d", w.MaxUtteranceBytes)
	}

	if w.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", w.IdleTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path

	return nil
}

// GetReadTimeout returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetIdleTimeout returns the session idle timeout as a time.Duration
func (w *WebSocketConfig) GetIdleTimeout() time.Duration {
	return time.Duration(w.IdleTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
