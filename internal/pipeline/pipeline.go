package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/su-jin-shin/speechflow/internal/audio"
	"github.com/su-jin-shin/speechflow/internal/transcription"
)

const (
	// DefaultLanguage is used when neither the configuration nor the caller names one
	DefaultLanguage = "ko-KR"

	// DefaultTimeout bounds a single transcription call
	DefaultTimeout = 30 * time.Second
)

// Config contains the pipeline settings fixed at startup
type Config struct {
	SampleRate  int           // Declared rate of incoming PCM, Hz
	MinDuration float64       // Seconds
	Language    string        // BCP-47 tag
	Timeout     time.Duration // Deadline for the transcription call
}

// Job is a single unit of work
type Job struct {
	RequestID string // Generated when empty
	PCM       []byte // Raw little-endian 16-bit mono samples
	Language  string // Overrides Config.Language when set
}

// Outcome is the result of a successful run
type Outcome struct {
	RequestID      string
	Text           string
	Language       string
	Provider       string
	Confidence     float64
	Audio          *audio.Info
	TranscribeTime time.Duration
}

// Pipeline decodes, wraps, validates and transcribes one utterance per call.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	config      Config
	transcriber transcription.Transcriber
}

// New creates a pipeline. Zero config values take their defaults.
func New(config Config, transcriber transcription.Transcriber) (*Pipeline, error) {
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}

	if config.SampleRate == 0 {
		config.SampleRate = audio.DefaultSampleRate
	}
	if config.SampleRate < 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", config.SampleRate)
	}

	if config.MinDuration == 0 {
		config.MinDuration = audio.DefaultMinDuration
	}
	if config.MinDuration < 0 {
		return nil, fmt.Errorf("invalid minimum duration: %f", config.MinDuration)
	}

	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	tag, err := ParseLanguage(config.Language)
	if err != nil {
		return nil, err
	}
	config.Language = tag

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Pipeline{
		config:      config,
		transcriber: transcriber,
	}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Provider returns the name of the transcription provider.
func (p *Pipeline) Provider() string {
	return p.transcriber.Name()
}

// Transcriber returns the provider the pipeline calls.
func (p *Pipeline) Transcriber() transcription.Transcriber {
	return p.transcriber
}

// Run transcribes raw PCM in the configured language.
func (p *Pipeline) Run(ctx context.Context, raw []byte) (*Outcome, error) {
	return p.Process(ctx, &Job{PCM: raw})
}

// Process runs a job through every stage and stops at the first failure.
// The returned error can be classified with KindOf.
func (p *Pipeline) Process(ctx context.Context, job *Job) (*Outcome, error) {
	lang := p.config.Language
	if job.Language != "" {
		tag, err := ParseLanguage(job.Language)
		if err != nil {
			return nil, err
		}
		lang = tag
	}

	requestID := job.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	samples, err := audio.DecodePCM(job.PCM)
	if err != nil {
		return nil, err
	}

	container, err := audio.EncodeWAV(samples, p.config.SampleRate)
	if err != nil {
		return nil, err
	}

	info, err := audio.Validate(container, p.config.MinDuration)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := p.transcribe(ctx, &transcription.Request{
		Audio:      container.Bytes(),
		Language:   lang,
		SampleRate: info.SampleRate,
		Duration:   time.Duration(info.Duration * float64(time.Second)),
		RequestID:  requestID,
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		RequestID:      requestID,
		Text:           result.Text,
		Language:       lang,
		Provider:       result.Provider,
		Confidence:     result.Confidence,
		Audio:          info,
		TranscribeTime: time.Since(start),
	}, nil
}

// transcribe makes the single upstream attempt under the configured deadline
func (p *Pipeline) transcribe(ctx context.Context, req *transcription.Request) (*transcription.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	result, err := p.transcriber.Transcribe(ctx, req)
	if err != nil {
		var unavailable *transcription.ProviderUnavailableError
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		if timedOut && !errors.As(err, &unavailable) && !errors.Is(err, transcription.ErrNoSpeech) {
			return nil, &transcription.ProviderUnavailableError{
				Provider: p.transcriber.Name(),
				Err:      fmt.Errorf("no answer within %s: %w", p.config.Timeout, err),
			}
		}
		return nil, err
	}

	if result == nil {
		return nil, fmt.Errorf("%s provider returned no result", p.transcriber.Name())
	}

	return result, nil
}

// ParseLanguage validates a BCP-47 tag and returns its canonical form.
func ParseLanguage(tag string) (string, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", &LanguageError{Tag: tag, Err: err}
	}
	return t.String(), nil
}
