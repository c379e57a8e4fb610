package audio

import (
	"fmt"

	"github.com/go-audio/wav"
)

// DefaultMinDuration is the shortest audio, in seconds, worth sending upstream
const DefaultMinDuration = 0.3

// Info is a read-only description of a WAV container, as recovered from its header
type Info struct {
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample"`
	SampleRate    int     `json:"sample_rate"`
	Frames        int     `json:"frames"`
	Duration      float64 `json:"duration_seconds"`
	Size          int     `json:"size_bytes"`
}

// Inspect re-reads the container with an independent WAV decoder and returns
// its format and duration. Duration is frames / sample rate.
func Inspect(c *Container) (*Info, error) {
	if c == nil || c.Len() == 0 {
		return nil, &EncodingError{Err: ErrEmptyInput}
	}

	d := wav.NewDecoder(c.Reader())
	if err := d.FwdToPCM(); err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("re-read WAV container: %w", err)}
	}
	if err := d.Err(); err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("re-read WAV container: %w", err)}
	}
	if d.PCMChunk == nil {
		return nil, &EncodingError{Err: fmt.Errorf("re-read WAV container: data chunk not found")}
	}

	if d.WavAudioFormat != 1 {
		return nil, &EncodingError{Err: fmt.Errorf("unsupported audio format %d (only PCM)", d.WavAudioFormat)}
	}

	if d.SampleRate == 0 {
		return nil, &EncodingError{Err: fmt.Errorf("invalid sample rate: 0")}
	}

	blockAlign := int(d.NumChans) * int(d.BitDepth) / 8
	if blockAlign == 0 {
		return nil, &EncodingError{Err: fmt.Errorf("invalid block layout: %d channels, %d bits", d.NumChans, d.BitDepth)}
	}

	if expected := d.SampleRate * uint32(blockAlign); d.AvgBytesPerSec != expected {
		return nil, &EncodingError{Err: fmt.Errorf("byte rate %d does not match declared format (%d)", d.AvgBytesPerSec, expected)}
	}

	if d.PCMSize%blockAlign != 0 {
		return nil, &EncodingError{Err: fmt.Errorf("data chunk of %d bytes is not a whole number of frames", d.PCMSize)}
	}

	frames := d.PCMSize / blockAlign

	return &Info{
		Channels:      int(d.NumChans),
		BitsPerSample: int(d.BitDepth),
		SampleRate:    int(d.SampleRate),
		Frames:        frames,
		Duration:      float64(frames) / float64(d.SampleRate),
		Size:          c.Len(),
	}, nil
}

// Validate inspects the container and rejects audio shorter than minDuration seconds.
func Validate(c *Container, minDuration float64) (*Info, error) {
	info, err := Inspect(c)
	if err != nil {
		return nil, err
	}

	if info.Duration < minDuration {
		return info, &TooShortError{Duration: info.Duration, Minimum: minDuration}
	}

	return info, nil
}
