package audio

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when there are no PCM bytes or samples to work with.
var ErrEmptyInput = errors.New("audio: empty PCM input")

// ErrBufferFull is returned when an utterance outgrows its buffer.
var ErrBufferFull = errors.New("audio: utterance buffer full")

// MalformedSampleError reports a PCM buffer that cannot be read as 16-bit samples
type MalformedSampleError struct {
	Length int   // Buffer length in bytes
	Err    error // Underlying decode error, if any
}

func (e *MalformedSampleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: malformed PCM buffer of %d bytes: %v", e.Length, e.Err)
	}
	return fmt.Sprintf("audio: malformed PCM buffer: %d bytes is not a multiple of %d", e.Length, BytesPerSample)
}

func (e *MalformedSampleError) Unwrap() error { return e.Err }

// EncodingError reports a failure to build or re-read a WAV container
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("audio: WAV encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// TooShortError is returned by Validate when the audio is shorter than the configured minimum
type TooShortError struct {
	Duration float64 // seconds
	Minimum  float64 // seconds
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("audio too short (%.2fs), at least %.2fs required", e.Duration, e.Minimum)
}
