package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/su-jin-shin/speechflow/internal/audio"
	"github.com/su-jin-shin/speechflow/internal/transcription"
)

// Kind names a class of pipeline failure. Its string form is what clients
// see in the "error" field of a JSON error response.
type Kind string

const (
	KindEmptyInput          Kind = "EmptyInputError"
	KindMalformedSample     Kind = "MalformedSampleError"
	KindEncoding            Kind = "EncodingError"
	KindAudioTooShort       Kind = "AudioTooShortError"
	KindNoSpeech            Kind = "NoSpeechRecognizedError"
	KindProviderUnavailable Kind = "ProviderUnavailableError"
	KindInvalidLanguage     Kind = "InvalidLanguageError"
	KindPayloadTooLarge     Kind = "PayloadTooLargeError"
	KindInternal            Kind = "InternalError"
)

// Kinds lists every kind, in the order they are checked
var Kinds = []Kind{
	KindEmptyInput,
	KindMalformedSample,
	KindEncoding,
	KindAudioTooShort,
	KindNoSpeech,
	KindProviderUnavailable,
	KindInvalidLanguage,
	KindPayloadTooLarge,
	KindInternal,
}

func (k Kind) String() string {
	return string(k)
}

// HTTPStatus returns the response status for the kind.
// Caller-correctable input problems are 4xx, dependency and internal faults 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindEmptyInput, KindMalformedSample, KindEncoding, KindAudioTooShort, KindNoSpeech, KindInvalidLanguage:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// ExposesDetails reports whether the underlying error text may be returned to the client
func (k Kind) ExposesDetails() bool {
	return k == KindProviderUnavailable || k == KindInternal
}

// LanguageError is returned when a language tag is not valid BCP-47
type LanguageError struct {
	Tag string
	Err error
}

func (e *LanguageError) Error() string {
	return fmt.Sprintf("invalid language tag %q: %v", e.Tag, e.Err)
}

func (e *LanguageError) Unwrap() error { return e.Err }

// KindOf classifies err. A nil error has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var (
		langErr     *LanguageError
		maxBytesErr *http.MaxBytesError
		encErr      *audio.EncodingError
		malformed   *audio.MalformedSampleError
		tooShort    *audio.TooShortError
		unavailable *transcription.ProviderUnavailableError
	)

	// EncodingError is checked before ErrEmptyInput: an encoder given no
	// samples wraps ErrEmptyInput but is still an encoding failure.
	switch {
	case errors.As(err, &langErr):
		return KindInvalidLanguage
	case errors.As(err, &maxBytesErr), errors.Is(err, audio.ErrBufferFull):
		return KindPayloadTooLarge
	case errors.As(err, &encErr):
		return KindEncoding
	case errors.Is(err, audio.ErrEmptyInput):
		return KindEmptyInput
	case errors.As(err, &malformed):
		return KindMalformedSample
	case errors.As(err, &tooShort):
		return KindAudioTooShort
	case errors.Is(err, transcription.ErrNoSpeech):
		return KindNoSpeech
	case errors.As(err, &unavailable):
		return KindProviderUnavailable
	default:
		return KindInternal
	}
}
