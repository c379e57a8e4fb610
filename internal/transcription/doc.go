// Package transcription adapts a WAV file into a request to an external
// speech-to-text provider (Google Cloud Speech, OpenAI Whisper or a generic
// multipart HTTP endpoint) and maps provider failures onto two outcomes:
// no speech recognized, or provider unavailable. No request is retried.
package transcription
