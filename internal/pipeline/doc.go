// Package pipeline sequences one transcription: PCM decode, WAV encode,
// duration validation and a single deadline-bound provider call.
//
// Every failure is returned to the caller unlogged. KindOf maps an error to
// its Kind, and Kind.HTTPStatus to the response status, so the HTTP and
// WebSocket boundaries render failures the same way.
package pipeline
