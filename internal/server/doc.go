// Package server is the HTTP boundary of the service. POST /stt runs one
// transcription per request, GET /ws accumulates an utterance over a
// WebSocket and transcribes it on demand, and the remaining endpoints expose
// health, configuration, statistics and Prometheus metrics. Pipeline errors
// are rendered as {"error": kind, "message": ..., "details": ...} with the
// status of their kind.
package server
