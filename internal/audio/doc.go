// Package audio turns raw PCM-16 mono bytes into a WAV container and checks it.
// It decodes little-endian samples, encodes them behind a canonical 44-byte
// header, re-reads the result with an independent WAV decoder to recover the
// frame count and duration, and accumulates chunked utterances.
package audio
