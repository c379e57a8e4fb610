package audio

import (
	"fmt"
	"sync"
	"time"
)

// Buffer accumulates raw PCM chunks of a single utterance until the caller
// asks for the whole recording. It enforces an upper bound on memory use.
type Buffer struct {
	maxBytes int

	rawAudioData []byte

	// Timing and metadata
	startedAt   time.Time
	lastUpdate  time.Time
	totalChunks uint32

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	TotalChunks uint32    `json:"total_chunks"`
	SizeBytes   int       `json:"size_bytes"`
	Samples     int       `json:"samples"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdate  time.Time `json:"last_update"`
}

// NewBuffer creates an utterance buffer holding at most maxBytes of PCM
func NewBuffer(maxBytes int) *Buffer {
	return &Buffer{
		maxBytes: maxBytes,
	}
}

// Append adds a chunk of raw PCM bytes. Chunks may split a sample; only the
// complete utterance has to be an even number of bytes.
func (b *Buffer) Append(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(chunk) == 0 {
		return nil
	}

	if b.maxBytes > 0 && len(b.rawAudioData)+len(chunk) > b.maxBytes {
		return fmt.Errorf("%w: limit is %d bytes", ErrBufferFull, b.maxBytes)
	}

	now := time.Now()
	if b.totalChunks == 0 {
		b.startedAt = now
	}
	b.lastUpdate = now
	b.totalChunks++

	b.rawAudioData = append(b.rawAudioData, chunk...)
	return nil
}

// Take returns the accumulated utterance and resets the buffer.
func (b *Buffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.rawAudioData
	b.reset()
	return data
}

// Reset discards the accumulated utterance.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *Buffer) reset() {
	b.rawAudioData = nil
	b.totalChunks = 0
	b.startedAt = time.Time{}
}

// Len returns the number of buffered bytes
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rawAudioData)
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		TotalChunks: b.totalChunks,
		SizeBytes:   len(b.rawAudioData),
		Samples:     len(b.rawAudioData) / BytesPerSample,
		StartedAt:   b.startedAt,
		LastUpdate:  b.lastUpdate,
	}
}
