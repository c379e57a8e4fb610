package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestNewBuffer(t *testing.T) {
	buffer := NewBuffer(1024)

	if buffer == nil {
		t.Fatal("NewBuffer returned nil")
	}

	if buffer.Len() != 0 {
		t.Errorf("Expected initial size 0, got %d", buffer.Len())
	}

	stats := buffer.GetStats()
	if stats.TotalChunks != 0 || !stats.StartedAt.IsZero() {
		t.Errorf("Expected empty stats, got %+v", stats)
	}
}

func TestBufferAppendAndTake(t *testing.T) {
	buffer := NewBuffer(0)

	chunks := [][]byte{{1, 2, 3}, {4}, {5, 6, 7, 8}}
	for _, c := range chunks {
		if err := buffer.Append(c); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	stats := buffer.GetStats()
	if stats.TotalChunks != 3 {
		t.Errorf("Expected 3 chunks, got %d", stats.TotalChunks)
	}
	if stats.SizeBytes != 8 || stats.Samples != 4 {
		t.Errorf("Expected 8 bytes / 4 samples, got %d / %d", stats.SizeBytes, stats.Samples)
	}
	if stats.LastUpdate.Before(stats.StartedAt) {
		t.Error("Expected last update after start")
	}

	data := buffer.Take()
	if !bytes.Equal(data, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("Unexpected utterance %v", data)
	}

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer after Take, got %d bytes", buffer.Len())
	}
}

func TestBufferEmptyChunkIgnored(t *testing.T) {
	buffer := NewBuffer(0)

	if err := buffer.Append(nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if buffer.GetStats().TotalChunks != 0 {
		t.Error("Expected empty chunk to be ignored")
	}
}

func TestBufferLimit(t *testing.T) {
	buffer := NewBuffer(4)

	if err := buffer.Append([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Append within limit failed: %v", err)
	}

	if err := buffer.Append([]byte{5}); !errors.Is(err, ErrBufferFull) {
		t.Errorf("Expected ErrBufferFull when exceeding limit, got %v", err)
	}

	if buffer.Len() != 4 {
		t.Errorf("Expected rejected chunk to leave buffer unchanged, got %d bytes", buffer.Len())
	}
}

func TestBufferReset(t *testing.T) {
	buffer := NewBuffer(0)
	_ = buffer.Append([]byte{1, 2})

	time.Sleep(time.Millisecond)
	buffer.Reset()

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer after Reset, got %d bytes", buffer.Len())
	}

	if buffer.GetStats().TotalChunks != 0 {
		t.Error("Expected chunk count to be reset")
	}
}
