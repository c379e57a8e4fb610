package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-audio/wav"
)

func TestEncodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 48kHz
	sampleRate := DefaultSampleRate
	duration := 0.1
	frequency := 440.0

	numSamples := int(float64(sampleRate) * duration)
	samples := make([]int16, numSamples)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		amplitude := 16383.0 // Half of max int16 to avoid clipping
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*frequency*t))
	}

	container, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := 44 + len(samples)*2
	if container.Len() != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, container.Len())
	}

	if container.Frames() != numSamples {
		t.Errorf("Expected %d frames, got %d", numSamples, container.Frames())
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(container.Bytes()), binary.LittleEndian, &header); err != nil {
		t.Fatalf("Failed to read WAV header: %v", err)
	}

	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		t.Errorf("Unexpected RIFF/WAVE markers: %q %q", header.ChunkID, header.Format)
	}

	if header.ChunkSize != uint32(expectedSize-8) {
		t.Errorf("Expected chunk size %d, got %d", expectedSize-8, header.ChunkSize)
	}

	if header.NumChannels != 1 {
		t.Errorf("Expected 1 channel, got %d", header.NumChannels)
	}

	if header.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", header.BitsPerSample)
	}

	if header.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, header.SampleRate)
	}

	if header.ByteRate != uint32(sampleRate*2) {
		t.Errorf("Expected byte rate %d, got %d", sampleRate*2, header.ByteRate)
	}

	if header.BlockAlign != 2 {
		t.Errorf("Expected block align 2, got %d", header.BlockAlign)
	}

	if header.Subchunk2Size != uint32(numSamples*2) {
		t.Errorf("Expected data size %d, got %d", numSamples*2, header.Subchunk2Size)
	}
}

func TestEncodeWAVSamplesReadable(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500, math.MaxInt16, math.MinInt16}

	container, err := EncodeWAV(originalSamples, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	d := wav.NewDecoder(container.Reader())
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer failed: %v", err)
	}

	if len(buf.Data) != len(originalSamples) {
		t.Fatalf("Expected %d samples, got %d", len(originalSamples), len(buf.Data))
	}

	for i, original := range originalSamples {
		if buf.Data[i] != int(original) {
			t.Errorf("Sample %d: expected %d, got %d", i, original, buf.Data[i])
		}
	}
}

func TestContainerReaderRewinds(t *testing.T) {
	container, err := EncodeWAV([]int16{1, 2, 3}, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	first := make([]byte, 4)
	if _, err := container.Reader().Read(first); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	second := make([]byte, 4)
	if _, err := container.Reader().Read(second); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if string(first) != "RIFF" || string(second) != "RIFF" {
		t.Errorf("Expected every reader to start at RIFF, got %q and %q", first, second)
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	_, err := EncodeWAV([]int16{}, DefaultSampleRate)

	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("Expected EncodingError, got %v", err)
	}

	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected error to wrap ErrEmptyInput, got %v", err)
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	samples := []int16{100, 200, 300}

	for _, rate := range []int{0, -1000} {
		_, err := EncodeWAV(samples, rate)

		var encErr *EncodingError
		if !errors.As(err, &encErr) {
			t.Errorf("rate %d: expected EncodingError, got %v", rate, err)
		}
	}
}
