package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// DefaultSampleRate is the declared playback rate when none is configured
	DefaultSampleRate = 48000

	wavHeaderSize = 44
)

// WAVHeader represents the canonical 44-byte header of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Container is an in-memory WAV file. It is never mutated after EncodeWAV
// returns, so it can be read any number of times.
type Container struct {
	data       []byte
	sampleRate int
	frames     int
}

// Bytes returns the complete WAV file.
func (c *Container) Bytes() []byte {
	return c.data
}

// Reader returns a new seekable reader positioned at the start of the file.
func (c *Container) Reader() *bytes.Reader {
	return bytes.NewReader(c.data)
}

// Len returns the size of the WAV file in bytes.
func (c *Container) Len() int {
	return len(c.data)
}

// SampleRate returns the declared sample rate.
func (c *Container) SampleRate() int {
	return c.sampleRate
}

// Frames returns the number of frames written to the data chunk.
func (c *Container) Frames() int {
	return c.frames
}

// EncodeWAV wraps PCM-16 mono samples into a WAV container.
// sampleRate only sets the header; the samples are not resampled, so a rate that
// differs from the real capture rate skews every duration derived from the file.
func EncodeWAV(samples []int16, sampleRate int) (*Container, error) {
	if len(samples) == 0 {
		return nil, &EncodingError{Err: ErrEmptyInput}
	}

	if sampleRate <= 0 {
		return nil, &EncodingError{Err: fmt.Errorf("sample rate must be positive, got %d", sampleRate)}
	}

	dataSize := uint32(len(samples) * BytesPerSample)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     wavHeaderSize - 8 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   Channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * Channels * BytesPerSample,
		BlockAlign:    Channels * BytesPerSample,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+int(dataSize)))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("write WAV header: %w", err)}
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("write audio data: %w", err)}
	}

	return &Container{
		data:       buf.Bytes(),
		sampleRate: sampleRate,
		frames:     len(samples),
	}, nil
}
