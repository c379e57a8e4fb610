package audio

import (
	"bytes"
	"encoding/binary"
)

const (
	// Channels is the only channel layout the service handles (mono)
	Channels = 1
	// BitsPerSample is the PCM sample width
	BitsPerSample = 16
	// BytesPerSample is the PCM sample width in bytes
	BytesPerSample = BitsPerSample / 8
)

// DecodePCM reinterprets raw little-endian bytes as signed 16-bit mono samples.
// No scaling or clamping is applied.
func DecodePCM(raw []byte) ([]int16, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}

	if len(raw)%BytesPerSample != 0 {
		return nil, &MalformedSampleError{Length: len(raw)}
	}

	samples := make([]int16, len(raw)/BytesPerSample)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, samples); err != nil {
		return nil, &MalformedSampleError{Length: len(raw), Err: err}
	}

	return samples, nil
}
