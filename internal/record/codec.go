package record

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// EncodeVector converts a float32 slice to little-endian bytes. The
// encoding is bitwise exact, so NaN payloads and signed zeros survive
// a round trip unchanged.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector converts little-endian bytes back to a float32 slice.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("vector blob length %d is not a multiple of 4", len(b))}
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// EncodeMetadata serializes metadata to its JSON text form for storage.
// A nil map serializes as an empty object.
func EncodeMetadata(m Metadata) (string, error) {
	if m == nil {
		m = Metadata{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

// DecodeMetadata parses the stored JSON text back into a metadata map.
func DecodeMetadata(text string) (Metadata, error) {
	if text == "" {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if m == nil {
		m = Metadata{}
	}
	return m, nil
}
