package retrieval

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeBase64 packs a vector as little-endian float32 bytes, base64-encoded.
// This is the interchange format used when embeddings travel through text
// files or JSON rather than the database.
func EncodeBase64(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBase64 is the inverse of EncodeBase64.
func DecodeBase64(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("decoding embedding: %d bytes is not a whole number of float32s", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
