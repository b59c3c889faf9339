package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

const vectorElemBytes = 4

// encodeVector packs a vector into the little-endian blob stored in the
// embedding column. An empty vector encodes to nil so unembedded turns
// keep a NULL column.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	blob := make([]byte, len(vec)*vectorElemBytes)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(blob[i*vectorElemBytes:], math.Float32bits(f))
	}
	return blob
}

// decodeVector unpacks an embedding blob. A truncated blob is an error
// so a corrupt row surfaces instead of scoring as garbage.
func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%vectorElemBytes != 0 {
		return nil, fmt.Errorf("embedding blob has invalid length %d", len(blob))
	}
	vec := make([]float32, len(blob)/vectorElemBytes)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*vectorElemBytes:]))
	}
	return vec, nil
}

// cosineSimilarity scores two vectors in [-1, 1]. Mismatched lengths
// and zero-magnitude vectors score zero, which the vector search
// filters out.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / math.Sqrt(normA*normB)
}
