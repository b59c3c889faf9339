package memory

import "testing"

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("Expected %d elements, got %d", len(vec), len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("Element %d: expected %v, got %v", i, vec[i], got[i])
		}
	}

	if encodeVector(nil) != nil {
		t.Error("Expected nil blob for an empty vector")
	}
}

func TestDecodeVectorRejectsTruncatedBlob(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for a blob that is not a multiple of four bytes")
	}
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("Expected mismatched lengths to score zero, got %v", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("Expected zero-magnitude vector to score zero, got %v", got)
	}
	if got := cosineSimilarity([]float32{1, 2}, []float32{1, 2}); got < 0.999 {
		t.Errorf("Expected identical vectors to score ~1, got %v", got)
	}
}
