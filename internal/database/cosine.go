package database

import "math"

// MaxEncodingDistance is what CosineDistance reports for encodings that
// cannot be compared. No real match is ever that far away.
const MaxEncodingDistance = 2.0

// CosineDistance is 1 - cosine similarity of two face encodings, in [0, 2].
// Encodings of different dimension or with zero magnitude are treated as
// unrelated and get MaxEncodingDistance.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return MaxEncodingDistance
	}

	var dot, sumA, sumB float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		sumA += float64(x) * float64(x)
		sumB += y * y
	}
	if sumA == 0 || sumB == 0 {
		return MaxEncodingDistance
	}

	// Rounding can push the ratio just past ±1.
	similarity := max(-1, min(1, dot/math.Sqrt(sumA*sumB)))
	return 1 - similarity
}
