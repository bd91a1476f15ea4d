// Package facematch matches face encodings against the gallery of enrolled
// students. It is shared between the CLI and the web handlers.
package facematch

import "errors"

// DefaultDistanceThreshold is the largest cosine distance accepted as a match.
const DefaultDistanceThreshold = 0.5

// ErrDimensionMismatch is returned for query encodings of the wrong length.
var ErrDimensionMismatch = errors.New("encoding dimension mismatch")

// Match is a recognized student for one encoding seen in a frame.
type Match struct {
	StudentID  string  `json:"student_id"`
	EncodingID int64   `json:"encoding_id"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"` // 1 - distance
}
