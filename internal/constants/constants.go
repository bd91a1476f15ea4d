// Package constants provides shared constants used across the codebase.
package constants

// HTTP limits
const (
	// MaxRequestBodySize caps JSON bodies (frames carry many encodings)
	MaxRequestBodySize = 8 << 20

	// MaxObservationsPerRequest caps a batch of recognition observations
	MaxObservationsPerRequest = 500

	// MaxEncodingsPerFrame caps the faces matched from one frame
	MaxEncodingsPerFrame = 100
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for presence event subscribers
	EventChannelBuffer = 100

	// SSEKeepAliveInterval is how often an idle event stream gets a comment line, in seconds
	SSEKeepAliveInterval = 15
)

// Report defaults
const (
	// DefaultLowAttendanceThreshold is the cutoff percentage of the low-attendance report
	DefaultLowAttendanceThreshold = 75.0
)
