// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Raster constants
const (
	// DefaultRasterSize is the width and height of every normalized face sample
	DefaultRasterSize = 200

	// SampleFileExt is the extension used for newly written face samples
	SampleFileExt = ".png"
)

// Enrollment constants
const (
	// DefaultSampleCount is the number of face samples collected per identity
	DefaultSampleCount = 20
)

// Recognition constants
const (
	// DefaultThreshold is the default maximum distance for accepting a match.
	// Lower values = stricter matching. A score equal to the threshold is rejected.
	DefaultThreshold = 70.0

	// UnknownName is the display name used for faces that did not pass the threshold
	UnknownName = "unknown"

	// UnknownLabel is the label reported for faces that did not pass the threshold
	UnknownLabel = -1
)

// Camera constants
const (
	// DefaultCameraRetries is the number of consecutive frame failures tolerated
	// before a session is stopped
	DefaultCameraRetries = 30

	// DefaultCameraDevice is the default V4L2 device path
	DefaultCameraDevice = "/dev/video0"
)

// Ledger constants
const (
	// TimestampLayout is the fixed ledger timestamp format (YYYY-MM-DD HH:MM:SS)
	TimestampLayout = "2006-01-02 15:04:05"

	// DayLayout is the calendar-day prefix of TimestampLayout
	DayLayout = "2006-01-02"
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum ledger import or frame upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)
