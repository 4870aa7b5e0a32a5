package georef

import "errors"

// Sentinel errors for the calibration and mutation boundaries. All of them
// are recoverable: the session's parameter state is left untouched and the
// previous pose remains valid and renderable.
var (
	// ErrInsufficientData is returned when a plane fit is attempted with
	// fewer than three ground points.
	ErrInsufficientData = errors.New("georef: need at least 3 points to fit a plane")

	// ErrInvalidMeasurement is returned for non-positive width or imaging
	// measurements at the calibrator boundary.
	ErrInvalidMeasurement = errors.New("georef: measurement must be positive")

	// ErrInvalidScale is returned when a composition is requested with a
	// non-positive scale.
	ErrInvalidScale = errors.New("georef: scale must be positive")

	// ErrBlockedByLock reports a pitch or roll mutation attempted while the
	// tilt lock is engaged. It is a reported no-op, not a failure: yaw and
	// every other field stay mutable.
	ErrBlockedByLock = errors.New("georef: pitch/roll are fixed while tilt is locked")
)
