package georef

import "github.com/splatmaps/georef/internal/geom"

// EnuParams is the alignment state of a splat within its anchor's local
// East-North-Up frame. Values are only ever mutated through Controller
// methods; everything else sees defensive copies.
//
// Invariant: while TiltLocked is true, PitchRad and RollRad are exactly
// zero and write-protected. The leveling rotation from the plane fit lives
// in AlignRotation instead, so the tilt never round-trips through Euler
// angles once locked.
type EnuParams struct {
	// Scale is metres per local splat unit. Always positive.
	Scale float64 `json:"scale"`

	// Rotation about the local Up, East and North axes respectively.
	YawRad   float64 `json:"yaw_rad"`
	PitchRad float64 `json:"pitch_rad"`
	RollRad  float64 `json:"roll_rad"`

	// Translation offsets within the local tangent frame, metres.
	TEast  float64 `json:"t_east"`
	TNorth float64 `json:"t_north"`
	TUp    float64 `json:"t_up"`

	TiltLocked bool `json:"tilt_locked"`

	// AlignRotation is the baked-in leveling rotation substituted for raw
	// pitch/roll once tilt is locked. Nil when unlocked.
	AlignRotation *geom.Mat3 `json:"align_rotation,omitempty"`
}

// DefaultParams is the identity pose: unit scale, no rotation, no offset.
func DefaultParams() EnuParams {
	return EnuParams{Scale: 1}
}

// Clone returns a deep copy; the align rotation, when present, gets its own
// backing array.
func (p EnuParams) Clone() EnuParams {
	out := p
	if p.AlignRotation != nil {
		rot := *p.AlignRotation
		out.AlignRotation = &rot
	}
	return out
}

// PartialParams is a bulk-assignment patch: nil fields are left unchanged.
// Used by the pose import/restore path.
type PartialParams struct {
	Scale         *float64   `json:"scale,omitempty"`
	YawRad        *float64   `json:"yaw_rad,omitempty"`
	PitchRad      *float64   `json:"pitch_rad,omitempty"`
	RollRad       *float64   `json:"roll_rad,omitempty"`
	TEast         *float64   `json:"t_east,omitempty"`
	TNorth        *float64   `json:"t_north,omitempty"`
	TUp           *float64   `json:"t_up,omitempty"`
	AlignRotation *geom.Mat3 `json:"align_rotation,omitempty"`
}
