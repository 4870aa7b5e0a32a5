package georef

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/splatmaps/georef/internal/geom"
)

// RotationMode selects how the free rotation parameters are composed into
// the placement matrix. The two paths are independently testable; the
// controller switches to RotationTiltLockedYaw when a plane fit locks the
// tilt.
type RotationMode int

const (
	// RotationThreeAxis composes yaw, pitch and roll as free rotations:
	// Rz(yaw) * Rx(pitch) * Ry(roll), in that fixed order regardless of the
	// order the inputs arrived in.
	RotationThreeAxis RotationMode = iota

	// RotationTiltLockedYaw keeps only yaw free and composes it after the
	// baked-in leveling rotation: alignRot * Rz(yaw).
	RotationTiltLockedYaw
)

// String returns the config spelling of the mode.
func (m RotationMode) String() string {
	switch m {
	case RotationThreeAxis:
		return "three_axis"
	case RotationTiltLockedYaw:
		return "tilt_locked_yaw"
	default:
		return fmt.Sprintf("RotationMode(%d)", int(m))
	}
}

// Composer builds placement matrices from an anchor and a parameter
// snapshot. The only state it mutates is its injected frame cache, and only
// to insert a missing anchor frame.
type Composer struct {
	cache *FrameCache
}

// NewComposer returns a composer backed by the given frame cache. A nil
// cache gets a fresh private one.
func NewComposer(cache *FrameCache) *Composer {
	if cache == nil {
		cache = NewFrameCache()
	}
	return &Composer{cache: cache}
}

// Cache exposes the composer's frame cache (for session teardown and
// tests).
func (c *Composer) Cache() *FrameCache { return c.cache }

// ModeOf returns the rotation strategy a parameter snapshot selects: the
// tilt-locked path whenever a leveling rotation has been baked in,
// otherwise the free three-axis path.
func ModeOf(p EnuParams) RotationMode {
	if p.TiltLocked && p.AlignRotation != nil {
		return RotationTiltLockedYaw
	}
	return RotationThreeAxis
}

// RotationFor builds the 3x3 rotation for the snapshot under an explicit
// strategy, so both composition paths can be exercised independently.
// RotationTiltLockedYaw without a baked-in rotation falls back to yaw only.
func RotationFor(p EnuParams, mode RotationMode) geom.Mat3 {
	switch mode {
	case RotationTiltLockedYaw:
		yaw := geom.RotZ(p.YawRad)
		if p.AlignRotation == nil {
			return yaw
		}
		return p.AlignRotation.Mul(yaw)
	default:
		return geom.RotZ(p.YawRad).Mul(geom.RotX(p.PitchRad)).Mul(geom.RotY(p.RollRad))
	}
}

// translationOf maps the offset fields onto tangent-frame axes.
func translationOf(p EnuParams) r3.Vector {
	return r3.Vector{X: p.TEast, Y: p.TNorth, Z: p.TUp}
}

// localComposite builds T * R * S in the tangent frame, where the axis
// semantics are plain: X east, Y north, Z up.
func localComposite(p EnuParams) geom.Mat4 {
	r := RotationFor(p, ModeOf(p))
	t := translationOf(p)
	return geom.ComposeTRS(t, r, p.Scale)
}

// Compose returns the placement matrix mapping a point in local splat
// coordinates into the Earth-fixed frame:
//
//	M = localToWorld * T * R * S
//
// Composing with identical anchor and parameter values yields a
// bit-identical matrix once the frame cache is warm. A non-positive scale
// is rejected rather than clamped; clamping is the controller's policy,
// not the composer's.
func (c *Composer) Compose(anchor Anchor, p EnuParams) (geom.Mat4, error) {
	if p.Scale <= 0 {
		return geom.Mat4{}, fmt.Errorf("compose: scale %v: %w", p.Scale, ErrInvalidScale)
	}
	frame := c.cache.Frame(anchor)
	return frame.LocalToWorld.Mul(localComposite(p)), nil
}

// ComposeWorldAdjustment returns the same pose as a world-frame adjustment:
//
//	M = localToWorld * T * R * S * worldToLocal
//
// This conjugated form is for renderers whose splat points are already
// expressed in ECEF (the splat sits at the anchor and the matrix nudges it
// in place). Applied to the anchor's ECEF position with zero offsets it is
// a fixed point, which is the same geometry Compose expresses for the local
// origin.
func (c *Composer) ComposeWorldAdjustment(anchor Anchor, p EnuParams) (geom.Mat4, error) {
	if p.Scale <= 0 {
		return geom.Mat4{}, fmt.Errorf("compose: scale %v: %w", p.Scale, ErrInvalidScale)
	}
	frame := c.cache.Frame(anchor)
	return frame.LocalToWorld.Mul(localComposite(p)).Mul(frame.WorldToLocal), nil
}
