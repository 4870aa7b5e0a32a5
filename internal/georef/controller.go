package georef

import (
	"fmt"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/splatmaps/georef/internal/geom"
)

// Default scale clamp bounds for interactive adjustment. Policy values;
// sessions override them through ControllerOptions.
const (
	DefaultScaleMin = 0.1
	DefaultScaleMax = 50.0
)

// ControllerOptions carries the per-session policy knobs.
type ControllerOptions struct {
	// ScaleMin/ScaleMax clamp interactive and calibrated scale changes.
	// Zero values fall back to the defaults.
	ScaleMin float64
	ScaleMax float64

	// LaneWidthM overrides the canonical per-lane width for road width
	// estimation. Zero falls back to LaneWidthM.
	LaneWidthM float64

	// UnknownRoadWidthM is the estimate returned for road classes outside
	// the lookup table. Zero falls back to DefaultRoadWidthM.
	UnknownRoadWidthM float64
}

// Controller is the sole mutation point for a session's alignment
// parameters. Every successful mutation is atomic with respect to the
// visible state: the new parameter set is built and validated first, then
// swapped in, logged, recomposed, and broadcast.
//
// The session core is event-driven and synchronous; the mutex exists so a
// multi-session server can safely expose controllers over HTTP.
type Controller struct {
	mu sync.Mutex

	anchor   Anchor
	params   EnuParams
	composer *Composer
	tracker  *Tracker
	matrix   geom.Mat4

	scaleMin          float64
	scaleMax          float64
	laneWidthM        float64
	unknownRoadWidthM float64

	onRecompose []func(geom.Mat4, EnuParams)
}

// NewController starts an alignment session at the given anchor and initial
// pose guess. The anchor is fixed for the controller's lifetime.
func NewController(anchor Anchor, initial EnuParams, composer *Composer, opts ControllerOptions) (*Controller, error) {
	if !anchor.Valid() {
		return nil, fmt.Errorf("controller: anchor %+v outside geodetic domain", anchor)
	}
	if composer == nil {
		composer = NewComposer(nil)
	}
	if opts.ScaleMin <= 0 {
		opts.ScaleMin = DefaultScaleMin
	}
	if opts.ScaleMax <= 0 {
		opts.ScaleMax = DefaultScaleMax
	}
	if opts.LaneWidthM <= 0 {
		opts.LaneWidthM = LaneWidthM
	}
	if opts.UnknownRoadWidthM <= 0 {
		opts.UnknownRoadWidthM = DefaultRoadWidthM
	}

	c := &Controller{
		anchor:            anchor,
		params:            initial.Clone(),
		composer:          composer,
		tracker:           NewTracker(initial),
		scaleMin:          opts.ScaleMin,
		scaleMax:          opts.ScaleMax,
		laneWidthM:        opts.LaneWidthM,
		unknownRoadWidthM: opts.UnknownRoadWidthM,
	}

	m, err := composer.Compose(anchor, c.params)
	if err != nil {
		return nil, fmt.Errorf("controller: initial pose: %w", err)
	}
	c.matrix = m
	return c, nil
}

// OnRecompose registers a callback invoked with the fresh placement matrix
// and the parameter snapshot that produced it after every successful
// mutation. Callbacks run synchronously on the mutating call but outside
// the controller lock, so they may call back into the controller.
func (c *Controller) OnRecompose(fn func(geom.Mat4, EnuParams)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRecompose = append(c.onRecompose, fn)
}

// apply runs fn under the controller mutex. When fn succeeds the registered
// recompose callbacks fire after the lock is released, with the matrix and
// params snapshotted while still locked so every callback sees the state
// its mutation produced.
func (c *Controller) apply(fn func() error) error {
	c.mu.Lock()
	err := fn()
	var fns []func(geom.Mat4, EnuParams)
	var m geom.Mat4
	var p EnuParams
	if err == nil && len(c.onRecompose) > 0 {
		fns = c.onRecompose
		m = c.matrix
		p = c.params.Clone()
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	for _, cb := range fns {
		cb(m, p)
	}
	return nil
}

// recomposeLocked swaps in next and recomposes. Caller holds the mutex. On
// composition failure the previous params stay in effect.
func (c *Controller) recomposeLocked(next EnuParams) error {
	m, err := c.composer.Compose(c.anchor, next)
	if err != nil {
		return err
	}
	c.params = next
	c.matrix = m
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AdjustScale multiplies the scale by factor, clamped to the session
// bounds. A non-positive factor is rejected before the parameter store is
// touched.
func (c *Controller) AdjustScale(factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("adjust scale by %v: %w", factor, ErrInvalidScale)
	}
	return c.apply(func() error {
		before := c.params.Scale
		next := c.params.Clone()
		next.Scale = clamp(before*factor, c.scaleMin, c.scaleMax)
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		c.tracker.RecordScale(SourceManual, before, c.params.Scale)
		return nil
	})
}

// AdjustYaw adds deltaRad to the yaw. Yaw stays mutable regardless of the
// tilt lock.
func (c *Controller) AdjustYaw(deltaRad float64) error {
	return c.apply(func() error {
		before := c.params.YawRad
		next := c.params.Clone()
		next.YawRad = before + deltaRad
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		c.tracker.RecordYaw(SourceManual, before, c.params.YawRad)
		return nil
	})
}

// AdjustPitch adds deltaRad to the pitch. While tilt is locked the
// mutation is a reported no-op.
func (c *Controller) AdjustPitch(deltaRad float64) error {
	return c.apply(func() error {
		if c.params.TiltLocked {
			return fmt.Errorf("adjust pitch: %w", ErrBlockedByLock)
		}
		before := c.params.PitchRad
		next := c.params.Clone()
		next.PitchRad = before + deltaRad
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		c.tracker.RecordPitch(SourceManual, before, c.params.PitchRad)
		return nil
	})
}

// AdjustRoll adds deltaRad to the roll. While tilt is locked the mutation
// is a reported no-op.
func (c *Controller) AdjustRoll(deltaRad float64) error {
	return c.apply(func() error {
		if c.params.TiltLocked {
			return fmt.Errorf("adjust roll: %w", ErrBlockedByLock)
		}
		before := c.params.RollRad
		next := c.params.Clone()
		next.RollRad = before + deltaRad
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		c.tracker.RecordRoll(SourceManual, before, c.params.RollRad)
		return nil
	})
}

// AdjustPosition adds the east/north/up deltas simultaneously and logs a
// single compound entry.
func (c *Controller) AdjustPosition(deltaEast, deltaNorth, deltaUp float64) error {
	return c.apply(func() error {
		next := c.params.Clone()
		next.TEast += deltaEast
		next.TNorth += deltaNorth
		next.TUp += deltaUp
		beforeE, beforeN, beforeU := c.params.TEast, c.params.TNorth, c.params.TUp
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		c.tracker.RecordPosition(SourceManual, beforeE, beforeN, beforeU,
			c.params.TEast, c.params.TNorth, c.params.TUp)
		return nil
	})
}

// AdjustHeight adds deltaUp to the vertical offset only, logged as a
// height entry (the coarse vertical keyboard path).
func (c *Controller) AdjustHeight(deltaUp float64) error {
	return c.apply(func() error {
		before := c.params.TUp
		next := c.params.Clone()
		next.TUp = before + deltaUp
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		c.tracker.RecordHeight(SourceManual, before, c.params.TUp)
		return nil
	})
}

// LockTilt fits a plane through the ground samples and bakes the leveling
// rotation into the parameter state: pitch and roll snap to zero and become
// write-protected, only yaw stays free. On a failed fit the state is left
// unchanged and the caller can retry with more points.
func (c *Controller) LockTilt(groundPoints []r3.Vector) (*PlaneAlignment, error) {
	fit, err := EstimateGroundAlignment(groundPoints)
	if err != nil {
		return nil, err
	}

	err = c.apply(func() error {
		rot := fit.Matrix
		next := c.params.Clone()
		next.AlignRotation = &rot
		next.TiltLocked = true
		next.PitchRad = 0
		next.RollRad = 0

		beforePitch, beforeRoll := c.params.PitchRad, c.params.RollRad
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		if beforePitch != 0 {
			c.tracker.RecordPitch(SourceCalibration, beforePitch, 0)
		}
		if beforeRoll != 0 {
			c.tracker.RecordRoll(SourceCalibration, beforeRoll, 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fit, nil
}

// UnlockTilt discards the plane fit: the align rotation is cleared and
// pitch/roll return to zero as freely mutable fields. There is no
// automatic path back to unlocked; this is the explicit one.
func (c *Controller) UnlockTilt() error {
	return c.apply(func() error {
		if !c.params.TiltLocked {
			return nil
		}
		next := c.params.Clone()
		next.AlignRotation = nil
		next.TiltLocked = false
		next.PitchRad = 0
		next.RollRad = 0
		return c.recomposeLocked(next)
	})
}

// CalibrateScaleFromRoadWidth derives the scale from a measured road and
// assigns it absolutely (not multiplicatively), clamped to the session
// bounds. The assignment shares the manual adjustment log, tagged with a
// calibration source, so the audit trail stays a single ordered history.
func (c *Controller) CalibrateScaleFromRoadWidth(trueWidthM, measuredWidthUnits float64) (float64, error) {
	scale, err := ScaleFromRoadWidth(trueWidthM, measuredWidthUnits)
	if err != nil {
		return 0, err
	}
	return c.assignScale(scale)
}

// CalibrateScaleFromImaging assigns the ground-sample-distance scale
// derived from capture EXIF data. Fallback path when no measurable road is
// in the scan.
func (c *Controller) CalibrateScaleFromImaging(altitudeM, focalLengthMm, pixelPitchMicrons float64) (float64, error) {
	scale, err := ScaleFromImagingGeometry(altitudeM, focalLengthMm, pixelPitchMicrons)
	if err != nil {
		return 0, err
	}
	return c.assignScale(scale)
}

func (c *Controller) assignScale(scale float64) (float64, error) {
	var assigned float64
	err := c.apply(func() error {
		before := c.params.Scale
		next := c.params.Clone()
		next.Scale = clamp(scale, c.scaleMin, c.scaleMax)
		if err := c.recomposeLocked(next); err != nil {
			return err
		}
		c.tracker.RecordScale(SourceCalibration, before, c.params.Scale)
		assigned = c.params.Scale
		return nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

// EstimateRoadWidth resolves a road classification (and optional lane
// count) to the true-width operand for road calibration, using the
// session's lane width and unknown-class fallback.
func (c *Controller) EstimateRoadWidth(roadClass string, laneCount int) float64 {
	return estimateRoadWidth(roadClass, laneCount, c.laneWidthM, c.unknownRoadWidthM)
}

// SetParams applies a bulk patch. While tilt is locked, pitch, roll and
// align-rotation fields are silently dropped from the batch and reported in
// the returned blocked list; the rest of the patch still applies. SetParams
// does not write audit entries: callers wanting a clean baseline reset the
// tracker afterwards.
func (c *Controller) SetParams(patch PartialParams) (blocked []string, err error) {
	err = c.apply(func() error {
		next := c.params.Clone()
		if patch.Scale != nil {
			if *patch.Scale <= 0 {
				return fmt.Errorf("set params: scale %v: %w", *patch.Scale, ErrInvalidScale)
			}
			next.Scale = clamp(*patch.Scale, c.scaleMin, c.scaleMax)
		}
		if patch.YawRad != nil {
			next.YawRad = *patch.YawRad
		}
		if patch.TEast != nil {
			next.TEast = *patch.TEast
		}
		if patch.TNorth != nil {
			next.TNorth = *patch.TNorth
		}
		if patch.TUp != nil {
			next.TUp = *patch.TUp
		}

		if c.params.TiltLocked {
			if patch.PitchRad != nil {
				blocked = append(blocked, "pitch_rad")
			}
			if patch.RollRad != nil {
				blocked = append(blocked, "roll_rad")
			}
			if patch.AlignRotation != nil {
				blocked = append(blocked, "align_rotation")
			}
		} else {
			if patch.PitchRad != nil {
				next.PitchRad = *patch.PitchRad
			}
			if patch.RollRad != nil {
				next.RollRad = *patch.RollRad
			}
			if patch.AlignRotation != nil {
				rot := *patch.AlignRotation
				next.AlignRotation = &rot
			}
		}

		return c.recomposeLocked(next)
	})
	return blocked, err
}

// RestoreParams replaces the entire parameter state with a previously
// persisted snapshot, including the tilt lock and its baked align rotation.
// Unlike SetParams the current lock does not block any field: the snapshot
// is a complete pose that was valid when saved, so it comes back exactly,
// lock re-engaged when it carried one. Restores write no audit entries;
// callers wanting a clean baseline reset the tracker afterwards.
func (c *Controller) RestoreParams(p EnuParams) error {
	if p.Scale <= 0 {
		return fmt.Errorf("restore params: scale %v: %w", p.Scale, ErrInvalidScale)
	}
	return c.apply(func() error {
		next := p.Clone()
		next.Scale = clamp(next.Scale, c.scaleMin, c.scaleMax)
		return c.recomposeLocked(next)
	})
}

// Params returns a defensive copy of the current parameter state.
func (c *Controller) Params() EnuParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Clone()
}

// Matrix returns the last composed placement matrix (local splat space to
// ECEF).
func (c *Controller) Matrix() geom.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matrix
}

// WorldAdjustmentMatrix returns the current pose as the conjugated
// ECEF-to-ECEF adjustment form.
func (c *Controller) WorldAdjustmentMatrix() (geom.Mat4, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composer.ComposeWorldAdjustment(c.anchor, c.params)
}

// Anchor returns the session's fixed anchor.
func (c *Controller) Anchor() Anchor {
	return c.anchor
}

// TiltLocked reports whether the leveling rotation is baked in.
func (c *Controller) TiltLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.TiltLocked
}

// RotationMode reports which composition path the current state uses.
func (c *Controller) RotationMode() RotationMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params.TiltLocked {
		return RotationTiltLockedYaw
	}
	return RotationThreeAxis
}

// Tracker exposes the session audit log.
func (c *Controller) Tracker() *Tracker {
	return c.tracker
}

// ResetTracker re-baselines the audit log at the current pose. Used after
// restoring a snapshot.
func (c *Controller) ResetTracker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.Reset(c.params)
}
