package georef

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/splatmaps/georef/internal/geom"
)

var testAnchor = Anchor{LatDeg: 34.19, LonDeg: -118.285, HeightM: 327}

func TestComposeDeterministic(t *testing.T) {
	c := NewComposer(nil)
	p := DefaultParams()
	p.Scale = 2
	p.YawRad = math.Pi / 12
	p.TEast = 1.5

	first, err := c.Compose(testAnchor, p)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	second, err := c.Compose(testAnchor, p)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	// Identical inputs against a warm cache must be bit-identical, not
	// merely close.
	if first != second {
		t.Errorf("recompose differs:\n%v\n%v", first, second)
	}
}

func TestComposeIdentityPlacesOriginAtAnchor(t *testing.T) {
	c := NewComposer(nil)

	m, err := c.Compose(testAnchor, DefaultParams())
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if got := m.Translation(); !vecClose(got, testAnchor.ECEF(), 1e-6) {
		t.Errorf("translation column = %v, want anchor ECEF %v", got, testAnchor.ECEF())
	}
	if got := m.Apply(r3.Vector{}); !vecClose(got, testAnchor.ECEF(), 1e-6) {
		t.Errorf("local origin maps to %v, want %v", got, testAnchor.ECEF())
	}
}

func TestComposeScaleLinearity(t *testing.T) {
	c := NewComposer(nil)

	unit := DefaultParams()
	scaled := DefaultParams()
	scaled.Scale = 2

	mUnit, err := c.Compose(testAnchor, unit)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	mScaled, err := c.Compose(testAnchor, scaled)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	// Doubling the scale doubles every direction, leaves the origin fixed.
	dirUnit := mUnit.ApplyDirection(r3.Vector{X: 1, Y: 2, Z: -0.5})
	dirScaled := mScaled.ApplyDirection(r3.Vector{X: 1, Y: 2, Z: -0.5})
	if !vecClose(dirScaled, dirUnit.Mul(2), 1e-9) {
		t.Errorf("scaled direction = %v, want %v", dirScaled, dirUnit.Mul(2))
	}
	if !vecClose(mScaled.Translation(), mUnit.Translation(), 1e-9) {
		t.Errorf("scale moved the origin: %v vs %v", mScaled.Translation(), mUnit.Translation())
	}
}

func TestComposeEndToEnd(t *testing.T) {
	c := NewComposer(nil)
	p := DefaultParams()
	p.Scale = 2
	p.YawRad = math.Pi / 12
	p.TEast = 3
	p.TNorth = -4
	p.TUp = 5

	m, err := c.Compose(testAnchor, p)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	// Manual composition through the frame: world = l2w(T + R*S*p).
	frame := c.Cache().Frame(testAnchor)
	local := r3.Vector{X: 1, Y: 0.5, Z: -0.25}
	rotated := geom.RotZ(p.YawRad).MulVec(local.Mul(p.Scale))
	inTangent := rotated.Add(r3.Vector{X: p.TEast, Y: p.TNorth, Z: p.TUp})
	want := frame.LocalToWorld.Apply(inTangent)

	if got := m.Apply(local); !vecClose(got, want, 1e-6) {
		t.Errorf("end-to-end point = %v, want %v", got, want)
	}
}

func TestComposeRejectsNonPositiveScale(t *testing.T) {
	c := NewComposer(nil)

	for _, scale := range []float64{0, -1} {
		p := DefaultParams()
		p.Scale = scale
		if _, err := c.Compose(testAnchor, p); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale %v: err = %v, want ErrInvalidScale", scale, err)
		}
		if _, err := c.ComposeWorldAdjustment(testAnchor, p); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale %v (world adjustment): err = %v, want ErrInvalidScale", scale, err)
		}
	}
}

func TestComposeWorldAdjustmentIdentity(t *testing.T) {
	c := NewComposer(nil)

	// With identity parameters the conjugated form collapses:
	// l2w * I * w2l = I.
	m, err := c.ComposeWorldAdjustment(testAnchor, DefaultParams())
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !mat4Close(m, geom.Identity4(), 1e-6) {
		t.Errorf("identity world adjustment = %v, want I", m)
	}
}

func TestComposeWorldAdjustmentFixesAnchor(t *testing.T) {
	c := NewComposer(nil)
	p := DefaultParams()
	p.YawRad = 0.4

	m, err := c.ComposeWorldAdjustment(testAnchor, p)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	// A pure rotation about the anchor leaves the anchor in place.
	ecef := testAnchor.ECEF()
	if got := m.Apply(ecef); !vecClose(got, ecef, 1e-5) {
		t.Errorf("anchor moved to %v, want %v", got, ecef)
	}
}

func TestRotationOrderIsFixed(t *testing.T) {
	p := DefaultParams()
	p.YawRad = 0.3
	p.PitchRad = -0.2
	p.RollRad = 0.1

	got := RotationFor(p, RotationThreeAxis)
	want := geom.RotZ(p.YawRad).Mul(geom.RotX(p.PitchRad)).Mul(geom.RotY(p.RollRad))

	if got != want {
		t.Errorf("three-axis rotation:\n%v\nwant\n%v", got, want)
	}
}

func TestModeOf(t *testing.T) {
	p := DefaultParams()
	if got := ModeOf(p); got != RotationThreeAxis {
		t.Errorf("unlocked mode = %v, want three_axis", got)
	}

	rot := geom.RotX(0.05)
	p.TiltLocked = true
	p.AlignRotation = &rot
	if got := ModeOf(p); got != RotationTiltLockedYaw {
		t.Errorf("locked mode = %v, want tilt_locked_yaw", got)
	}
}

func TestRotationForTiltLocked(t *testing.T) {
	rot := geom.RotX(0.05)
	p := DefaultParams()
	p.TiltLocked = true
	p.AlignRotation = &rot
	p.YawRad = 0.7
	// Residual pitch/roll must be ignored on the locked path.
	p.PitchRad = 1.0
	p.RollRad = -1.0

	got := RotationFor(p, RotationTiltLockedYaw)
	want := rot.Mul(geom.RotZ(p.YawRad))
	if got != want {
		t.Errorf("tilt-locked rotation:\n%v\nwant\n%v", got, want)
	}

	// Missing align rotation degrades to yaw only.
	p.AlignRotation = nil
	if got := RotationFor(p, RotationTiltLockedYaw); got != geom.RotZ(p.YawRad) {
		t.Errorf("fallback rotation = %v, want yaw only", got)
	}
}

func TestSharedCacheAcrossComposers(t *testing.T) {
	cache := NewFrameCache()
	a := NewComposer(cache)
	b := NewComposer(cache)

	if _, err := a.Compose(testAnchor, DefaultParams()); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if _, err := b.Compose(testAnchor, DefaultParams()); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("shared cache has %d entries, want 1", cache.Len())
	}
}
