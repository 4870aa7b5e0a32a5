package geom

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestQuatBetweenParallel(t *testing.T) {
	q := QuatBetween(r3.Vector{Z: 1}, r3.Vector{Z: 1})
	if q != IdentityQuat() {
		t.Errorf("parallel vectors: got %+v, want identity", q)
	}

	// Non-unit inputs are normalised first
	q = QuatBetween(r3.Vector{Z: 42}, r3.Vector{Z: 0.001})
	if q != IdentityQuat() {
		t.Errorf("parallel scaled vectors: got %+v, want identity", q)
	}
}

func TestQuatBetweenGeneral(t *testing.T) {
	tests := []struct {
		name     string
		from, to r3.Vector
	}{
		{"z to x", r3.Vector{Z: 1}, r3.Vector{X: 1}},
		{"tilted to up", r3.Vector{X: 0.3, Y: -0.1, Z: 0.9}, r3.Vector{Z: 1}},
		{"x to diagonal", r3.Vector{X: 1}, r3.Vector{X: 1, Y: 1, Z: 1}},
	}

	for _, tt := range tests {
		q := QuatBetween(tt.from, tt.to)
		got := q.Rotate(tt.from.Normalize())
		want := tt.to.Normalize()
		if !vecNear(got, want, 1e-12) {
			t.Errorf("%s: rotated %v, want %v", tt.name, got, want)
		}
	}
}

func TestQuatBetweenAntiparallel(t *testing.T) {
	// No unique shortest arc; the rotation must still map from onto to.
	from := r3.Vector{Z: 1}
	to := r3.Vector{Z: -1}

	q := QuatBetween(from, to)
	if got := q.Rotate(from); !vecNear(got, to, 1e-12) {
		t.Errorf("antiparallel: rotated %v, want %v", got, to)
	}
}

func TestQuatBetweenAntiparallelYAxis(t *testing.T) {
	// The fallback axis (0,1,0) is parallel to the input here, so the
	// secondary fallback about (1,0,0) must kick in.
	from := r3.Vector{Y: 1}
	to := r3.Vector{Y: -1}

	q := QuatBetween(from, to)
	if got := q.Rotate(from); !vecNear(got, to, 1e-12) {
		t.Errorf("antiparallel y: rotated %v, want %v", got, to)
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(r3.Vector{Z: 1}, math.Pi/2)
	got := q.Rotate(r3.Vector{X: 1})
	want := r3.Vector{Y: 1}
	if !vecNear(got, want, 1e-12) {
		t.Errorf("90° about Z: rotated %v, want %v", got, want)
	}

	if q := QuatFromAxisAngle(r3.Vector{}, 1.5); q != IdentityQuat() {
		t.Errorf("zero axis: got %+v, want identity", q)
	}
}

func TestQuatMat3IsRotation(t *testing.T) {
	q := QuatBetween(r3.Vector{X: 0.2, Y: 0.3, Z: 0.93}, r3.Vector{Z: 1})
	m := q.Mat3()

	if det := m.Det(); math.Abs(det-1) > 1e-12 {
		t.Errorf("det = %v, want 1", det)
	}
	if got := m.Mul(m.Transpose()); !mat3Near(got, Identity3(), 1e-12) {
		t.Errorf("m*m^T != I: got %v", got)
	}

	// Matrix and quaternion must agree
	v := r3.Vector{X: 1, Y: -2, Z: 0.5}
	if got, want := m.MulVec(v), q.Rotate(v); !vecNear(got, want, 1e-12) {
		t.Errorf("matrix path %v != quaternion path %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	q := Quat{W: 2, X: 0, Y: 0, Z: 0}.Normalize()
	if q != IdentityQuat() {
		t.Errorf("normalize (2,0,0,0): got %+v, want identity", q)
	}

	if q := (Quat{}).Normalize(); q != IdentityQuat() {
		t.Errorf("normalize zero: got %+v, want identity", q)
	}
}

func TestTiltAngles(t *testing.T) {
	const angle = 0.3

	aboutX, aboutY := QuatFromAxisAngle(r3.Vector{X: 1}, angle).TiltAngles()
	if math.Abs(aboutX-angle) > 1e-12 {
		t.Errorf("rotation about X: got aboutX=%v, want %v", aboutX, angle)
	}
	if math.Abs(aboutY) > 1e-12 {
		t.Errorf("rotation about X: got aboutY=%v, want 0", aboutY)
	}

	aboutX, aboutY = QuatFromAxisAngle(r3.Vector{Y: 1}, angle).TiltAngles()
	if math.Abs(aboutY-angle) > 1e-12 {
		t.Errorf("rotation about Y: got aboutY=%v, want %v", aboutY, angle)
	}
	if math.Abs(aboutX) > 1e-12 {
		t.Errorf("rotation about Y: got aboutX=%v, want 0", aboutX)
	}
}
