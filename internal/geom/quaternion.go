package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// parallelDotThreshold is the |dot| beyond which two unit vectors are
// treated as parallel (or antiparallel) when building a shortest-arc
// rotation. Matches the tolerance the renderer-side maths uses.
const parallelDotThreshold = 0.999999

// Quat is a unit quaternion W + Xi + Yj + Zk representing a rotation.
type Quat struct {
	W, X, Y, Z float64
}

// IdentityQuat returns the identity rotation.
func IdentityQuat() Quat {
	return Quat{W: 1}
}

// QuatFromAxisAngle builds the rotation of angle radians about axis. The
// axis is normalised internally; a zero axis yields the identity.
func QuatFromAxisAngle(axis r3.Vector, angle float64) Quat {
	n := axis.Norm()
	if n == 0 {
		return IdentityQuat()
	}
	half := angle / 2
	s := math.Sin(half) / n
	return Quat{
		W: math.Cos(half),
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
	}
}

// QuatBetween returns the shortest-arc rotation taking unit vector from
// onto unit vector to.
//
// Parallel inputs yield the identity. Antiparallel inputs have no unique
// shortest arc; a 180 degree rotation is built about (0,1,0), or (1,0,0)
// when the input is nearly parallel to (0,1,0). Skipping that branch would
// produce a degenerate zero rotation.
func QuatBetween(from, to r3.Vector) Quat {
	f := from.Normalize()
	t := to.Normalize()
	d := f.Dot(t)

	if d > parallelDotThreshold {
		return IdentityQuat()
	}
	if d < -parallelDotThreshold {
		axis := r3.Vector{Y: 1}
		if math.Abs(f.Y) > parallelDotThreshold {
			axis = r3.Vector{X: 1}
		}
		// Any axis orthogonal to f works; project out the parallel part.
		ortho := axis.Sub(f.Mul(axis.Dot(f)))
		return QuatFromAxisAngle(ortho, math.Pi)
	}

	cross := f.Cross(t)
	q := Quat{
		W: 1 + d,
		X: cross.X,
		Y: cross.Y,
		Z: cross.Z,
	}
	return q.Normalize()
}

// Normalize returns the unit quaternion with the same orientation. A
// near-zero quaternion normalises to the identity.
func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n < 1e-12 {
		return IdentityQuat()
	}
	return Quat{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Mat3 converts the quaternion to its rotation matrix. The receiver must be
// a unit quaternion.
func (q Quat) Mat3() Mat3 {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z

	return Mat3{
		1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy),
		2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx),
		2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy),
	}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v r3.Vector) r3.Vector {
	return q.Mat3().MulVec(v)
}

// TiltAngles extracts the rotation angles about the X and Y axes for
// display. The decomposition assumes a tilt-only rotation (negligible Z
// component, as produced by QuatBetween against the up axis); it is never
// fed back into transform composition, which uses the matrix form directly.
func (q Quat) TiltAngles() (aboutX, aboutY float64) {
	// Standard quaternion -> XYZ Euler extraction, X then Y terms only.
	sinX := 2 * (q.W*q.X + q.Y*q.Z)
	cosX := 1 - 2*(q.X*q.X+q.Y*q.Y)
	aboutX = math.Atan2(sinX, cosX)

	sinY := 2 * (q.W*q.Y - q.Z*q.X)
	if sinY > 1 {
		sinY = 1
	} else if sinY < -1 {
		sinY = -1
	}
	aboutY = math.Asin(sinY)
	return aboutX, aboutY
}
