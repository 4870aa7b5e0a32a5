// Package geom provides the small fixed-size linear algebra kernel used by
// the georeferencing core: row-major 3x3 and 4x4 matrices and unit
// quaternions. Vectors are github.com/golang/geo/r3 vectors throughout.
package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Mat3 is a row-major 3x3 matrix: m[0..2] is the first row.
type Mat3 [9]float64

// Mat4 is a row-major 4x4 homogeneous transform:
// m00,m01,m02,m03, m10,... (same layout the point pipeline uses).
type Mat4 [16]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Identity4 returns the 4x4 identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// RotX returns the rotation by angle radians about the X axis.
func RotX(angle float64) Mat3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}

// RotY returns the rotation by angle radians about the Y axis.
func RotY(angle float64) Mat3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat3{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	}
}

// RotZ returns the rotation by angle radians about the Z axis.
func RotZ(angle float64) Mat3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}

// Mul returns a*b.
func (a Mat3) Mul(b Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = a[i*3+0]*b[0*3+j] + a[i*3+1]*b[1*3+j] + a[i*3+2]*b[2*3+j]
		}
	}
	return out
}

// MulVec applies the matrix to v.
func (a Mat3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a[0]*v.X + a[1]*v.Y + a[2]*v.Z,
		Y: a[3]*v.X + a[4]*v.Y + a[5]*v.Z,
		Z: a[6]*v.X + a[7]*v.Y + a[8]*v.Z,
	}
}

// Transpose returns the transpose of a. For pure rotations this is the
// inverse.
func (a Mat3) Transpose() Mat3 {
	return Mat3{
		a[0], a[3], a[6],
		a[1], a[4], a[7],
		a[2], a[5], a[8],
	}
}

// Det returns the determinant of a.
func (a Mat3) Det() float64 {
	return a[0]*(a[4]*a[8]-a[5]*a[7]) -
		a[1]*(a[3]*a[8]-a[5]*a[6]) +
		a[2]*(a[3]*a[7]-a[4]*a[6])
}

// Scale returns a with every element multiplied by s.
func (a Mat3) Scale(s float64) Mat3 {
	var out Mat3
	for i := range a {
		out[i] = a[i] * s
	}
	return out
}

// Mat4 lifts the 3x3 matrix into a homogeneous transform with zero
// translation.
func (a Mat3) Mat4() Mat4 {
	return Mat4{
		a[0], a[1], a[2], 0,
		a[3], a[4], a[5], 0,
		a[6], a[7], a[8], 0,
		0, 0, 0, 1,
	}
}

// Mul returns a*b.
func (a Mat4) Mul(b Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = a[i*4+0]*b[0*4+j] + a[i*4+1]*b[1*4+j] +
				a[i*4+2]*b[2*4+j] + a[i*4+3]*b[3*4+j]
		}
	}
	return out
}

// Apply transforms the point v (w=1).
func (a Mat4) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a[0]*v.X + a[1]*v.Y + a[2]*v.Z + a[3],
		Y: a[4]*v.X + a[5]*v.Y + a[6]*v.Z + a[7],
		Z: a[8]*v.X + a[9]*v.Y + a[10]*v.Z + a[11],
	}
}

// ApplyDirection transforms the direction v (w=0), ignoring translation.
func (a Mat4) ApplyDirection(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a[0]*v.X + a[1]*v.Y + a[2]*v.Z,
		Y: a[4]*v.X + a[5]*v.Y + a[6]*v.Z,
		Z: a[8]*v.X + a[9]*v.Y + a[10]*v.Z,
	}
}

// Translation returns the translation column of the transform.
func (a Mat4) Translation() r3.Vector {
	return r3.Vector{X: a[3], Y: a[7], Z: a[11]}
}

// Rotation returns the upper-left 3x3 block. For a transform built from
// rotation and uniform scale this block carries both.
func (a Mat4) Rotation() Mat3 {
	return Mat3{
		a[0], a[1], a[2],
		a[4], a[5], a[6],
		a[8], a[9], a[10],
	}
}

// ComposeTRS builds translation * rotation * uniform-scale in a single
// 4x4 matrix.
func ComposeTRS(t r3.Vector, r Mat3, scale float64) Mat4 {
	return Mat4{
		r[0] * scale, r[1] * scale, r[2] * scale, t.X,
		r[3] * scale, r[4] * scale, r[5] * scale, t.Y,
		r[6] * scale, r[7] * scale, r[8] * scale, t.Z,
		0, 0, 0, 1,
	}
}

// RigidTransform builds a 4x4 transform from a rotation and a translation.
func RigidTransform(r Mat3, t r3.Vector) Mat4 {
	return Mat4{
		r[0], r[1], r[2], t.X,
		r[3], r[4], r[5], t.Y,
		r[6], r[7], r[8], t.Z,
		0, 0, 0, 1,
	}
}

// RigidInverse inverts a rotation+translation transform without a general
// 4x4 inversion: inverse rotation is the transpose and the translation
// becomes -R^T * t. Only valid when the rotation block is orthonormal.
func (a Mat4) RigidInverse() Mat4 {
	rt := a.Rotation().Transpose()
	t := a.Translation()
	it := rt.MulVec(r3.Vector{X: -t.X, Y: -t.Y, Z: -t.Z})
	return RigidTransform(rt, it)
}
