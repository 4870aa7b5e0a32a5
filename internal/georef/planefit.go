package georef

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/splatmaps/georef/internal/geom"
)

// PlaneAlignment is the transient output of one ground plane fit: the
// estimated unit normal, the shortest-arc rotation leveling that normal
// onto the local Up axis, the equivalent rotation matrix, and pitch/roll
// angles for display only. The matrix, not the Euler pair, is what gets
// baked into the parameter state on lock.
type PlaneAlignment struct {
	Normal   r3.Vector
	Rotation geom.Quat
	Matrix   geom.Mat3

	// Display/telemetry angles; never fed back into composition.
	PitchRad float64
	RollRad  float64
}

// minPlanePoints is the smallest sample that defines a plane.
const minPlanePoints = 3

// EstimateGroundAlignment fits a plane through points sampled from a
// physically-flat ground surface (local splat coordinates) and returns the
// rotation that levels the surface.
//
// The normal is the minimum-variance direction of the centred samples,
// taken from the eigenvector of the smallest covariance eigenvalue. With
// real scanned data this is markedly more robust than a two-vector cross
// product, which is sensitive to outliers and point ordering.
func EstimateGroundAlignment(points []r3.Vector) (*PlaneAlignment, error) {
	if len(points) < minPlanePoints {
		return nil, fmt.Errorf("plane fit with %d points: %w", len(points), ErrInsufficientData)
	}

	normal, err := minimumVarianceNormal(points)
	if err != nil {
		return nil, err
	}

	// Sign-correct so the normal points skyward.
	if normal.Z < 0 {
		normal = normal.Mul(-1)
	}

	q := geom.QuatBetween(normal, LocalUp)
	pitch, roll := q.TiltAngles()

	return &PlaneAlignment{
		Normal:   normal,
		Rotation: q,
		Matrix:   q.Mat3(),
		PitchRad: pitch,
		RollRad:  roll,
	}, nil
}

// minimumVarianceNormal returns the unit eigenvector of the smallest
// eigenvalue of the sample covariance matrix.
func minimumVarianceNormal(points []r3.Vector) (r3.Vector, error) {
	n := float64(len(points))

	var centroid r3.Vector
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / n)

	var cxx, cxy, cxz, cyy, cyz, czz float64
	for _, p := range points {
		d := p.Sub(centroid)
		cxx += d.X * d.X
		cxy += d.X * d.Y
		cxz += d.X * d.Z
		cyy += d.Y * d.Y
		cyz += d.Y * d.Z
		czz += d.Z * d.Z
	}

	cov := mat.NewSymDense(3, []float64{
		cxx / n, cxy / n, cxz / n,
		cxy / n, cyy / n, cyz / n,
		cxz / n, cyz / n, czz / n,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return r3.Vector{}, fmt.Errorf("plane fit: covariance eigendecomposition failed: %w", ErrInsufficientData)
	}

	// EigenSym returns eigenvalues in ascending order; the first
	// eigenvector spans the minimum-variance direction.
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	normal := r3.Vector{
		X: vecs.At(0, 0),
		Y: vecs.At(1, 0),
		Z: vecs.At(2, 0),
	}

	if normal.Norm() == 0 {
		return r3.Vector{}, fmt.Errorf("plane fit: degenerate point set: %w", ErrInsufficientData)
	}
	return normal.Normalize(), nil
}
