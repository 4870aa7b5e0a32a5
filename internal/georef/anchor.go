// Package georef implements the coordinate-frame composition and
// calibration core that places a locally-scanned splat reconstruction onto
// an Earth-fixed globe: the ENU placement composer, the plane-fit tilt
// estimator, the road-width/imaging scale calibrators, the alignment
// controller that mediates every parameter mutation, and the adjustment
// audit tracker.
package georef

import (
	"math"

	"github.com/golang/geo/r3"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84SemiMajorM = 6378137.0
	wgs84Flattening = 1.0 / 298.257223563
	wgs84Ecc2       = wgs84Flattening * (2 - wgs84Flattening)
)

// Anchor is the geodetic point defining the origin of a splat's local
// East-North-Up tangent frame. It is immutable for the lifetime of an
// alignment session; re-anchoring means starting a new session.
type Anchor struct {
	LatDeg  float64 `json:"lat_deg"`
	LonDeg  float64 `json:"lon_deg"`
	HeightM float64 `json:"height_m"` // above the WGS-84 ellipsoid
}

// Valid reports whether the anchor is inside the geodetic domain.
func (a Anchor) Valid() bool {
	return a.LatDeg >= -90 && a.LatDeg <= 90 &&
		a.LonDeg >= -180 && a.LonDeg <= 180 &&
		!math.IsNaN(a.HeightM) && !math.IsInf(a.HeightM, 0)
}

// ECEF converts the anchor to Earth-Centered Earth-Fixed Cartesian metres.
func (a Anchor) ECEF() r3.Vector {
	lat := a.LatDeg * math.Pi / 180
	lon := a.LonDeg * math.Pi / 180

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84SemiMajorM / math.Sqrt(1-wgs84Ecc2*sinLat*sinLat)

	return r3.Vector{
		X: (n + a.HeightM) * cosLat * cosLon,
		Y: (n + a.HeightM) * cosLat * sinLon,
		Z: (n*(1-wgs84Ecc2) + a.HeightM) * sinLat,
	}
}

// AnchorKey is the frame-cache fingerprint for an anchor: latitude and
// longitude rounded to 1e-7 degrees (about a centimetre on the ground) and
// height rounded to the centimetre. A struct key avoids the locale and
// precision pitfalls of formatted-string keys.
type AnchorKey struct {
	LatE7    int64
	LonE7    int64
	HeightCm int64
}

// Key returns the cache fingerprint for the anchor.
func (a Anchor) Key() AnchorKey {
	return AnchorKey{
		LatE7:    int64(math.Round(a.LatDeg * 1e7)),
		LonE7:    int64(math.Round(a.LonDeg * 1e7)),
		HeightCm: int64(math.Round(a.HeightM * 100)),
	}
}
