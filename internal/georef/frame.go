package georef

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/splatmaps/georef/internal/geom"
)

// LocalFrame is the memoised pair of basis-change matrices for one anchor:
// LocalToWorld maps ENU tangent-frame coordinates to ECEF and WorldToLocal
// is its rigid inverse. Both are pure functions of the anchor, so a cached
// pair is never recomputed or updated after insertion.
type LocalFrame struct {
	LocalToWorld geom.Mat4
	WorldToLocal geom.Mat4
}

// enuBasis returns the ENU rotation at the anchor: columns are the east,
// north and up unit vectors expressed in ECEF.
func enuBasis(a Anchor) geom.Mat3 {
	lat := a.LatDeg * math.Pi / 180
	lon := a.LonDeg * math.Pi / 180

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// Row-major with east/north/up as columns.
	return geom.Mat3{
		-sinLon, -sinLat * cosLon, cosLat * cosLon,
		cosLon, -sinLat * sinLon, cosLat * sinLon,
		0, cosLat, sinLat,
	}
}

// buildLocalFrame computes the tangent-frame pair for an anchor.
func buildLocalFrame(a Anchor) LocalFrame {
	basis := enuBasis(a)
	l2w := geom.RigidTransform(basis, a.ECEF())
	return LocalFrame{
		LocalToWorld: l2w,
		WorldToLocal: l2w.RigidInverse(),
	}
}

// FrameCache memoises local frames per anchor fingerprint. Entries are
// immutable once inserted and the cache never evicts; Clear exists so
// independent sessions and tests do not leak state into each other.
//
// The single-session path is synchronous, but the cache still takes a
// mutex so a multi-session server can share one composer: reads are
// lock-free-equivalent (read under lock, insert-only writes, no
// update-after-insert).
type FrameCache struct {
	mu     sync.Mutex
	frames map[AnchorKey]LocalFrame
}

// NewFrameCache returns an empty frame cache.
func NewFrameCache() *FrameCache {
	return &FrameCache{frames: make(map[AnchorKey]LocalFrame)}
}

// Frame returns the cached local frame for the anchor, building and
// inserting it on first use.
func (c *FrameCache) Frame(a Anchor) LocalFrame {
	key := a.Key()

	c.mu.Lock()
	if f, ok := c.frames[key]; ok {
		c.mu.Unlock()
		return f
	}
	c.mu.Unlock()

	f := buildLocalFrame(a)

	c.mu.Lock()
	// Another caller may have raced the build; keep the first insert so a
	// fixed key always maps to one matrix pair.
	if existing, ok := c.frames[key]; ok {
		f = existing
	} else {
		c.frames[key] = f
	}
	c.mu.Unlock()
	return f
}

// Len returns the number of cached anchors.
func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Clear drops every cached frame.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = make(map[AnchorKey]LocalFrame)
}

// LocalUp is the canonical up direction of the tangent frame.
var LocalUp = r3.Vector{Z: 1}
