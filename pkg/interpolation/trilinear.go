// Package interpolation provides the continuous samplers used by the
// reformation engine: trilinear resampling of a volume grid and smooth
// curve fitting through control points.
package interpolation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/pkg/volume"
)

// boundsEpsilon absorbs round-off from the world-to-index transform at the
// grid faces.
const boundsEpsilon = 1e-9

type sentinelKind int

const (
	sentinelMin sentinelKind = iota
	sentinelValue
	sentinelNaN
)

// SentinelPolicy decides the value returned for points outside the grid.
type SentinelPolicy struct {
	kind  sentinelKind
	value float64
}

// SentinelMin returns the grid minimum for out-of-bounds points. It is the
// zero value of SentinelPolicy.
func SentinelMin() SentinelPolicy { return SentinelPolicy{kind: sentinelMin} }

// SentinelValue returns v for out-of-bounds points.
func SentinelValue(v float64) SentinelPolicy { return SentinelPolicy{kind: sentinelValue, value: v} }

// SentinelNaN returns NaN for out-of-bounds points.
func SentinelNaN() SentinelPolicy { return SentinelPolicy{kind: sentinelNaN} }

func (p SentinelPolicy) resolve(g *volume.Grid) float64 {
	switch p.kind {
	case sentinelValue:
		return p.value
	case sentinelNaN:
		return math.NaN()
	default:
		return g.Min()
	}
}

// Trilinear samples a grid at arbitrary world positions. It holds no
// mutable state and may be shared between goroutines.
type Trilinear struct {
	grid     *volume.Grid
	geom     volume.Geometry
	sentinel float64
}

// NewTrilinear returns a sampler over g.
func NewTrilinear(g *volume.Grid, policy SentinelPolicy) *Trilinear {
	return &Trilinear{grid: g, geom: g.Geometry(), sentinel: policy.resolve(g)}
}

// Sentinel is the value reported for out-of-bounds points.
func (t *Trilinear) Sentinel() float64 { return t.sentinel }

// Sample interpolates the grid at world position w. The second result is
// false, and the value is the sentinel, when w lies outside the grid.
func (t *Trilinear) Sample(w r3.Vec) (float64, bool) {
	return t.SampleIndex(t.geom.WorldToIndex(w))
}

// SampleIndex interpolates at a continuous voxel index.
func (t *Trilinear) SampleIndex(ci r3.Vec) (float64, bool) {
	d := t.geom.Dims
	x0, x1, fx, ok := cell(ci.X, d.NX)
	if !ok {
		return t.sentinel, false
	}
	y0, y1, fy, ok := cell(ci.Y, d.NY)
	if !ok {
		return t.sentinel, false
	}
	z0, z1, fz, ok := cell(ci.Z, d.NZ)
	if !ok {
		return t.sentinel, false
	}

	g := t.grid
	c00 := lerp(g.At(x0, y0, z0), g.At(x1, y0, z0), fx)
	c10 := lerp(g.At(x0, y1, z0), g.At(x1, y1, z0), fx)
	c01 := lerp(g.At(x0, y0, z1), g.At(x1, y0, z1), fx)
	c11 := lerp(g.At(x0, y1, z1), g.At(x1, y1, z1), fx)

	c0 := lerp(c00, c10, fy)
	c1 := lerp(c01, c11, fy)
	return lerp(c0, c1, fz), true
}

// cell locates the lattice interval enclosing x on an axis of n samples.
func cell(x float64, n int) (i0, i1 int, f float64, ok bool) {
	if math.IsNaN(x) || x < -boundsEpsilon || x > float64(n-1)+boundsEpsilon {
		return 0, 0, 0, false
	}
	if n == 1 {
		return 0, 0, 0, true
	}
	x = math.Min(math.Max(x, 0), float64(n-1))
	i0 = int(math.Floor(x))
	if i0 >= n-1 {
		i0 = n - 2
	}
	return i0, i0 + 1, x - float64(i0), true
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}
