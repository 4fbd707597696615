package interpolation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/pkg/volume"
)

// linearGrid builds a grid whose value is a linear function of the index,
// which trilinear interpolation reproduces exactly.
func linearGrid(t *testing.T, dims volume.Dims, opts ...volume.Option) *volume.Grid {
	t.Helper()
	data := make([]float64, dims.Len())
	for k := 0; k < dims.NZ; k++ {
		for j := 0; j < dims.NY; j++ {
			for i := 0; i < dims.NX; i++ {
				data[dims.Index(i, j, k)] = float64(i) + 10*float64(j) + 100*float64(k)
			}
		}
	}
	g, err := volume.NewGrid(dims, data, opts...)
	require.NoError(t, err)
	return g
}

func TestTrilinearExactOnLinearField(t *testing.T) {
	g := linearGrid(t, volume.Dims{NX: 5, NY: 4, NZ: 3})
	s := NewTrilinear(g, SentinelMin())

	tests := []r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 4, Y: 3, Z: 2},
		{X: 1.25, Y: 2.5, Z: 0.75},
		{X: 3.9, Y: 0.1, Z: 1.999},
	}
	for _, p := range tests {
		v, ok := s.Sample(p)
		require.True(t, ok, "point %v should be inside", p)
		assert.InDelta(t, p.X+10*p.Y+100*p.Z, v, 1e-9)
	}
}

func TestTrilinearCornerValues(t *testing.T) {
	g := linearGrid(t, volume.Dims{NX: 3, NY: 3, NZ: 3})
	s := NewTrilinear(g, SentinelMin())
	for k := 0; k < 3; k++ {
		for j := 0; j < 3; j++ {
			for i := 0; i < 3; i++ {
				v, ok := s.SampleIndex(r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)})
				require.True(t, ok)
				assert.Equal(t, g.At(i, j, k), v)
			}
		}
	}
}

func TestTrilinearOutOfBoundsSentinel(t *testing.T) {
	g := linearGrid(t, volume.Dims{NX: 3, NY: 3, NZ: 3})

	v, ok := NewTrilinear(g, SentinelMin()).Sample(r3.Vec{X: -0.5})
	assert.False(t, ok)
	assert.Equal(t, g.Min(), v)

	v, ok = NewTrilinear(g, SentinelValue(-1000)).Sample(r3.Vec{X: 1, Y: 1, Z: 2.5})
	assert.False(t, ok)
	assert.Equal(t, -1000.0, v)

	v, ok = NewTrilinear(g, SentinelNaN()).Sample(r3.Vec{Y: 7})
	assert.False(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestTrilinearWorldTransform(t *testing.T) {
	g := linearGrid(t, volume.Dims{NX: 4, NY: 4, NZ: 4},
		volume.WithSpacing(2, 2, 2), volume.WithOrigin(r3.Vec{X: 10, Y: 20, Z: 30}))
	s := NewTrilinear(g, SentinelMin())

	v, ok := s.Sample(r3.Vec{X: 13, Y: 20, Z: 30})
	require.True(t, ok)
	assert.InDelta(t, 1.5, v, 1e-9)

	_, ok = s.Sample(r3.Vec{X: 9.9, Y: 20, Z: 30})
	assert.False(t, ok)
}

func TestTrilinearSingleSliceAxis(t *testing.T) {
	g := linearGrid(t, volume.Dims{NX: 3, NY: 3, NZ: 1})
	s := NewTrilinear(g, SentinelMin())
	v, ok := s.SampleIndex(r3.Vec{X: 0.5, Y: 0.5})
	require.True(t, ok)
	assert.InDelta(t, 5.5, v, 1e-12)
	_, ok = s.SampleIndex(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	assert.False(t, ok)
}

func TestFitCurveDegenerate(t *testing.T) {
	for _, pts := range [][]r3.Vec{nil, {{X: 1}}} {
		_, err := FitCurve(pts, 10)
		var de *DegenerateCurveError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, len(pts), de.Points)
	}
}

func TestFitCurveTwoPointsIsStraight(t *testing.T) {
	a, b := r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 5, Y: 2, Z: 6}
	c, err := FitCurve([]r3.Vec{a, b}, 50)
	require.NoError(t, err)
	require.Len(t, c.Points, 50)
	assert.True(t, c.Straight)
	assert.InDelta(t, 5.0, c.Length, 1e-12)
	assert.Equal(t, a, c.Points[0])
	assert.Equal(t, b, c.Points[49])
	for _, tan := range c.Tangents {
		assert.Equal(t, c.Tangents[0], tan)
	}
	assert.InDelta(t, 0.8, c.Tangents[0].X, 1e-12)
	assert.InDelta(t, 0.6, c.Tangents[0].Z, 1e-12)
}

func TestFitCurveCollinearAndDuplicates(t *testing.T) {
	pts := []r3.Vec{{X: 0}, {X: 0}, {X: 1}, {X: 1 + 1e-12}, {X: 3}, {X: 4}}
	c, err := FitCurve(pts, 20)
	require.NoError(t, err)
	assert.True(t, c.Straight)
	assert.InDelta(t, 4.0, c.Length, 1e-9)
	for _, tan := range c.Tangents {
		assert.InDelta(t, 1.0, tan.X, 1e-12)
	}
}

func TestFitCurveCollinearDoublingBack(t *testing.T) {
	c, err := FitCurve([]r3.Vec{{X: 0}, {X: 10}, {X: 5}}, 11)
	require.NoError(t, err)
	assert.True(t, c.Straight)
	assert.InDelta(t, 10.0, c.Length, 1e-12)
	assert.Equal(t, r3.Vec{X: 0}, c.Points[0])
	assert.Equal(t, r3.Vec{X: 10}, c.Points[10])

	// Extent behind the first point, path heading towards -X overall.
	c, err = FitCurve([]r3.Vec{{X: 5}, {X: 8}, {X: -2}}, 11)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, c.Length, 1e-12)
	assert.Equal(t, r3.Vec{X: 8}, c.Points[0])
	assert.Equal(t, r3.Vec{X: -2}, c.Points[10])
	assert.InDelta(t, -1.0, c.Tangents[0].X, 1e-12)
}

func TestFitCurveCoincidentPoints(t *testing.T) {
	p := r3.Vec{X: 2, Y: 2, Z: 2}
	c, err := FitCurve([]r3.Vec{p, p, p}, 5)
	require.NoError(t, err)
	assert.Zero(t, c.Length)
	for i := range c.Points {
		assert.Equal(t, p, c.Points[i])
		assert.InDelta(t, 1.0, r3.Norm(c.Tangents[i]), 1e-12)
	}
}

func TestFitCurveQuarterCircle(t *testing.T) {
	const r = 10.0
	var pts []r3.Vec
	for i := 0; i < 4; i++ {
		a := math.Pi / 2 * float64(i) / 3
		pts = append(pts, r3.Vec{X: r * math.Cos(a), Y: r * math.Sin(a)})
	}
	c, err := FitCurve(pts, 200)
	require.NoError(t, err)
	require.Len(t, c.Points, 200)
	assert.False(t, c.Straight)
	assert.InDelta(t, pts[0].X, c.Points[0].X, 1e-9)
	assert.InDelta(t, pts[0].Y, c.Points[0].Y, 1e-9)
	assert.InDelta(t, pts[3].X, c.Points[199].X, 1e-9)
	assert.InDelta(t, pts[3].Y, c.Points[199].Y, 1e-9)

	// Arc length of a quarter circle, loosely: the cubic is not a circle.
	assert.InDelta(t, math.Pi*r/2, c.Length, 0.5)

	// Samples are evenly spaced by arclength.
	step := c.Length / 199
	for i := 1; i < len(c.Points); i++ {
		d := r3.Norm(r3.Sub(c.Points[i], c.Points[i-1]))
		assert.InDelta(t, step, d, step*0.05)
	}
	for i, tan := range c.Tangents {
		assert.InDelta(t, 1.0, r3.Norm(tan), 1e-9, "tangent %d", i)
		assert.InDelta(t, 0.0, tan.Z, 1e-12)
	}
	// Starting tangent heads roughly along +Y, final along -X.
	assert.Greater(t, c.Tangents[0].Y, 0.9)
	assert.Less(t, c.Tangents[199].X, -0.9)
}

func TestAdaptiveSampleCount(t *testing.T) {
	assert.Equal(t, 200, AdaptiveSampleCount(0))
	assert.Equal(t, 250, AdaptiveSampleCount(125))
	assert.Equal(t, 300, AdaptiveSampleCount(1000))

	c, err := FitCurve([]r3.Vec{{}, {X: 125}}, 0)
	require.NoError(t, err)
	assert.Len(t, c.Points, 250)
}
