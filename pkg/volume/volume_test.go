package volume

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDimsIndexRoundTrip(t *testing.T) {
	d := Dims{NX: 4, NY: 3, NZ: 5}
	for idx := 0; idx < d.Len(); idx++ {
		i, j, k := d.Coords(idx)
		assert.Equal(t, idx, d.Index(i, j, k))
		assert.True(t, d.Contains(i, j, k))
	}
	assert.False(t, d.Contains(4, 0, 0))
	assert.False(t, d.Contains(0, -1, 0))
}

func TestNewGridValidation(t *testing.T) {
	_, err := NewGrid(Dims{2, 2, 2}, make([]float64, 7))
	require.Error(t, err)

	_, err = NewGrid(Dims{2, 2, 2}, make([]float64, 8), WithSpacing(1, 0, 1))
	require.Error(t, err)

	singular := [3][3]float64{{1, 0, 0}, {1, 0, 0}, {0, 0, 1}}
	_, err = NewGrid(Dims{2, 2, 2}, make([]float64, 8), WithDirection(singular))
	require.Error(t, err)
}

func TestGridMinMax(t *testing.T) {
	g, err := NewGrid(Dims{2, 1, 1}, []float64{-3, 7})
	require.NoError(t, err)
	assert.Equal(t, -3.0, g.Min())
	assert.Equal(t, 7.0, g.Max())
	assert.Equal(t, 7.0, g.At(1, 0, 0))
}

func TestGeometryRoundTrip(t *testing.T) {
	c, s := math.Cos(0.3), math.Sin(0.3)
	rot := [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
	geom, err := NewGeometry(Dims{10, 10, 10}, [3]float64{0.5, 2, 1.25}, r3.Vec{X: -4, Y: 1, Z: 9}, rot)
	require.NoError(t, err)

	ci := r3.Vec{X: 3.25, Y: 7.5, Z: 1.75}
	back := geom.WorldToIndex(geom.IndexToWorld(ci))
	assert.InDelta(t, ci.X, back.X, 1e-9)
	assert.InDelta(t, ci.Y, back.Y, 1e-9)
	assert.InDelta(t, ci.Z, back.Z, 1e-9)
	assert.InDelta(t, 0.5*2*1.25, geom.VoxelVolume(), 1e-12)

	origin := geom.IndexToWorld(r3.Vec{})
	assert.Equal(t, r3.Vec{X: -4, Y: 1, Z: 9}, origin)
}

func TestLabelMaskLabels(t *testing.T) {
	m, err := NewLabelMask(Dims{3, 2, 1}, []int32{0, 4, 2, 2, 0, 4})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 4}, m.Labels())
	assert.Equal(t, 2, m.Count(4))
	assert.Equal(t, 0, m.Count(9))
}

func TestCheckCompatible(t *testing.T) {
	g, err := NewGrid(Dims{2, 2, 2}, make([]float64, 8), WithSpacing(1, 1, 2))
	require.NoError(t, err)

	ok, err := NewLabelMask(Dims{2, 2, 2}, make([]int32, 8), WithSpacing(1, 1, 2))
	require.NoError(t, err)
	assert.NoError(t, CheckCompatible(g, ok))

	shape, err := NewLabelMask(Dims{2, 2, 3}, make([]int32, 12), WithSpacing(1, 1, 2))
	require.NoError(t, err)
	var dm *DimensionMismatchError
	require.True(t, errors.As(CheckCompatible(g, shape), &dm))
	assert.Equal(t, Dims{2, 2, 3}, dm.MaskDims)

	spacing, err := NewLabelMask(Dims{2, 2, 2}, make([]int32, 8))
	require.NoError(t, err)
	err = CheckCompatible(g, spacing)
	require.True(t, errors.As(err, &dm))
	assert.Contains(t, err.Error(), "spacing")
}

func TestCheckSameHeader(t *testing.T) {
	ref, err := NewLabelMask(Dims{2, 2, 2}, make([]int32, 8))
	require.NoError(t, err)

	near, err := NewLabelMask(Dims{2, 2, 2}, make([]int32, 8), WithSpacing(1, 1, 1+1e-9))
	require.NoError(t, err)
	assert.NoError(t, CheckSameHeader(ref, near))

	far, err := NewLabelMask(Dims{2, 2, 2}, make([]int32, 8), WithSpacing(1, 1, 3))
	require.NoError(t, err)
	var dm *DimensionMismatchError
	require.ErrorAs(t, CheckSameHeader(ref, far), &dm)
	assert.Equal(t, [3]float64{1, 1, 1}, dm.GridSpacing)

	assert.Error(t, CheckSameHeader(ref, nil))
}
