package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"volgeom/internal/models"
	"volgeom/pkg/volume"
)

func TestKernelNormalised(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 2.5} {
		k := Kernel(sigma, DefaultRadius(sigma))
		assert.InDelta(t, 1.0, floats.Sum(k), 1e-12)
		// Symmetric and peaked in the middle.
		r := len(k) / 2
		for i := 0; i < r; i++ {
			assert.InDelta(t, k[i], k[len(k)-1-i], 1e-15)
			assert.Less(t, k[i], k[i+1])
		}
	}
}

func TestDefaultRadius(t *testing.T) {
	assert.Equal(t, 2, DefaultRadius(1.0))
	assert.Equal(t, 1, DefaultRadius(0.5))
	assert.Equal(t, 3, DefaultRadius(1.5))
	assert.Equal(t, 1, DefaultRadius(0.1))
}

func TestGaussianZeroSigmaIsIdentity(t *testing.T) {
	b := models.NewBinary(volume.Dims{NX: 3, NY: 3, NZ: 3})
	b.Data[13] = true
	f := Gaussian(b, 0, 0)
	for i, v := range f.Data {
		if i == 13 {
			assert.Equal(t, 1.0, v)
		} else {
			assert.Zero(t, v)
		}
	}
}

func TestGaussianUniformFieldUnchanged(t *testing.T) {
	b := models.NewBinary(volume.Dims{NX: 5, NY: 4, NZ: 3})
	for i := range b.Data {
		b.Data[i] = true
	}
	f := Gaussian(b, 1.0, 0)
	for _, v := range f.Data {
		assert.InDelta(t, 1.0, v, 1e-12)
	}
}

func TestGaussianConservesMassAwayFromBorder(t *testing.T) {
	d := volume.Dims{NX: 11, NY: 11, NZ: 11}
	b := models.NewBinary(d)
	b.Data[d.Index(5, 5, 5)] = true
	f := Gaussian(b, 1.0, 0)
	require.Len(t, f.Data, d.Len())

	assert.InDelta(t, 1.0, floats.Sum(f.Data), 1e-12)
	peak := f.At(5, 5, 5)
	assert.Equal(t, peak, floats.Max(f.Data))
	// Separable kernel: the value depends only on the offsets.
	assert.InDelta(t, f.At(4, 5, 5), f.At(5, 6, 5), 1e-15)
	assert.InDelta(t, f.At(4, 5, 5), f.At(5, 5, 4), 1e-15)
	assert.Zero(t, f.At(5, 5, 8))
}

func TestGaussianSingleSliceAxisIsSkipped(t *testing.T) {
	d := volume.Dims{NX: 7, NY: 7, NZ: 1}
	b := models.NewBinary(d)
	b.Data[d.Index(3, 3, 0)] = true
	f := Gaussian(b, 1.0, 0)
	assert.InDelta(t, 1.0, floats.Sum(f.Data), 1e-12)
}
