// Package filter smooths binary voxel regions into continuous fields.
package filter

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"volgeom/internal/models"
)

// RadiusFactor scales sigma into the default kernel half-width.
const RadiusFactor = 1.5

// DefaultRadius returns ceil(RadiusFactor*sigma), at least 1.
func DefaultRadius(sigma float64) int {
	r := int(math.Ceil(RadiusFactor * sigma))
	if r < 1 {
		r = 1
	}
	return r
}

// Kernel returns the normalised 1D Gaussian of half-width radius.
func Kernel(sigma float64, radius int) []float64 {
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// Gaussian blurs b with a separable Gaussian of standard deviation sigma
// voxels. Borders replicate the edge voxel. radius <= 0 selects
// DefaultRadius(sigma); sigma <= 0 returns the field as 0/1 values.
func Gaussian(b *models.Binary, sigma float64, radius int) *models.Field {
	f := models.FromBinary(b)
	if sigma <= 0 {
		return f
	}
	if radius <= 0 {
		radius = DefaultRadius(sigma)
	}
	k := Kernel(sigma, radius)

	d := f.Dims
	tmp := make([]float64, len(f.Data))
	strides := [3]int{1, d.NX, d.NX * d.NY}
	sizes := [3]int{d.NX, d.NY, d.NZ}
	for axis := 0; axis < 3; axis++ {
		if sizes[axis] == 1 {
			continue
		}
		convolve(f.Data, tmp, k, radius, sizes[axis], strides[axis])
		f.Data, tmp = tmp, f.Data
	}
	return f
}

// convolve filters src into dst along one axis. n is the axis length and
// stride the index step between neighbours on that axis.
func convolve(src, dst, k []float64, radius, n, stride int) {
	for idx := range src {
		pos := (idx / stride) % n
		base := idx - pos*stride
		sum := 0.0
		for t, w := range k {
			p := pos + t - radius
			if p < 0 {
				p = 0
			} else if p >= n {
				p = n - 1
			}
			sum += w * src[base+p*stride]
		}
		dst[idx] = sum
	}
}
