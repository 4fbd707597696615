// Package volume holds the immutable voxel containers shared by the surface
// pipeline and the reformation engine: the scalar VolumeGrid, the LabelMask
// and the index-to-world geometry that both of them carry.
package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Dims are the voxel counts along the three index axes.
type Dims struct {
	NX, NY, NZ int
}

// Len returns the number of voxels.
func (d Dims) Len() int {
	return d.NX * d.NY * d.NZ
}

// Index returns the linear offset of voxel (i,j,k). x varies fastest.
func (d Dims) Index(i, j, k int) int {
	return (k*d.NY+j)*d.NX + i
}

// Coords is the inverse of Index.
func (d Dims) Coords(idx int) (i, j, k int) {
	i = idx % d.NX
	j = (idx / d.NX) % d.NY
	k = idx / (d.NX * d.NY)
	return i, j, k
}

// Contains reports whether (i,j,k) is a valid voxel index.
func (d Dims) Contains(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < d.NX && j < d.NY && k < d.NZ
}

func (d Dims) valid() bool {
	return d.NX > 0 && d.NY > 0 && d.NZ > 0
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.NX, d.NY, d.NZ)
}

// Identity is the axis-aligned direction matrix.
var Identity = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// Geometry maps continuous voxel indices to world coordinates:
//
//	world = Origin + Direction * diag(Spacing) * index
//
// Direction columns are the world directions of the i, j and k axes.
type Geometry struct {
	Dims      Dims
	Spacing   [3]float64
	Origin    r3.Vec
	Direction [3][3]float64

	forward [3][3]float64
	inverse [3][3]float64
}

// NewGeometry validates the parameters and precomputes the inverse
// transform.
func NewGeometry(dims Dims, spacing [3]float64, origin r3.Vec, direction [3][3]float64) (Geometry, error) {
	g := Geometry{Dims: dims, Spacing: spacing, Origin: origin, Direction: direction}
	if !dims.valid() {
		return g, fmt.Errorf("invalid dimensions %v", dims)
	}
	for a, s := range spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return g, fmt.Errorf("spacing along axis %d must be positive, got %g", a, s)
		}
	}

	fwd := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			fwd.Set(r, c, direction[r][c]*spacing[c])
			g.forward[r][c] = direction[r][c] * spacing[c]
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return g, fmt.Errorf("direction matrix is not invertible: %w", err)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			g.inverse[r][c] = inv.At(r, c)
		}
	}
	return g, nil
}

// IndexToWorld converts a continuous voxel index to world coordinates.
func (g Geometry) IndexToWorld(ci r3.Vec) r3.Vec {
	return r3.Add(g.Origin, apply(g.forward, ci))
}

// WorldToIndex converts a world coordinate to a continuous voxel index.
func (g Geometry) WorldToIndex(w r3.Vec) r3.Vec {
	return apply(g.inverse, r3.Sub(w, g.Origin))
}

// VoxelVolume is the world volume of one voxel.
func (g Geometry) VoxelVolume() float64 {
	return math.Abs(det3(g.forward))
}

// RightHanded reports whether the index axes map to a right-handed world
// frame. Mirrored orientations flip triangle winding.
func (g Geometry) RightHanded() bool {
	return det3(g.Direction) > 0
}

func apply(m [3][3]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Option customises the geometry of a grid or mask at construction.
type Option func(*options)

type options struct {
	spacing   [3]float64
	origin    r3.Vec
	direction [3][3]float64
}

func defaultOptions() options {
	return options{spacing: [3]float64{1, 1, 1}, direction: Identity}
}

// WithSpacing sets the voxel size along i, j and k.
func WithSpacing(sx, sy, sz float64) Option {
	return func(o *options) { o.spacing = [3]float64{sx, sy, sz} }
}

// WithOrigin sets the world position of voxel (0,0,0).
func WithOrigin(origin r3.Vec) Option {
	return func(o *options) { o.origin = origin }
}

// WithDirection sets the orientation matrix.
func WithDirection(direction [3][3]float64) Option {
	return func(o *options) { o.direction = direction }
}

// Grid is an immutable 3D scalar volume. It is safe for concurrent use by
// any number of readers.
type Grid struct {
	geom     Geometry
	data     []float64
	min, max float64
}

// NewGrid builds a grid over data, laid out with x varying fastest. The grid
// takes ownership of data; callers must not modify it afterwards.
func NewGrid(dims Dims, data []float64, opts ...Option) (*Grid, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	geom, err := NewGeometry(dims, o.spacing, o.origin, o.direction)
	if err != nil {
		return nil, err
	}
	if len(data) != dims.Len() {
		return nil, fmt.Errorf("grid data has %d values, dimensions %v need %d", len(data), dims, dims.Len())
	}
	return &Grid{
		geom: geom,
		data: data,
		min:  floats.Min(data),
		max:  floats.Max(data),
	}, nil
}

// Geometry returns the grid's index-to-world mapping.
func (g *Grid) Geometry() Geometry { return g.geom }

// Dims returns the voxel counts.
func (g *Grid) Dims() Dims { return g.geom.Dims }

// Spacing returns the voxel size.
func (g *Grid) Spacing() [3]float64 { return g.geom.Spacing }

// At returns the value of voxel (i,j,k). It panics on out-of-range indices.
func (g *Grid) At(i, j, k int) float64 {
	return g.data[g.geom.Dims.Index(i, j, k)]
}

// Min returns the smallest voxel value.
func (g *Grid) Min() float64 { return g.min }

// Max returns the largest voxel value.
func (g *Grid) Max() float64 { return g.max }
