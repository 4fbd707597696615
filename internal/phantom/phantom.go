// Package phantom builds small synthetic labelled volumes used by the demo
// command and by package tests.
package phantom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/pkg/volume"
)

// Builder paints labelled shapes into a voxel lattice. Shapes are given in
// voxel index coordinates; later shapes overwrite earlier ones.
type Builder struct {
	dims    volume.Dims
	spacing [3]float64
	labels  []int32
}

// New returns an empty builder with unit spacing.
func New(dims volume.Dims) *Builder {
	return &Builder{dims: dims, spacing: [3]float64{1, 1, 1}, labels: make([]int32, dims.Len())}
}

// WithSpacing sets the voxel size of the produced mask and grid.
func (b *Builder) WithSpacing(sx, sy, sz float64) *Builder {
	b.spacing = [3]float64{sx, sy, sz}
	return b
}

// Sphere labels every voxel whose centre lies within radius of c.
func (b *Builder) Sphere(c r3.Vec, radius float64, label int32) *Builder {
	r2 := radius * radius
	b.each(func(p r3.Vec) bool { return r3.Norm2(r3.Sub(p, c)) <= r2 }, label)
	return b
}

// Tube labels voxels within radius of the segment from p to q.
func (b *Builder) Tube(p, q r3.Vec, radius float64, label int32) *Builder {
	d := r3.Sub(q, p)
	l2 := r3.Norm2(d)
	r2 := radius * radius
	b.each(func(x r3.Vec) bool {
		t := 0.0
		if l2 > 0 {
			t = math.Max(0, math.Min(1, r3.Dot(r3.Sub(x, p), d)/l2))
		}
		return r3.Norm2(r3.Sub(x, r3.Add(p, r3.Scale(t, d)))) <= r2
	}, label)
	return b
}

// Box labels voxels with lo <= index <= hi on every axis.
func (b *Builder) Box(lo, hi [3]int, label int32) *Builder {
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				b.Voxel(i, j, k, label)
			}
		}
	}
	return b
}

// Voxel labels a single voxel; out-of-range indices are ignored.
func (b *Builder) Voxel(i, j, k int, label int32) *Builder {
	if b.dims.Contains(i, j, k) {
		b.labels[b.dims.Index(i, j, k)] = label
	}
	return b
}

func (b *Builder) each(inside func(r3.Vec) bool, label int32) {
	for idx := range b.labels {
		i, j, k := b.dims.Coords(idx)
		if inside(r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}) {
			b.labels[idx] = label
		}
	}
}

// Mask returns the painted labels as a LabelMask. The builder keeps no
// reference to the returned data.
func (b *Builder) Mask() *volume.LabelMask {
	labels := append([]int32(nil), b.labels...)
	m, err := volume.NewLabelMask(b.dims, labels, volume.WithSpacing(b.spacing[0], b.spacing[1], b.spacing[2]))
	if err != nil {
		panic(fmt.Sprintf("phantom: %v", err))
	}
	return m
}

// Grid returns an intensity volume where background voxels hold background
// and labelled voxels hold background + scale*label.
func (b *Builder) Grid(background, scale float64) *volume.Grid {
	return GridFromMask(b.Mask(), background, scale)
}

// GridFromMask renders m as an intensity volume with m's shape and spacing:
// background plus scale times the label of each voxel.
func GridFromMask(m *volume.LabelMask, background, scale float64) *volume.Grid {
	d, sp := m.Dims(), m.Spacing()
	data := make([]float64, d.Len())
	for i := range data {
		data[i] = background + scale*float64(m.AtIndex(i))
	}
	g, err := volume.NewGrid(d, data, volume.WithSpacing(sp[0], sp[1], sp[2]))
	if err != nil {
		panic(fmt.Sprintf("phantom: %v", err))
	}
	return g
}

// Part is one structure of the demo scene as a binary mask, named like the
// segmentation file it stands in for.
type Part struct {
	File string
	Mask *volume.LabelMask
}

var (
	demoDims            = volume.Dims{NX: 48, NY: 40, NZ: 40}
	demoLeft, demoRight = r3.Vec{X: 14, Y: 20, Z: 20}, r3.Vec{X: 34, Y: 20, Z: 20}
)

func demoBuilder() *Builder {
	return New(demoDims).WithSpacing(1, 1, 1.5)
}

// DemoParts returns the demo scene as one mask per structure, in the order
// they are merged: two spheres, the tube joining them, and a one-voxel speck.
func DemoParts() []Part {
	return []Part{
		{"left_atrium.nii.gz", demoBuilder().Sphere(demoLeft, 8, 1).Mask()},
		{"right_atrium.nii.gz", demoBuilder().Sphere(demoRight, 6, 1).Mask()},
		{"pulmonary_artery.nii", demoBuilder().Tube(demoLeft, demoRight, 2.5, 1).Mask()},
		{"speck.nii.gz", demoBuilder().Voxel(44, 4, 4, 1).Mask()},
	}
}
