// Package isosurface extracts triangle meshes from scalar voxel fields with
// marching cubes.
package isosurface

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/internal/models"
	"volgeom/pkg/mesh"
	"volgeom/pkg/volume"
)

// DefaultIso is the threshold used on smoothed binary fields.
const DefaultIso = 0.3

// Extract returns the closed surface separating voxels with value >= iso
// from the rest. The field is padded with one layer of outside voxels so
// regions touching the grid border are capped. Vertices are shared between
// neighbouring cubes, placed in world coordinates through geom, and
// triangles face towards lower values.
func Extract(f *models.Field, iso float64, geom volume.Geometry) *mesh.Mesh {
	e := newExtractor(f, iso, geom)
	out := &mesh.Mesh{}
	var vals [8]float64
	for k := 0; k < e.pz-1; k++ {
		for j := 0; j < e.py-1; j++ {
			for i := 0; i < e.px-1; i++ {
				config := 0
				for c, o := range cornerOffsets {
					vals[c] = e.value(i+o[0], j+o[1], k+o[2])
					if vals[c] >= iso {
						config |= 1 << c
					}
				}
				if config == 0 || config == 255 {
					continue
				}
				for _, tri := range triTable[config] {
					var t [3]int
					for n, edge := range tri {
						t[n] = e.vertex(out, i, j, k, edge)
					}
					if e.mirrored {
						t[1], t[2] = t[2], t[1]
					}
					out.Triangles = append(out.Triangles, t)
				}
			}
		}
	}
	return out
}

type extractor struct {
	field      *models.Field
	iso, pad   float64
	px, py, pz int
	geom       volume.Geometry
	mirrored   bool
	vertices   map[int]int
}

func newExtractor(f *models.Field, iso float64, geom volume.Geometry) *extractor {
	pad := floats.Min(f.Data)
	if !(pad < iso) {
		pad = iso - 1
	}
	d := f.Dims
	return &extractor{
		field:    f,
		iso:      iso,
		pad:      pad,
		px:       d.NX + 2,
		py:       d.NY + 2,
		pz:       d.NZ + 2,
		geom:     geom,
		mirrored: !geom.RightHanded(),
		vertices: make(map[int]int),
	}
}

// value reads the padded lattice, where (1,1,1) is field voxel (0,0,0).
func (e *extractor) value(i, j, k int) float64 {
	i, j, k = i-1, j-1, k-1
	if !e.field.Dims.Contains(i, j, k) {
		return e.pad
	}
	return e.field.At(i, j, k)
}

// vertex returns the index of the crossing on edge of the cube at (i,j,k),
// creating it on first use. The key is the lower lattice point of the edge
// and its axis, so both cubes sharing an edge find the same vertex.
func (e *extractor) vertex(m *mesh.Mesh, i, j, k, edge int) int {
	a, b := cornerOffsets[edgeCorners[edge][0]], cornerOffsets[edgeCorners[edge][1]]
	if a[0]+a[1]+a[2] > b[0]+b[1]+b[2] {
		a, b = b, a
	}
	axis := 0
	for axis < 2 && a[axis] == b[axis] {
		axis++
	}
	li, lj, lk := i+a[0], j+a[1], k+a[2]
	key := ((lk*e.py+lj)*e.px+li)*3 + axis
	if idx, ok := e.vertices[key]; ok {
		return idx
	}

	va := e.value(li, lj, lk)
	vb := e.value(i+b[0], j+b[1], k+b[2])
	t := (e.iso - va) / (vb - va)
	p := r3.Vec{X: float64(li - 1), Y: float64(lj - 1), Z: float64(lk - 1)}
	switch axis {
	case 0:
		p.X += t
	case 1:
		p.Y += t
	default:
		p.Z += t
	}

	idx := len(m.Vertices)
	m.Vertices = append(m.Vertices, e.geom.IndexToWorld(p))
	e.vertices[key] = idx
	return idx
}
