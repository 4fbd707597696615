package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// ComputeNormals returns a copy of m with area-weighted vertex normals. A
// mesh with negative signed volume has all its triangles flipped first, so
// normals of a closed surface point outwards.
func ComputeNormals(m *Mesh) *Mesh {
	out := m.Clone()
	if out.Volume() < 0 {
		for i, t := range out.Triangles {
			out.Triangles[i] = [3]int{t[0], t[2], t[1]}
		}
	}

	normals := make([]r3.Vec, len(out.Vertices))
	for _, t := range out.Triangles {
		// The cross product is already weighted by twice the area.
		n := out.faceNormal(t)
		for _, v := range t {
			normals[v] = r3.Add(normals[v], n)
		}
	}
	for i, n := range normals {
		if l := r3.Norm(n); l > 0 {
			normals[i] = r3.Scale(1/l, n)
		} else {
			normals[i] = r3.Vec{Z: 1}
		}
	}
	out.Normals = normals
	return out
}
