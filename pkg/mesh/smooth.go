package mesh

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Smoothing defaults of the surface pipeline.
const (
	DefaultSmoothIterations = 20
	DefaultRelaxation       = 0.15
)

// Neighbors returns, for every vertex, the sorted indices of the vertices
// it shares an edge with.
func Neighbors(m *Mesh) [][]int {
	sets := make([]map[int]struct{}, len(m.Vertices))
	add := func(a, b int) {
		if sets[a] == nil {
			sets[a] = make(map[int]struct{})
		}
		sets[a][b] = struct{}{}
	}
	for _, t := range m.Triangles {
		for i := 0; i < 3; i++ {
			a, b := t[i], t[(i+1)%3]
			add(a, b)
			add(b, a)
		}
	}
	out := make([][]int, len(m.Vertices))
	for v, s := range sets {
		for n := range s {
			out[v] = append(out[v], n)
		}
		sort.Ints(out[v])
	}
	return out
}

// Smooth applies iterations of Laplacian smoothing: every vertex moves the
// fraction lambda of the way to the centroid of its neighbours, all
// vertices updating from the previous iteration's positions. lambda is
// clamped to [0, 1]. Connectivity is unchanged.
func Smooth(m *Mesh, iterations int, lambda float64) *Mesh {
	out := m.Clone()
	lambda = math.Max(0, math.Min(1, lambda))
	if iterations <= 0 || lambda == 0 {
		return out
	}

	nbrs := Neighbors(m)
	cur := out.Vertices
	prev := make([]r3.Vec, len(cur))
	for it := 0; it < iterations; it++ {
		copy(prev, cur)
		for v, ns := range nbrs {
			if len(ns) == 0 {
				continue
			}
			var c r3.Vec
			for _, n := range ns {
				c = r3.Add(c, prev[n])
			}
			c = r3.Scale(1/float64(len(ns)), c)
			cur[v] = r3.Add(prev[v], r3.Scale(lambda, r3.Sub(c, prev[v])))
		}
	}
	if out.Normals != nil {
		return ComputeNormals(out)
	}
	return out
}
