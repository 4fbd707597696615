package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMaxHoleArea is the largest hole, in squared world units, that
// FillHoles closes by default.
const DefaultMaxHoleArea = 10.0

// BoundaryLoops chains the boundary edges of m into closed loops. Each loop
// follows the winding of the triangles next to it. Chains that do not close,
// as around non-manifold vertices, are not reported.
func BoundaryLoops(m *Mesh) [][]int {
	edges := m.BoundaryEdges()
	next := make(map[int]int, len(edges))
	ambiguous := make(map[int]bool)
	for _, e := range edges {
		if _, dup := next[e[0]]; dup {
			ambiguous[e[0]] = true
		}
		next[e[0]] = e[1]
	}

	var loops [][]int
	visited := make(map[int]bool, len(edges))
	for _, e := range edges {
		start := e[0]
		if visited[start] || ambiguous[start] {
			continue
		}
		var loop []int
		v := start
		closed := false
		for {
			if visited[v] || ambiguous[v] {
				break
			}
			visited[v] = true
			loop = append(loop, v)
			n, ok := next[v]
			if !ok {
				break
			}
			if n == start {
				closed = true
				break
			}
			v = n
		}
		if closed && len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}

// FillHoles closes boundary loops whose centroid fan has an area of at most
// maxArea. Three-vertex loops get a single triangle; longer loops get a new
// centroid vertex. Larger holes are left open.
func FillHoles(m *Mesh, maxArea float64) *Mesh {
	out := m.Clone()
	for _, loop := range BoundaryLoops(m) {
		n := len(loop)
		if n == 3 {
			a, b, c := m.Vertices[loop[0]], m.Vertices[loop[1]], m.Vertices[loop[2]]
			if r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))/2 <= maxArea {
				out.Triangles = append(out.Triangles, [3]int{loop[0], loop[2], loop[1]})
			}
			continue
		}

		var c r3.Vec
		for _, v := range loop {
			c = r3.Add(c, m.Vertices[v])
		}
		c = r3.Scale(1/float64(n), c)
		area := 0.0
		for i := range loop {
			a, b := m.Vertices[loop[i]], m.Vertices[loop[(i+1)%n]]
			area += r3.Norm(r3.Cross(r3.Sub(a, c), r3.Sub(b, c))) / 2
		}
		if area > maxArea {
			continue
		}

		ci := len(out.Vertices)
		out.Vertices = append(out.Vertices, c)
		if out.Normals != nil {
			out.Normals = append(out.Normals, r3.Vec{})
		}
		for i := range loop {
			out.Triangles = append(out.Triangles, [3]int{loop[(i+1)%n], loop[i], ci})
		}
	}
	if out.Normals != nil && len(out.Vertices) != len(m.Vertices) {
		return ComputeNormals(out)
	}
	return out
}
