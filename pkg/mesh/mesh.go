// Package mesh holds the indexed triangle mesh produced by isosurface
// extraction and the postprocessing steps applied to it: welding, hole
// filling, smoothing, normal estimation and decimation.
package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Mesh is an indexed triangle mesh. Triangles index into Vertices and are
// wound counter-clockwise seen from outside. Normals is either nil or holds
// one unit normal per vertex.
type Mesh struct {
	Vertices  []r3.Vec
	Triangles [][3]int
	Normals   []r3.Vec
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Triangles) }

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Vertices:  append([]r3.Vec(nil), m.Vertices...),
		Triangles: append([][3]int(nil), m.Triangles...),
	}
	if m.Normals != nil {
		c.Normals = append([]r3.Vec(nil), m.Normals...)
	}
	return c
}

func (m *Mesh) corners(t [3]int) (a, b, c r3.Vec) {
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}

// faceNormal returns the unnormalised normal of t, with length twice its area.
func (m *Mesh) faceNormal(t [3]int) r3.Vec {
	a, b, c := m.corners(t)
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// Volume returns the signed enclosed volume. It is positive for a closed
// mesh whose triangles face outwards.
func (m *Mesh) Volume() float64 {
	v := 0.0
	for _, t := range m.Triangles {
		a, b, c := m.corners(t)
		v += r3.Dot(a, r3.Cross(b, c))
	}
	return v / 6
}

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	s := 0.0
	for _, t := range m.Triangles {
		s += r3.Norm(m.faceNormal(t))
	}
	return s / 2
}

// Edge is an undirected mesh edge with Edge[0] < Edge[1].
type Edge [2]int

func newEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{a, b}
}

// edgeUse counts, per undirected edge, how often it is used and the net
// direction (+1 for a->b with a<b, -1 otherwise).
type edgeUse struct {
	count, dir int
}

func (m *Mesh) edgeUses() map[Edge]*edgeUse {
	uses := make(map[Edge]*edgeUse, 3*len(m.Triangles)/2)
	for _, t := range m.Triangles {
		for i := 0; i < 3; i++ {
			a, b := t[i], t[(i+1)%3]
			e := newEdge(a, b)
			u := uses[e]
			if u == nil {
				u = &edgeUse{}
				uses[e] = u
			}
			u.count++
			if a < b {
				u.dir++
			} else {
				u.dir--
			}
		}
	}
	return uses
}

// BoundaryEdges returns the edges used by exactly one triangle, as directed
// pairs following the triangle winding, in triangle order.
func (m *Mesh) BoundaryEdges() [][2]int {
	uses := m.edgeUses()
	var out [][2]int
	for _, t := range m.Triangles {
		for i := 0; i < 3; i++ {
			a, b := t[i], t[(i+1)%3]
			if uses[newEdge(a, b)].count == 1 {
				out = append(out, [2]int{a, b})
			}
		}
	}
	return out
}

// IsWatertight reports whether every edge is shared by exactly two
// triangles that traverse it in opposite directions.
func (m *Mesh) IsWatertight() bool {
	if len(m.Triangles) == 0 {
		return false
	}
	for _, u := range m.edgeUses() {
		if u.count != 2 || u.dir != 0 {
			return false
		}
	}
	return true
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *Mesh) Bounds() (lo, hi r3.Vec) {
	if len(m.Vertices) == 0 {
		return
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		lo = r3.Vec{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi
}

// Stats summarises a mesh for reporting.
type Stats struct {
	Vertices, Triangles int
	BoundaryEdges       int
	Area, Volume        float64
	EdgeMean, EdgeStd   float64
}

// ComputeStats measures m.
func ComputeStats(m *Mesh) Stats {
	s := Stats{
		Vertices:      m.VertexCount(),
		Triangles:     m.TriangleCount(),
		BoundaryEdges: len(m.BoundaryEdges()),
		Area:          m.Area(),
		Volume:        m.Volume(),
	}
	if len(m.Triangles) == 0 {
		return s
	}
	seen := make(map[Edge]bool, 3*len(m.Triangles)/2)
	var lengths []float64
	for _, t := range m.Triangles {
		for i := 0; i < 3; i++ {
			e := newEdge(t[i], t[(i+1)%3])
			if seen[e] {
				continue
			}
			seen[e] = true
			lengths = append(lengths, r3.Norm(r3.Sub(m.Vertices[e[1]], m.Vertices[e[0]])))
		}
	}
	s.EdgeMean, s.EdgeStd = stat.MeanStdDev(lengths, nil)
	if math.IsNaN(s.EdgeStd) {
		s.EdgeStd = 0
	}
	return s
}
