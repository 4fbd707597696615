package mesh

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// weldPoint is a vertex position carrying its mesh index.
type weldPoint struct {
	r3.Vec
	index int
}

// Compare implements the kdtree.Comparable interface
func (p weldPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(weldPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p weldPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p weldPoint) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(weldPoint).Vec))
}

// weldPoints satisfies kdtree.Interface
type weldPoints []weldPoint

func (p weldPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p weldPoints) Len() int                              { return len(p) }
func (p weldPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p weldPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(weldPlane{weldPoints: p, Dim: d}, kdtree.MedianOfMedians(weldPlane{weldPoints: p, Dim: d}))
}

// weldPlane implements sort.Interface and kdtree.SortSlicer for weldPoints
type weldPlane struct {
	weldPoints
	kdtree.Dim
}

func (p weldPlane) Less(i, j int) bool {
	return p.weldPoints[i].Compare(p.weldPoints[j], p.Dim) < 0
}

func (p weldPlane) Slice(start, end int) kdtree.SortSlicer {
	return weldPlane{weldPoints: p.weldPoints[start:end], Dim: p.Dim}
}

func (p weldPlane) Swap(i, j int) {
	p.weldPoints[i], p.weldPoints[j] = p.weldPoints[j], p.weldPoints[i]
}

// weld maps every vertex to the lowest-indexed earlier representative
// within tol of it. Representatives map to themselves, and no two
// representatives lie within tol of each other.
func weld(vertices []r3.Vec, tol float64) []int {
	rep := make([]int, len(vertices))
	for i := range rep {
		rep[i] = i
	}
	if len(vertices) < 2 {
		return rep
	}

	pts := make(weldPoints, len(vertices))
	for i, v := range vertices {
		pts[i] = weldPoint{Vec: v, index: i}
	}
	tree := kdtree.New(append(weldPoints(nil), pts...), false)

	tol2 := 0.0
	if tol > 0 {
		tol2 = tol * tol
	}
	for i, p := range pts {
		keeper := kdtree.NewDistKeeper(tol2)
		tree.NearestSet(keeper, p)
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil {
				continue
			}
			j := item.Comparable.(weldPoint).index
			if j < i && rep[j] < rep[i] {
				rep[i] = rep[j]
			}
		}
	}
	return rep
}

// Clean welds vertices closer than tol, drops triangles that collapse to a
// line or point and triangles repeating another's vertex set, and removes
// vertices no triangle references. Order is preserved otherwise. Applying
// Clean twice with the same tol gives the same mesh as applying it once.
func Clean(m *Mesh, tol float64) *Mesh {
	rep := weld(m.Vertices, tol)

	seen := make(map[[3]int]bool, len(m.Triangles))
	var tris [][3]int
	for _, t := range m.Triangles {
		t = [3]int{rep[t[0]], rep[t[1]], rep[t[2]]}
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			continue
		}
		if degenerate(m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]) {
			continue
		}
		key := t
		sort.Ints(key[:])
		if seen[key] {
			continue
		}
		seen[key] = true
		tris = append(tris, t)
	}
	return compact(m, tris)
}

// degenerate reports a triangle with no area relative to its size.
func degenerate(a, b, c r3.Vec) bool {
	ab, ac := r3.Sub(b, a), r3.Sub(c, a)
	scale := r3.Norm2(ab) + r3.Norm2(ac) + r3.Norm2(r3.Sub(c, b))
	return scale == 0 || r3.Norm(r3.Cross(ab, ac)) <= 1e-12*scale
}

// compact builds a mesh from tris, keeping only the referenced vertices of
// m in their original order.
func compact(m *Mesh, tris [][3]int) *Mesh {
	used := make([]bool, len(m.Vertices))
	for _, t := range tris {
		used[t[0]], used[t[1]], used[t[2]] = true, true, true
	}
	remap := make([]int, len(m.Vertices))
	out := &Mesh{Triangles: make([][3]int, len(tris))}
	for i, u := range used {
		if !u {
			remap[i] = -1
			continue
		}
		remap[i] = len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices[i])
		if m.Normals != nil {
			out.Normals = append(out.Normals, m.Normals[i])
		}
	}
	for i, t := range tris {
		out.Triangles[i] = [3]int{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
	return out
}
