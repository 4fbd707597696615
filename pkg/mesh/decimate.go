package mesh

import (
	"container/heap"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DecimateOptions controls quadric edge-collapse decimation.
type DecimateOptions struct {
	// TargetRatio is the fraction of triangles to keep, in (0, 1)
	TargetRatio float64

	// MaxError stops decimation once the cheapest collapse costs more.
	// Zero means unbounded.
	MaxError float64

	// MinQuality rejects collapses that leave a triangle below this
	// quality (1 for equilateral, 0 for degenerate) unless it was
	// already worse
	MinQuality float64
}

// DefaultDecimateOptions keeps 70% of the triangles.
func DefaultDecimateOptions() DecimateOptions {
	return DecimateOptions{TargetRatio: 0.7, MinQuality: 0.1}
}

// flipThreshold is the smallest cosine allowed between a triangle normal
// before and after a collapse.
const flipThreshold = 0.2

// quadric is the symmetric 4x4 error matrix of Garland and Heckbert,
// stored as its upper triangle.
type quadric [10]float64

func planeQuadric(n r3.Vec, d, w float64) quadric {
	return quadric{
		w * n.X * n.X, w * n.X * n.Y, w * n.X * n.Z, w * n.X * d,
		w * n.Y * n.Y, w * n.Y * n.Z, w * n.Y * d,
		w * n.Z * n.Z, w * n.Z * d,
		w * d * d,
	}
}

func (q quadric) add(o quadric) quadric {
	for i := range q {
		q[i] += o[i]
	}
	return q
}

// eval returns v^T Q v for v = (p, 1).
func (q quadric) eval(p r3.Vec) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// optimum solves for the position minimising the quadric.
func (q quadric) optimum() (r3.Vec, bool) {
	a := mat.NewSymDense(3, []float64{
		q[0], q[1], q[2],
		q[1], q[4], q[5],
		q[2], q[5], q[7],
	})
	b := mat.NewVecDense(3, []float64{-q[3], -q[6], -q[8]})
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return r3.Vec{}, false
	}
	p := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	if math.IsNaN(p.X+p.Y+p.Z) || math.IsInf(p.X+p.Y+p.Z, 0) {
		return r3.Vec{}, false
	}
	return p, true
}

type collapse struct {
	cost   float64
	a, b   int
	va, vb int
	target r3.Vec
}

type collapseHeap []collapse

func (h collapseHeap) Len() int { return len(h) }
func (h collapseHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].a != h[j].a {
		return h[i].a < h[j].a
	}
	return h[i].b < h[j].b
}
func (h collapseHeap) Swap(i, j int)  { h[i], h[j] = h[j], h[i] }
func (h *collapseHeap) Push(x any)    { *h = append(*h, x.(collapse)) }
func (h *collapseHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

type decimator struct {
	opts     DecimateOptions
	pos      []r3.Vec
	quads    []quadric
	tris     [][3]int
	triAlive []bool
	vtris    [][]int
	alive    []bool
	locked   []bool
	version  []int
	heap     collapseHeap
	live     int
}

// Decimate reduces the triangle count of m towards TargetRatio by
// repeatedly collapsing the edge with the smallest quadric error. A
// collapse is only taken when it keeps the surface manifold and does not
// flip or badly distort neighbouring triangles; boundary vertices never
// move. Decimation stops at the target, at MaxError, or when no valid
// collapse remains. TargetRatio >= 1 returns an unchanged copy.
func Decimate(m *Mesh, opts DecimateOptions) *Mesh {
	if opts.TargetRatio >= 1 || len(m.Triangles) == 0 {
		return m.Clone()
	}
	target := int(math.Round(math.Max(opts.TargetRatio, 0) * float64(len(m.Triangles))))

	d := newDecimator(m, opts)
	for d.live > target && d.heap.Len() > 0 {
		c := heap.Pop(&d.heap).(collapse)
		if !d.alive[c.a] || !d.alive[c.b] || d.version[c.a] != c.va || d.version[c.b] != c.vb {
			continue
		}
		if opts.MaxError > 0 && c.cost > opts.MaxError {
			break
		}
		if !d.valid(c.a, c.b, c.target) {
			continue
		}
		d.apply(c.a, c.b, c.target)
	}

	var tris [][3]int
	for i, t := range d.tris {
		if d.triAlive[i] {
			tris = append(tris, t)
		}
	}
	out := compact(&Mesh{Vertices: d.pos}, tris)
	if m.Normals != nil {
		return ComputeNormals(out)
	}
	return out
}

func newDecimator(m *Mesh, opts DecimateOptions) *decimator {
	nv := len(m.Vertices)
	d := &decimator{
		opts:     opts,
		pos:      append([]r3.Vec(nil), m.Vertices...),
		quads:    make([]quadric, nv),
		tris:     append([][3]int(nil), m.Triangles...),
		triAlive: make([]bool, len(m.Triangles)),
		vtris:    make([][]int, nv),
		alive:    make([]bool, nv),
		locked:   make([]bool, nv),
		version:  make([]int, nv),
		live:     len(m.Triangles),
	}
	for i, t := range d.tris {
		d.triAlive[i] = true
		n := m.faceNormal(t)
		area := r3.Norm(n) / 2
		if area > 0 {
			n = r3.Scale(1/(2*area), n)
			q := planeQuadric(n, -r3.Dot(n, m.Vertices[t[0]]), area)
			for _, v := range t {
				d.quads[v] = d.quads[v].add(q)
			}
		}
		for _, v := range t {
			d.vtris[v] = append(d.vtris[v], i)
			d.alive[v] = true
		}
	}
	for _, e := range m.BoundaryEdges() {
		d.locked[e[0]], d.locked[e[1]] = true, true
	}
	for _, t := range d.tris {
		for i := 0; i < 3; i++ {
			a, b := t[i], t[(i+1)%3]
			if a < b {
				d.push(a, b)
			}
		}
	}
	// Interior edges are pushed twice; the spare copy goes stale with the
	// first change to either end.
	heap.Init(&d.heap)
	return d
}

func (d *decimator) push(a, b int) {
	if d.locked[a] || d.locked[b] {
		return
	}
	q := d.quads[a].add(d.quads[b])
	pa, pb := d.pos[a], d.pos[b]
	mid := r3.Scale(0.5, r3.Add(pa, pb))

	best, bestCost := mid, q.eval(mid)
	if p, ok := q.optimum(); ok && r3.Norm(r3.Sub(p, mid)) <= 2*r3.Norm(r3.Sub(pb, pa)) {
		if c := q.eval(p); c <= bestCost {
			best, bestCost = p, c
		}
	}
	for _, p := range []r3.Vec{pa, pb} {
		if c := q.eval(p); c < bestCost {
			best, bestCost = p, c
		}
	}
	if bestCost < 0 {
		bestCost = 0
	}
	d.heap = append(d.heap, collapse{cost: bestCost, a: a, b: b, va: d.version[a], vb: d.version[b], target: best})
}

// ring returns the alive neighbours of v.
func (d *decimator) ring(v int) map[int]bool {
	r := make(map[int]bool)
	for _, ti := range d.vtris[v] {
		if !d.triAlive[ti] {
			continue
		}
		for _, u := range d.tris[ti] {
			if u != v {
				r[u] = true
			}
		}
	}
	return r
}

func (d *decimator) valid(a, b int, p r3.Vec) bool {
	if d.locked[a] || d.locked[b] {
		return false
	}

	// The edge must be shared by exactly two triangles.
	var opposite []int
	for _, ti := range d.vtris[a] {
		if !d.triAlive[ti] {
			continue
		}
		t := d.tris[ti]
		if t[0] != b && t[1] != b && t[2] != b {
			continue
		}
		for _, u := range t {
			if u != a && u != b {
				opposite = append(opposite, u)
			}
		}
	}
	if len(opposite) != 2 || opposite[0] == opposite[1] {
		return false
	}

	// Link condition: the only common neighbours are the two opposite
	// vertices.
	ra, rb := d.ring(a), d.ring(b)
	common := 0
	for u := range ra {
		if rb[u] {
			common++
		}
	}
	if common != 2 {
		return false
	}
	for _, o := range opposite {
		if len(d.ring(o)) <= 3 {
			return false
		}
	}

	for _, v := range [2]int{a, b} {
		for _, ti := range d.vtris[v] {
			if !d.triAlive[ti] {
				continue
			}
			t := d.tris[ti]
			if (t[0] == a || t[1] == a || t[2] == a) && (t[0] == b || t[1] == b || t[2] == b) {
				continue
			}
			if !d.acceptable(t, v, p) {
				return false
			}
		}
	}
	return true
}

// acceptable checks triangle t after moving its vertex v to p.
func (d *decimator) acceptable(t [3]int, v int, p r3.Vec) bool {
	var before, after [3]r3.Vec
	for i, u := range t {
		before[i] = d.pos[u]
		after[i] = d.pos[u]
		if u == v {
			after[i] = p
		}
	}
	n0 := r3.Cross(r3.Sub(before[1], before[0]), r3.Sub(before[2], before[0]))
	n1 := r3.Cross(r3.Sub(after[1], after[0]), r3.Sub(after[2], after[0]))
	l0, l1 := r3.Norm(n0), r3.Norm(n1)
	if l1 == 0 {
		return false
	}
	if l0 > 0 && r3.Dot(n0, n1)/(l0*l1) < flipThreshold {
		return false
	}
	q1 := quality(after)
	return q1 >= d.opts.MinQuality || q1 >= quality(before)
}

// quality is 4*sqrt(3)*area over the sum of squared edge lengths: 1 for an
// equilateral triangle, 0 for a degenerate one.
func quality(p [3]r3.Vec) float64 {
	s := r3.Norm2(r3.Sub(p[1], p[0])) + r3.Norm2(r3.Sub(p[2], p[1])) + r3.Norm2(r3.Sub(p[0], p[2]))
	if s == 0 {
		return 0
	}
	area := r3.Norm(r3.Cross(r3.Sub(p[1], p[0]), r3.Sub(p[2], p[0]))) / 2
	return 4 * math.Sqrt(3) * area / s
}

// apply collapses b into a, moving a to p.
func (d *decimator) apply(a, b int, p r3.Vec) {
	for _, ti := range d.vtris[b] {
		if !d.triAlive[ti] {
			continue
		}
		t := &d.tris[ti]
		if t[0] == a || t[1] == a || t[2] == a {
			d.triAlive[ti] = false
			d.live--
			continue
		}
		for i := range t {
			if t[i] == b {
				t[i] = a
			}
		}
		d.vtris[a] = append(d.vtris[a], ti)
	}
	d.alive[b] = false
	d.vtris[b] = nil
	d.pos[a] = p
	d.quads[a] = d.quads[a].add(d.quads[b])

	// Drop dead triangles from a's list to keep later scans short.
	kept := d.vtris[a][:0]
	for _, ti := range d.vtris[a] {
		if d.triAlive[ti] {
			kept = append(kept, ti)
		}
	}
	d.vtris[a] = kept

	touched := []int{a}
	for u := range d.ring(a) {
		touched = append(touched, u)
	}
	sort.Ints(touched[1:])
	for _, v := range touched {
		d.version[v]++
	}
	seen := make(map[Edge]bool)
	for _, v := range touched {
		for u := range d.ring(v) {
			e := newEdge(v, u)
			if seen[e] {
				continue
			}
			seen[e] = true
			d.pushFixed(e[0], e[1])
		}
	}
	d.version[b]++
}

// pushFixed pushes the collapse of (a, b) keeping the heap ordered.
func (d *decimator) pushFixed(a, b int) {
	n := len(d.heap)
	d.push(a, b)
	if len(d.heap) > n {
		heap.Fix(&d.heap, n)
	}
}
