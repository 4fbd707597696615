package isosurface

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Cube corners, in (x,y,z) offsets from the cube origin.
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// Cube edges as corner pairs.
var edgeCorners = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

type cubeFace struct {
	corners [4]int // cyclic
	normal  r3.Vec // outward
}

var cubeFaces = [6]cubeFace{
	{[4]int{0, 1, 2, 3}, r3.Vec{Z: -1}},
	{[4]int{4, 5, 6, 7}, r3.Vec{Z: 1}},
	{[4]int{0, 1, 5, 4}, r3.Vec{Y: -1}},
	{[4]int{3, 2, 6, 7}, r3.Vec{Y: 1}},
	{[4]int{0, 3, 7, 4}, r3.Vec{X: -1}},
	{[4]int{1, 2, 6, 5}, r3.Vec{X: 1}},
}

// triTable lists, per corner configuration, the triangles as edge triples.
// Bit c of the configuration is set when corner c is inside.
var triTable [256][][3]int

func init() {
	for c := 0; c < 256; c++ {
		triTable[c] = buildCase(uint8(c))
	}
}

func cornerPos(c int) r3.Vec {
	o := cornerOffsets[c]
	return r3.Vec{X: float64(o[0]), Y: float64(o[1]), Z: float64(o[2])}
}

func edgeMid(e int) r3.Vec {
	return r3.Scale(0.5, r3.Add(cornerPos(edgeCorners[e][0]), cornerPos(edgeCorners[e][1])))
}

func edgeOf(a, b int) int {
	for e, p := range edgeCorners {
		if (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a) {
			return e
		}
	}
	panic(fmt.Sprintf("isosurface: corners %d and %d share no edge", a, b))
}

// buildCase derives the triangles of one configuration. Each cube face
// contributes oriented segments where the surface crosses it; a face with
// four crossings gives every inside corner its own segment. Segments are
// oriented so the surface keeps inside values behind it, chained into
// loops and fan-triangulated.
func buildCase(config uint8) [][3]int {
	inside := func(c int) bool { return config&(1<<c) != 0 }

	var next [12]int
	for i := range next {
		next[i] = -1
	}
	link := func(a, b, corner int, n r3.Vec) {
		pa, pb := edgeMid(a), edgeMid(b)
		w := r3.Sub(cornerPos(corner), r3.Scale(0.5, r3.Add(pa, pb)))
		if r3.Dot(r3.Cross(n, r3.Sub(pb, pa)), w) > 0 {
			a, b = b, a
		}
		if next[a] != -1 {
			panic(fmt.Sprintf("isosurface: case %d edge %d has two successors", config, a))
		}
		next[a] = b
	}

	for _, f := range cubeFaces {
		var crossings []int
		insideCorner := -1
		for i, c := range f.corners {
			d := f.corners[(i+1)%4]
			if inside(c) != inside(d) {
				crossings = append(crossings, edgeOf(c, d))
			}
			if inside(c) && insideCorner < 0 {
				insideCorner = c
			}
		}
		switch len(crossings) {
		case 2:
			link(crossings[0], crossings[1], insideCorner, f.normal)
		case 4:
			for i, c := range f.corners {
				if !inside(c) {
					continue
				}
				prev := f.corners[(i+3)%4]
				succ := f.corners[(i+1)%4]
				link(edgeOf(prev, c), edgeOf(c, succ), c, f.normal)
			}
		}
	}

	var tris [][3]int
	var seen [12]bool
	for start := 0; start < 12; start++ {
		if next[start] == -1 || seen[start] {
			continue
		}
		var loop []int
		for e := start; !seen[e]; e = next[e] {
			if next[e] == -1 {
				panic(fmt.Sprintf("isosurface: case %d loop through edge %d is open", config, e))
			}
			seen[e] = true
			loop = append(loop, e)
		}
		loop = fanStart(config, loop)
		for i := 1; i+1 < len(loop); i++ {
			tris = append(tris, [3]int{loop[0], loop[i], loop[i+1]})
		}
	}
	return tris
}

// sameFace reports whether edges a and b bound a common cube face.
func sameFace(a, b int) bool {
	for _, f := range cubeFaces {
		var hasA, hasB bool
		for i, c := range f.corners {
			e := edgeOf(c, f.corners[(i+1)%4])
			hasA = hasA || e == a
			hasB = hasB || e == b
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}

// fanStart rotates loop so that no fan diagonal joins two vertices on the
// same cube face. Such a diagonal would lie in the face and collide with
// the neighbouring cube's triangles.
func fanStart(config uint8, loop []int) []int {
	n := len(loop)
	for r := 0; r < n; r++ {
		ok := true
		for i := 2; i < n-1 && ok; i++ {
			ok = !sameFace(loop[r], loop[(r+i)%n])
		}
		if ok {
			return append(loop[r:len(loop):len(loop)], loop[:r]...)
		}
	}
	panic(fmt.Sprintf("isosurface: case %d has no valid fan for loop %v", config, loop))
}
