package mask

import (
	"volgeom/internal/models"
	"volgeom/pkg/volume"
)

var (
	faceNeighbors [][3]int
	allNeighbors  [][3]int
)

func init() {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := abs(dx) + abs(dy) + abs(dz)
				if n == 0 {
					continue
				}
				if n == 1 {
					faceNeighbors = append(faceNeighbors, [3]int{dx, dy, dz})
				}
				allNeighbors = append(allNeighbors, [3]int{dx, dy, dz})
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// flood labels every voxel reachable from seed whose flag equals want,
// writing id into comp, and returns the component size.
func flood(d volume.Dims, data []bool, want bool, comp []int, seed, id int, nbrs [][3]int, stack []int) (int, []int) {
	stack = append(stack[:0], seed)
	comp[seed] = id
	size := 0
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		size++
		i, j, k := d.Coords(idx)
		for _, n := range nbrs {
			x, y, z := i+n[0], j+n[1], k+n[2]
			if !d.Contains(x, y, z) {
				continue
			}
			ni := d.Index(x, y, z)
			if comp[ni] != 0 || data[ni] != want {
				continue
			}
			comp[ni] = id
			stack = append(stack, ni)
		}
	}
	return size, stack
}

// FillHoles turns background voxels that cannot reach the grid border
// through 6-connected background into foreground.
func FillHoles(b *models.Binary) {
	d := b.Dims
	reached := make([]int, len(b.Data))
	var stack []int
	for idx, fg := range b.Data {
		if fg || reached[idx] != 0 {
			continue
		}
		i, j, k := d.Coords(idx)
		onBorder := i == 0 || j == 0 || k == 0 || i == d.NX-1 || j == d.NY-1 || k == d.NZ-1
		if !onBorder {
			continue
		}
		_, stack = flood(d, b.Data, false, reached, idx, 1, faceNeighbors, stack)
	}
	for idx, fg := range b.Data {
		if !fg && reached[idx] == 0 {
			b.Data[idx] = true
		}
	}
}

// Components labels 26-connected foreground components in scan order,
// starting at 1, and returns the label volume and the component sizes
// (sizes[0] is unused).
func Components(b *models.Binary) ([]int, []int) {
	comp := make([]int, len(b.Data))
	sizes := []int{0}
	var stack []int
	for idx, fg := range b.Data {
		if !fg || comp[idx] != 0 {
			continue
		}
		var size int
		size, stack = flood(b.Dims, b.Data, true, comp, idx, len(sizes), allNeighbors, stack)
		sizes = append(sizes, size)
	}
	return comp, sizes
}

// FilterComponents clears components smaller than minVoxels and, when
// largestOnly is set, every component but the largest. Ties go to the
// component found first in scan order.
func FilterComponents(b *models.Binary, minVoxels int, largestOnly bool) {
	comp, sizes := Components(b)
	keep := make([]bool, len(sizes))
	largest := 0
	for id := 1; id < len(sizes); id++ {
		if sizes[id] < minVoxels {
			continue
		}
		keep[id] = true
		if largest == 0 || sizes[id] > sizes[largest] {
			largest = id
		}
	}
	if largestOnly {
		for id := range keep {
			keep[id] = id == largest && largest != 0
		}
	}
	for idx, id := range comp {
		if id != 0 && !keep[id] {
			b.Data[idx] = false
		}
	}
}
