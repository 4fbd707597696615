package volume

import (
	"fmt"
	"math"
	"sort"
)

// LabelMask is an immutable multi-label voxel array. Zero is background.
type LabelMask struct {
	dims    Dims
	spacing [3]float64
	labels  []int32
}

// NewLabelMask wraps labels (x fastest). The mask takes ownership of the
// slice. Spacing defaults to 1 on every axis; only WithSpacing affects a mask.
func NewLabelMask(dims Dims, labels []int32, opts ...Option) (*LabelMask, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !dims.valid() {
		return nil, fmt.Errorf("invalid dimensions %v", dims)
	}
	if len(labels) != dims.Len() {
		return nil, fmt.Errorf("mask has %d voxels, dimensions %v need %d", len(labels), dims, dims.Len())
	}
	return &LabelMask{dims: dims, spacing: o.spacing, labels: labels}, nil
}

// Dims returns the voxel counts.
func (m *LabelMask) Dims() Dims { return m.dims }

// Spacing returns the voxel size.
func (m *LabelMask) Spacing() [3]float64 { return m.spacing }

// At returns the label of voxel (i,j,k).
func (m *LabelMask) At(i, j, k int) int32 {
	return m.labels[m.dims.Index(i, j, k)]
}

// AtIndex returns the label at linear offset idx.
func (m *LabelMask) AtIndex(idx int) int32 {
	return m.labels[idx]
}

// Labels returns the distinct non-zero labels in ascending order.
func (m *LabelMask) Labels() []int32 {
	seen := make(map[int32]struct{})
	for _, l := range m.labels {
		if l != 0 {
			seen[l] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of voxels carrying label.
func (m *LabelMask) Count(label int32) int {
	n := 0
	for _, l := range m.labels {
		if l == label {
			n++
		}
	}
	return n
}

// DimensionMismatchError reports a mask whose shape or spacing disagrees
// with the volume it is paired with.
type DimensionMismatchError struct {
	GridDims, MaskDims       Dims
	GridSpacing, MaskSpacing [3]float64
}

func (e *DimensionMismatchError) Error() string {
	if e.GridDims != e.MaskDims {
		return fmt.Sprintf("dimension mismatch: volume is %v, mask is %v", e.GridDims, e.MaskDims)
	}
	return fmt.Sprintf("spacing mismatch: volume is %v, mask is %v", e.GridSpacing, e.MaskSpacing)
}

const spacingTolerance = 1e-6

// CheckCompatible verifies that mask and grid share dimensions and spacing.
// It only inspects the headers, never voxel data.
func CheckCompatible(g *Grid, m *LabelMask) error {
	if g == nil || m == nil {
		return fmt.Errorf("nil volume or mask")
	}
	return compareHeaders(g.Dims(), g.Spacing(), m.Dims(), m.Spacing())
}

// CheckSameHeader verifies that two masks share dimensions and spacing, with
// the same spacing tolerance as CheckCompatible. ref plays the volume's role
// in the returned error.
func CheckSameHeader(ref, m *LabelMask) error {
	if ref == nil || m == nil {
		return fmt.Errorf("nil mask")
	}
	return compareHeaders(ref.Dims(), ref.Spacing(), m.Dims(), m.Spacing())
}

func compareHeaders(refDims Dims, refSpacing [3]float64, dims Dims, spacing [3]float64) error {
	err := &DimensionMismatchError{
		GridDims:    refDims,
		MaskDims:    dims,
		GridSpacing: refSpacing,
		MaskSpacing: spacing,
	}
	if refDims != dims {
		return err
	}
	for a := 0; a < 3; a++ {
		gs, ms := refSpacing[a], spacing[a]
		if math.Abs(gs-ms) > spacingTolerance*math.Max(gs, ms) {
			return err
		}
	}
	return nil
}
