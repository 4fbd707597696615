package models

import (
	"volgeom/pkg/volume"
)

// Binary is a 0/1 voxel field produced by mask preprocessing.
type Binary struct {
	// Dims are the voxel counts of the field
	Dims volume.Dims

	// Data holds one flag per voxel, x varying fastest
	Data []bool
}

// NewBinary allocates an all-background field.
func NewBinary(dims volume.Dims) *Binary {
	return &Binary{Dims: dims, Data: make([]bool, dims.Len())}
}

// Count returns the number of foreground voxels.
func (b *Binary) Count() int {
	n := 0
	for _, v := range b.Data {
		if v {
			n++
		}
	}
	return n
}

// At returns the flag of voxel (i,j,k); out-of-range voxels are background.
func (b *Binary) At(i, j, k int) bool {
	if !b.Dims.Contains(i, j, k) {
		return false
	}
	return b.Data[b.Dims.Index(i, j, k)]
}

// Field is a continuous scalar field on the voxel lattice, the input of
// isosurface extraction.
type Field struct {
	// Dims are the voxel counts of the field
	Dims volume.Dims

	// Data holds one value per voxel, x varying fastest
	Data []float64
}

// NewField allocates a zero field.
func NewField(dims volume.Dims) *Field {
	return &Field{Dims: dims, Data: make([]float64, dims.Len())}
}

// At returns the value of voxel (i,j,k).
func (f *Field) At(i, j, k int) float64 {
	return f.Data[f.Dims.Index(i, j, k)]
}

// FromBinary converts a binary field to 0/1 scalars.
func FromBinary(b *Binary) *Field {
	f := NewField(b.Dims)
	for i, v := range b.Data {
		if v {
			f.Data[i] = 1
		}
	}
	return f
}
