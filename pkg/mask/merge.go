package mask

import (
	"errors"
	"path/filepath"
	"strings"

	"volgeom/pkg/volume"
)

// ErrNoMasks is returned by Merge when no input contributed a label.
var ErrNoMasks = errors.New("no non-empty mask with matching shape")

// ErrNilMask marks a nil input to Merge.
var ErrNilMask = errors.New("nil mask")

// MergeEntry records what happened to one input of Merge.
type MergeEntry struct {
	// Index is the position of the input in the slice passed to Merge
	Index int

	// Label is the label assigned in the merged mask, 0 when skipped
	Label int32

	// Voxels is the number of non-zero voxels of the input
	Voxels int

	// Err explains why the input was skipped
	Err error
}

// Skipped reports whether the input did not contribute a label.
func (e MergeEntry) Skipped() bool { return e.Label == 0 }

// Merge combines per-structure masks into a single multi-label mask. Every
// non-zero voxel of an accepted input gets that input's label; labels are
// assigned 1, 2, ... in input order over the accepted inputs only, and later
// inputs overwrite earlier ones where they overlap. The first non-nil input
// defines the shape and spacing of the merged mask. Inputs whose dimensions
// or spacing differ from it are skipped with a *volume.DimensionMismatchError,
// empty inputs with an *EmptyRegionError and nil inputs with ErrNilMask.
func Merge(masks []*volume.LabelMask) (*volume.LabelMask, []MergeEntry, error) {
	if len(masks) == 0 {
		return nil, nil, ErrNoMasks
	}
	entries := make([]MergeEntry, len(masks))
	var ref *volume.LabelMask
	for i, m := range masks {
		entries[i].Index = i
		if m == nil {
			entries[i].Err = ErrNilMask
		} else if ref == nil {
			ref = m
		}
	}
	if ref == nil {
		return nil, entries, ErrNoMasks
	}
	dims, spacing := ref.Dims(), ref.Spacing()
	labels := make([]int32, dims.Len())

	next := int32(1)
	for i, m := range masks {
		if m == nil {
			continue
		}
		if err := volume.CheckSameHeader(ref, m); err != nil {
			entries[i].Err = err
			continue
		}
		n := 0
		for idx := range labels {
			if m.AtIndex(idx) != 0 {
				n++
			}
		}
		entries[i].Voxels = n
		if n == 0 {
			entries[i].Err = &EmptyRegionError{Reason: "empty mask"}
			continue
		}
		for idx := range labels {
			if m.AtIndex(idx) != 0 {
				labels[idx] = next
			}
		}
		entries[i].Label = next
		next++
	}
	if next == 1 {
		return nil, entries, ErrNoMasks
	}

	merged, err := volume.NewLabelMask(dims, labels, volume.WithSpacing(spacing[0], spacing[1], spacing[2]))
	if err != nil {
		return nil, entries, err
	}
	return merged, entries, nil
}

// PartName derives a structure name from a mask file name by dropping the
// directory and a trailing .nii or .nii.gz.
func PartName(filename string) string {
	name := filepath.Base(filename)
	switch {
	case strings.HasSuffix(name, ".nii.gz"):
		return strings.TrimSuffix(name, ".nii.gz")
	case strings.HasSuffix(name, ".nii"):
		return strings.TrimSuffix(name, ".nii")
	}
	return name
}
