// Package mask turns one label of a segmentation into a cleaned binary
// region ready for smoothing and surface extraction.
package mask

import (
	"fmt"

	"volgeom/internal/models"
	"volgeom/pkg/volume"
)

// Options controls the cleaning steps. Every step is deterministic.
type Options struct {
	// FillHoles fills background cavities fully enclosed by the label
	FillHoles bool `yaml:"fillHoles" toml:"fillHoles"`

	// MinComponentVoxels removes 26-connected components smaller than this
	MinComponentVoxels int `yaml:"minComponentVoxels" toml:"minComponentVoxels"`

	// KeepLargestOnly keeps only the largest surviving component
	KeepLargestOnly bool `yaml:"keepLargestOnly" toml:"keepLargestOnly"`

	// MinRawVoxels rejects labels with fewer raw voxels before cleaning
	MinRawVoxels int `yaml:"minRawVoxels" toml:"minRawVoxels"`
}

// DefaultOptions returns the cleaning used by the surface pipeline.
func DefaultOptions() Options {
	return Options{
		FillHoles:          true,
		MinComponentVoxels: 10,
		KeepLargestOnly:    true,
	}
}

// EmptyRegionError reports a label that has nothing left to mesh.
type EmptyRegionError struct {
	Label  int32
	Reason string
}

func (e *EmptyRegionError) Error() string {
	return fmt.Sprintf("label %d: empty region (%s)", e.Label, e.Reason)
}

// Isolate extracts label as a binary field.
func Isolate(m *volume.LabelMask, label int32) *models.Binary {
	b := models.NewBinary(m.Dims())
	for i := range b.Data {
		b.Data[i] = m.AtIndex(i) == label
	}
	return b
}

// Preprocess isolates label, fills enclosed holes and drops small
// components. It fails with *EmptyRegionError when no foreground survives.
func Preprocess(m *volume.LabelMask, label int32, opts Options) (*models.Binary, error) {
	b := Isolate(m, label)
	raw := b.Count()
	if raw == 0 {
		return nil, &EmptyRegionError{Label: label, Reason: "no voxels"}
	}
	if raw < opts.MinRawVoxels {
		return nil, &EmptyRegionError{Label: label, Reason: fmt.Sprintf("%d voxels below minimum %d", raw, opts.MinRawVoxels)}
	}

	if opts.FillHoles {
		FillHoles(b)
	}
	FilterComponents(b, opts.MinComponentVoxels, opts.KeepLargestOnly)

	if b.Count() == 0 {
		return nil, &EmptyRegionError{Label: label, Reason: "no component survived cleaning"}
	}
	return b, nil
}
