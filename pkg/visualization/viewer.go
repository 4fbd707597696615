// Package visualization renders volume slices and reformations as
// grayscale images for inspection and export.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"volgeom/pkg/volume"
)

// Plane selects an orthogonal slice orientation.
type Plane int

const (
	// Axial slices are perpendicular to k; the image spans i (x) and j (y).
	Axial Plane = iota
	// Coronal slices are perpendicular to j; the image spans i (x) and k (y).
	Coronal
	// Sagittal slices are perpendicular to i; the image spans k (x) and j (y).
	Sagittal
)

func (p Plane) String() string {
	switch p {
	case Axial:
		return "axial"
	case Coronal:
		return "coronal"
	case Sagittal:
		return "sagittal"
	}
	return fmt.Sprintf("Plane(%d)", int(p))
}

// ParsePlane accepts a plane name or the axis it is perpendicular to.
func ParsePlane(s string) (Plane, error) {
	switch strings.ToLower(s) {
	case "axial", "z":
		return Axial, nil
	case "coronal", "y":
		return Coronal, nil
	case "sagittal", "x":
		return Sagittal, nil
	}
	return 0, fmt.Errorf("invalid plane: %s (must be axial, coronal or sagittal)", s)
}

// Window maps intensities to gray levels: Center-Width/2 is black and
// Center+Width/2 is white.
type Window struct {
	Center float64
	Width  float64
}

// FullRange returns the window spanning [lo, hi].
func FullRange(lo, hi float64) Window {
	return Window{Center: (lo + hi) / 2, Width: hi - lo}
}

// Gray16 maps v through the window. NaN maps to black.
func (w Window) Gray16(v float64) color.Gray16 {
	if math.IsNaN(v) {
		return color.Gray16{}
	}
	if w.Width <= 0 {
		if v >= w.Center {
			return color.Gray16{Y: math.MaxUint16}
		}
		return color.Gray16{}
	}
	f := (v - (w.Center - w.Width/2)) / w.Width
	f = math.Max(0, math.Min(1, f))
	return color.Gray16{Y: uint16(math.Round(f * math.MaxUint16))}
}

// Viewer extracts orthogonal slices from a volume.
type Viewer struct {
	grid   *volume.Grid
	window Window
}

// NewViewer creates a viewer over grid. A window with non-positive width is
// replaced by the grid's full intensity range.
func NewViewer(grid *volume.Grid, window Window) *Viewer {
	if window.Width <= 0 {
		window = FullRange(grid.Min(), grid.Max())
	}
	return &Viewer{grid: grid, window: window}
}

// Window returns the display window in use.
func (v *Viewer) Window() Window { return v.window }

// SliceCount returns the number of slices along plane.
func (v *Viewer) SliceCount(plane Plane) int {
	d := v.grid.Dims()
	switch plane {
	case Coronal:
		return d.NY
	case Sagittal:
		return d.NX
	}
	return d.NZ
}

// ExtractSlice extracts the slice at position along plane.
func (v *Viewer) ExtractSlice(plane Plane, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if n := v.SliceCount(plane); position >= n {
		return nil, fmt.Errorf("position %d exceeds %s slice count %d", position, plane, n)
	}

	d := v.grid.Dims()
	var img *image.Gray16
	switch plane {
	case Axial:
		img = image.NewGray16(image.Rect(0, 0, d.NX, d.NY))
		for y := 0; y < d.NY; y++ {
			for x := 0; x < d.NX; x++ {
				img.SetGray16(x, y, v.window.Gray16(v.grid.At(x, y, position)))
			}
		}
	case Coronal:
		img = image.NewGray16(image.Rect(0, 0, d.NX, d.NZ))
		for z := 0; z < d.NZ; z++ {
			for x := 0; x < d.NX; x++ {
				img.SetGray16(x, z, v.window.Gray16(v.grid.At(x, position, z)))
			}
		}
	case Sagittal:
		img = image.NewGray16(image.Rect(0, 0, d.NZ, d.NY))
		for y := 0; y < d.NY; y++ {
			for z := 0; z < d.NZ; z++ {
				img.SetGray16(z, y, v.window.Gray16(v.grid.At(position, y, z)))
			}
		}
	default:
		return nil, fmt.Errorf("invalid plane: %v", plane)
	}
	return img, nil
}

// SaveSlice writes img to filename. The format follows the extension
// (.png, .jpg, .tif, .bmp, .gif).
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return SaveImage(img, filename)
}

// SaveSliceSequence writes every slice along plane to outputDir as PNG.
func (v *Viewer) SaveSliceSequence(plane Plane, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for pos := 0; pos < v.SliceCount(plane); pos++ {
		img, err := v.ExtractSlice(plane, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", plane, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// SaveImage writes img to filename in the format given by its extension.
func SaveImage(img image.Image, filename string) error {
	if err := imaging.Save(img, filename, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to save image %s: %w", filename, err)
	}
	return nil
}
