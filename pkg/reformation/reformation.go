// Package reformation unrolls a volume along a curved path into a 2D image.
//
// A smooth curve is fitted through the control points and resampled at
// equal arclength steps. At every sample a rotation-minimising frame is
// built, and a line of points along the frame's binormal is sampled from
// the volume with trilinear interpolation. Column m of the result is the
// cross-section at the m-th curve sample; row k is a fixed perpendicular
// offset, with row K/2 on the curve itself.
package reformation

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/pkg/interpolation"
	"volgeom/pkg/volume"
)

// Params configures a reformation.
type Params struct {
	// Samples is the number of columns M. Zero or less picks a count from
	// the curve length with interpolation.AdaptiveSampleCount.
	Samples int

	// Rows is the number of perpendicular samples K per column.
	Rows int

	// Width is the world extent covered by the rows.
	Width float64

	// MarkerStride places an overlay marker every MarkerStride samples.
	MarkerStride int

	// Sentinel is the value policy for points outside the volume.
	Sentinel interpolation.SentinelPolicy

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultParams returns adaptive sampling with 80 rows one world unit apart
// and a marker on every tenth sample.
func DefaultParams() Params {
	return Params{
		Samples:      0,
		Rows:         80,
		Width:        80,
		MarkerStride: 10,
		Sentinel:     interpolation.SentinelMin(),
	}
}

// Grid holds the reformatted image. Values[m][k] is the sample at arclength
// index m and row k; Positions[m][k] is the world point it was taken from.
type Grid struct {
	Values    [][]float64
	Positions [][]r3.Vec

	// Spacing is the arclength between adjacent columns.
	Spacing float64

	// Width is the world extent of a column.
	Width float64
}

// Shape returns the number of columns and rows.
func (g *Grid) Shape() (m, k int) {
	if len(g.Values) == 0 {
		return 0, 0
	}
	return len(g.Values), len(g.Values[0])
}

// At returns the sample at column m, row k.
func (g *Grid) At(m, k int) float64 {
	return g.Values[m][k]
}

// Range returns the smallest and largest finite samples. An image with no
// finite sample reports (0, 0).
func (g *Grid) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, col := range g.Values {
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// Overlay is the geometry a 3D view draws on top of the volume to show
// where the reformation runs.
type Overlay struct {
	// Polyline is the resampled curve.
	Polyline []r3.Vec

	// Markers are every MarkerStride-th curve sample, starting at the first.
	Markers []r3.Vec

	// Entry and Exit are the first and last curve samples.
	Entry, Exit r3.Vec
}

// Status reports diagnostics of a reformation. Out-of-bounds samples are
// not errors.
type Status struct {
	Samples          int
	OutOfBounds      int
	OutOfBoundsRatio float64

	// Length is the arclength of the fitted curve.
	Length float64

	// Straight is set when the control points degraded to a segment.
	Straight bool
}

// Result bundles everything Fit produces.
type Result struct {
	Grid    *Grid
	Overlay *Overlay
	Frames  []Frame
	Status  Status
}

// Fit builds the reformation of g along path.
//
// Parameters:
//   - g: Volume to sample
//   - path: Control points in world coordinates, at least two
//   - p: Reformation parameters
//
// Returns:
//   - The image, overlay and per-sample frames
//   - *interpolation.DegenerateCurveError when path has fewer than two
//     points, or an error for non-positive Rows or Width
func Fit(g *volume.Grid, path []r3.Vec, p Params) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("nil volume")
	}
	if p.Rows < 1 {
		return nil, fmt.Errorf("rows must be positive, got %d", p.Rows)
	}
	if !(p.Width > 0) {
		return nil, fmt.Errorf("width must be positive, got %g", p.Width)
	}

	curve, err := interpolation.FitCurve(path, p.Samples)
	if err != nil {
		return nil, fmt.Errorf("fitting reformation curve: %w", err)
	}
	frames := TransportFrames(curve)
	sampler := interpolation.NewTrilinear(g, p.Sentinel)

	m, k := len(frames), p.Rows
	step := p.Width / float64(k)
	grid := &Grid{
		Values:    make([][]float64, m),
		Positions: make([][]r3.Vec, m),
		Width:     p.Width,
	}
	if m > 1 {
		grid.Spacing = curve.Length / float64(m-1)
	}

	outside := 0
	for i, f := range frames {
		values := make([]float64, k)
		positions := make([]r3.Vec, k)
		for row := 0; row < k; row++ {
			offset := float64(row-k/2) * step
			w := r3.Add(f.Point, r3.Scale(offset, f.Binormal))
			v, ok := sampler.Sample(w)
			if !ok {
				outside++
			}
			values[row] = v
			positions[row] = w
		}
		grid.Values[i] = values
		grid.Positions[i] = positions
	}

	total := m * k
	st := Status{
		Samples:          total,
		OutOfBounds:      outside,
		OutOfBoundsRatio: float64(outside) / float64(total),
		Length:           curve.Length,
		Straight:         curve.Straight,
	}
	logger(p).Debug("reformation sampled",
		"columns", m, "rows", k, "length", curve.Length, "outOfBounds", st.OutOfBoundsRatio)

	return &Result{
		Grid:    grid,
		Overlay: overlay(curve.Points, p.MarkerStride),
		Frames:  frames,
		Status:  st,
	}, nil
}

// FitReformation samples an m by k reformation of total width along path.
// m <= 0 selects an adaptive column count. Other settings come from params.
func FitReformation(g *volume.Grid, path []r3.Vec, m, k int, width float64, params Params) (*Grid, *Overlay, Status, error) {
	params.Samples = m
	params.Rows = k
	params.Width = width
	res, err := Fit(g, path, params)
	if err != nil {
		return nil, nil, Status{}, err
	}
	return res.Grid, res.Overlay, res.Status, nil
}

func overlay(points []r3.Vec, stride int) *Overlay {
	o := &Overlay{
		Polyline: append([]r3.Vec(nil), points...),
		Entry:    points[0],
		Exit:     points[len(points)-1],
	}
	if stride < 1 {
		stride = 1
	}
	for i := 0; i < len(points); i += stride {
		o.Markers = append(o.Markers, points[i])
	}
	return o
}

func logger(p Params) *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}
