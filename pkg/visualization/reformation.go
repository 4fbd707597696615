package visualization

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	"volgeom/pkg/reformation"
)

// DefaultDisplaySigma is the blur applied to reformations wider than
// minBlurColumns.
const DefaultDisplaySigma = 0.5

const minBlurColumns = 5

// ReformationOptions controls how a reformation grid becomes an image.
type ReformationOptions struct {
	// Window maps sample values to gray. A non-positive width selects the
	// finite range of the grid.
	Window Window

	// DisplaySigma blurs the image for display when it has more than five
	// columns. Zero disables the blur.
	DisplaySigma float64

	// Scale enlarges the image by an integer factor with Lanczos resampling.
	Scale int
}

// RenderReformation draws g with one pixel per sample: x is the column
// (arclength) and y the row (perpendicular offset).
func RenderReformation(g *reformation.Grid, opts ReformationOptions) image.Image {
	m, k := g.Shape()
	w := opts.Window
	if w.Width <= 0 {
		w = FullRange(g.Range())
	}

	img := image.NewGray16(image.Rect(0, 0, m, k))
	for col := 0; col < m; col++ {
		for row := 0; row < k; row++ {
			img.SetGray16(col, row, w.Gray16(g.Values[col][row]))
		}
	}

	var out image.Image = img
	if opts.DisplaySigma > 0 && m > minBlurColumns {
		out = blur.Gaussian(img, opts.DisplaySigma)
	}
	if opts.Scale > 1 {
		out = imaging.Resize(out, m*opts.Scale, k*opts.Scale, imaging.Lanczos)
	}
	return out
}
