package interpolation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// spanSubdivisions is the number of chords per spline span used to
	// build the arclength table.
	spanSubdivisions = 32

	// collinearTolerance is relative to the path length.
	collinearTolerance = 1e-6

	// duplicateTolerance is relative to the path length.
	duplicateTolerance = 1e-9
)

// DegenerateCurveError is returned when fewer than two control points are
// supplied.
type DegenerateCurveError struct {
	Points int
}

func (e *DegenerateCurveError) Error() string {
	return fmt.Sprintf("degenerate curve: need at least 2 control points, got %d", e.Points)
}

// Curve is a densified, arclength-parametrised path. Curves are values:
// regenerate one from the control points instead of editing it.
type Curve struct {
	// Points are samples equally spaced by arclength, first and last
	// coinciding with the path ends
	Points []r3.Vec

	// Tangents are unit vectors, one per point
	Tangents []r3.Vec

	// Length is the arclength of the fitted curve
	Length float64

	// Straight is set when the input degraded to a straight segment
	Straight bool
}

// AdaptiveSampleCount picks a sample count from the path length: two
// samples per unit, clamped to [200, 300].
func AdaptiveSampleCount(length float64) int {
	n := int(length * 2)
	if n < 200 {
		n = 200
	}
	if n > 300 {
		n = 300
	}
	return n
}

// FitCurve fits a C2 interpolating cubic through points and resamples it at
// samples arclength-equidistant positions. samples <= 0 selects
// AdaptiveSampleCount. Coincident or collinear inputs yield a straight
// segment instead of a singular fit.
func FitCurve(points []r3.Vec, samples int) (*Curve, error) {
	if len(points) < 2 {
		return nil, &DegenerateCurveError{Points: len(points)}
	}

	total := 0.0
	for i := 1; i < len(points); i++ {
		total += r3.Norm(r3.Sub(points[i], points[i-1]))
	}
	if samples <= 0 {
		samples = AdaptiveSampleCount(total)
	}
	if samples < 2 {
		samples = 2
	}

	distinct := dedupe(points, duplicateTolerance*math.Max(total, 1))
	if len(distinct) < 2 {
		return pointCurve(points[0], samples), nil
	}
	if len(distinct) == 2 || collinear(distinct, collinearTolerance*math.Max(total, 1)) {
		a, b := extent(distinct)
		return straightCurve(a, b, samples), nil
	}
	return splineCurve(distinct, samples)
}

func dedupe(points []r3.Vec, eps float64) []r3.Vec {
	out := []r3.Vec{points[0]}
	for _, p := range points[1:] {
		if r3.Norm(r3.Sub(p, out[len(out)-1])) > eps {
			out = append(out, p)
		}
	}
	return out
}

func farthest(points []r3.Vec, from r3.Vec) r3.Vec {
	best, bestDist := points[0], -1.0
	for _, p := range points {
		if d := r3.Norm2(r3.Sub(p, from)); d > bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// extent returns the two extreme points of collinear points along their
// common line, ordered to follow the path from its first to its last point.
func extent(points []r3.Vec) (r3.Vec, r3.Vec) {
	origin := points[0]
	dir := r3.Unit(r3.Sub(farthest(points, origin), origin))
	lo, hi := origin, origin
	tlo, thi := 0.0, 0.0
	for _, p := range points {
		t := r3.Dot(r3.Sub(p, origin), dir)
		if t < tlo {
			lo, tlo = p, t
		}
		if t > thi {
			hi, thi = p, t
		}
	}
	if r3.Dot(r3.Sub(points[len(points)-1], origin), dir) < 0 {
		return hi, lo
	}
	return lo, hi
}

// collinear reports whether every point lies within eps of the line through
// the first point and the point farthest from it.
func collinear(points []r3.Vec, eps float64) bool {
	a := points[0]
	b := farthest(points, a)
	dir := r3.Sub(b, a)
	n := r3.Norm(dir)
	if n == 0 {
		return true
	}
	dir = r3.Scale(1/n, dir)
	for _, p := range points {
		if r3.Norm(r3.Cross(r3.Sub(p, a), dir)) > eps {
			return false
		}
	}
	return true
}

func pointCurve(p r3.Vec, samples int) *Curve {
	c := &Curve{
		Points:   make([]r3.Vec, samples),
		Tangents: make([]r3.Vec, samples),
		Straight: true,
	}
	for i := range c.Points {
		c.Points[i] = p
		c.Tangents[i] = r3.Vec{X: 1}
	}
	return c
}

func straightCurve(a, b r3.Vec, samples int) *Curve {
	d := r3.Sub(b, a)
	length := r3.Norm(d)
	tangent := r3.Scale(1/length, d)
	c := &Curve{
		Points:   make([]r3.Vec, samples),
		Tangents: make([]r3.Vec, samples),
		Length:   length,
		Straight: true,
	}
	for i := 0; i < samples; i++ {
		f := float64(i) / float64(samples-1)
		c.Points[i] = r3.Add(a, r3.Scale(f, d))
		c.Tangents[i] = tangent
	}
	c.Points[samples-1] = b
	return c
}

type splineXYZ struct {
	x, y, z interp.NaturalCubic
}

func (s *splineXYZ) at(t float64) r3.Vec {
	return r3.Vec{X: s.x.Predict(t), Y: s.y.Predict(t), Z: s.z.Predict(t)}
}

func (s *splineXYZ) derivative(t float64) r3.Vec {
	return r3.Vec{X: s.x.PredictDerivative(t), Y: s.y.PredictDerivative(t), Z: s.z.PredictDerivative(t)}
}

func splineCurve(points []r3.Vec, samples int) (*Curve, error) {
	n := len(points)
	knots := make([]float64, n)
	xs, ys, zs := make([]float64, n), make([]float64, n), make([]float64, n)
	for i, p := range points {
		if i > 0 {
			knots[i] = knots[i-1] + r3.Norm(r3.Sub(p, points[i-1]))
		}
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}

	var s splineXYZ
	for _, axis := range []struct {
		name   string
		spline *interp.NaturalCubic
		values []float64
	}{{"x", &s.x, xs}, {"y", &s.y, ys}, {"z", &s.z, zs}} {
		if err := axis.spline.Fit(knots, axis.values); err != nil {
			return nil, fmt.Errorf("fitting %s spline: %w", axis.name, err)
		}
	}

	// Arclength table over the parameter domain.
	steps := (n - 1) * spanSubdivisions
	params := make([]float64, steps+1)
	arc := make([]float64, steps+1)
	prev := s.at(0)
	for i := 1; i <= steps; i++ {
		span, sub := (i-1)/spanSubdivisions, (i-1)%spanSubdivisions+1
		t := knots[span] + (knots[span+1]-knots[span])*float64(sub)/spanSubdivisions
		if sub == spanSubdivisions {
			t = knots[span+1]
		}
		p := s.at(t)
		params[i] = t
		arc[i] = arc[i-1] + r3.Norm(r3.Sub(p, prev))
		prev = p
	}
	length := arc[steps]

	c := &Curve{
		Points:   make([]r3.Vec, samples),
		Tangents: make([]r3.Vec, samples),
		Length:   length,
	}
	for i := 0; i < samples; i++ {
		target := length * float64(i) / float64(samples-1)
		t := paramAt(params, arc, target)
		if i == 0 {
			t = 0
		} else if i == samples-1 {
			t = knots[n-1]
		}
		c.Points[i] = s.at(t)
		c.Tangents[i] = s.derivative(t)
	}
	for i, d := range c.Tangents {
		if nd := r3.Norm(d); nd > 0 {
			c.Tangents[i] = r3.Scale(1/nd, d)
			continue
		}
		c.Tangents[i] = finiteDifference(c.Points, i)
	}
	return c, nil
}

// paramAt inverts the arclength table by linear interpolation.
func paramAt(params, arc []float64, s float64) float64 {
	j := sort.SearchFloat64s(arc, s)
	if j <= 0 {
		return params[0]
	}
	if j >= len(arc) {
		return params[len(params)-1]
	}
	ds := arc[j] - arc[j-1]
	if ds == 0 {
		return params[j]
	}
	return params[j-1] + (params[j]-params[j-1])*(s-arc[j-1])/ds
}

func finiteDifference(points []r3.Vec, i int) r3.Vec {
	lo, hi := i-1, i+1
	if lo < 0 {
		lo = 0
	}
	if hi >= len(points) {
		hi = len(points) - 1
	}
	d := r3.Sub(points[hi], points[lo])
	if n := r3.Norm(d); n > 0 {
		return r3.Scale(1/n, d)
	}
	return r3.Vec{X: 1}
}
