package reformation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/pkg/interpolation"
)

// helperSwitch is the |t·Z| above which the first normal is seeded from Y
// instead of Z.
const helperSwitch = 0.9

// Frame is an orthonormal basis attached to one curve sample.
type Frame struct {
	Point    r3.Vec
	Tangent  r3.Vec
	Normal   r3.Vec
	Binormal r3.Vec
}

// TransportFrames returns rotation-minimising frames along c. The first
// normal is perpendicular to the first tangent and a helper axis; every
// following normal is the previous one rotated by the smallest rotation
// that carries the previous tangent onto the current one.
func TransportFrames(c *interpolation.Curve) []Frame {
	frames := make([]Frame, len(c.Points))
	if len(frames) == 0 {
		return frames
	}

	t := c.Tangents[0]
	n := seedNormal(t)
	frames[0] = Frame{Point: c.Points[0], Tangent: t, Normal: n, Binormal: r3.Cross(t, n)}

	for i := 1; i < len(frames); i++ {
		prev := c.Tangents[i-1]
		t = c.Tangents[i]
		n = rotate(n, prev, t)

		// Re-orthogonalise against drift.
		n = r3.Sub(n, r3.Scale(r3.Dot(n, t), t))
		if l := r3.Norm(n); l > 1e-12 {
			n = r3.Scale(1/l, n)
		} else {
			n = seedNormal(t)
		}
		frames[i] = Frame{Point: c.Points[i], Tangent: t, Normal: n, Binormal: r3.Cross(t, n)}
	}
	return frames
}

func seedNormal(t r3.Vec) r3.Vec {
	helper := r3.Vec{Z: 1}
	if math.Abs(r3.Dot(t, helper)) >= helperSwitch {
		helper = r3.Vec{Y: 1}
	}
	return r3.Unit(r3.Cross(t, helper))
}

// rotate applies to v the rotation about from×to that takes from onto to
// (Rodrigues' formula). Parallel or antiparallel tangents leave v unchanged.
func rotate(v, from, to r3.Vec) r3.Vec {
	axis := r3.Cross(from, to)
	s := r3.Norm(axis)
	if s < 1e-12 {
		return v
	}
	k := r3.Scale(1/s, axis)
	c := r3.Dot(from, to)
	// from and to are unit vectors, so |axis| = sin and dot = cos.
	return r3.Add(r3.Add(
		r3.Scale(c, v),
		r3.Scale(s, r3.Cross(k, v))),
		r3.Scale(r3.Dot(k, v)*(1-c), k))
}
