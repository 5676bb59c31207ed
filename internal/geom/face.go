package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/wildstyl3r/lpt/internal/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrDegenerateFace = errors.New("degenerate boundary face")

// Face is a boundary element: a line segment in the xy plane (2 vertices) or a
// triangle (3 vertices), tagged with the integer id of the surface it belongs to.
type Face struct {
	Vertices  []r3.Vec
	SurfaceID int
}

func (f Face) validate(index int) error {
	switch len(f.Vertices) {
	case 2:
		if r3.Norm(r3.Sub(f.Vertices[1], f.Vertices[0])) == 0 {
			return fmt.Errorf("face %d: %w (zero length segment)", index, ErrDegenerateFace)
		}
	case 3:
		if (r3.Triangle{f.Vertices[0], f.Vertices[1], f.Vertices[2]}).IsDegenerate(0) {
			return fmt.Errorf("face %d: %w (collinear triangle)", index, ErrDegenerateFace)
		}
	default:
		return fmt.Errorf("face %d: %w (%d vertices)", index, ErrDegenerateFace, len(f.Vertices))
	}
	return nil
}

func (f Face) box() r3.Box {
	b := r3.Box{Min: f.Vertices[0], Max: f.Vertices[0]}
	for _, v := range f.Vertices[1:] {
		b = utils.BoxUnion(b, r3.Box{Min: v, Max: v})
	}
	return b
}

// intersect returns the parametric position along p0->p1 where the segment
// crosses the face, and the unit face normal (orientation unspecified).
func (f Face) intersect(p0, p1 r3.Vec) (t float64, normal r3.Vec, ok bool) {
	if len(f.Vertices) == 2 {
		return intersectSegment(f.Vertices[0], f.Vertices[1], p0, p1)
	}
	return intersectTriangle(f.Vertices[0], f.Vertices[1], f.Vertices[2], p0, p1)
}

// intersectTriangle is the Möller–Trumbore test restricted to t in [0,1].
func intersectTriangle(a, b, c, p0, p1 r3.Vec) (float64, r3.Vec, bool) {
	const eps = 1e-14
	dir := r3.Sub(p1, p0)
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	h := r3.Cross(dir, e2)
	det := r3.Dot(e1, h)
	if math.Abs(det) < eps*r3.Norm(e1)*r3.Norm(e2)*r3.Norm(dir) {
		return 0, r3.Vec{}, false // parallel to the plane
	}
	inv := 1. / det
	s := r3.Sub(p0, a)
	u := inv * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return 0, r3.Vec{}, false
	}
	q := r3.Cross(s, e1)
	v := inv * r3.Dot(dir, q)
	if v < 0 || u+v > 1 {
		return 0, r3.Vec{}, false
	}
	t := inv * r3.Dot(e2, q)
	if t < 0 || t > 1 {
		return 0, r3.Vec{}, false
	}
	return t, r3.Unit(r3.Triangle{a, b, c}.Normal()), true
}

// intersectSegment tests the xy projection of p0->p1 against the segment ab.
func intersectSegment(a, b, p0, p1 r3.Vec) (float64, r3.Vec, bool) {
	const eps = 1e-14
	dx, dy := p1.X-p0.X, p1.Y-p0.Y
	ex, ey := b.X-a.X, b.Y-a.Y
	denom := dx*ey - dy*ex
	if math.Abs(denom) < eps*math.Hypot(dx, dy)*math.Hypot(ex, ey) {
		return 0, r3.Vec{}, false
	}
	sx, sy := a.X-p0.X, a.Y-p0.Y
	t := (sx*ey - sy*ex) / denom
	u := (sx*dy - sy*dx) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, r3.Vec{}, false
	}
	return t, r3.Unit(r3.Vec{X: ey, Y: -ex}), true
}
