package geom

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/wildstyl3r/lpt/internal/config"
	"github.com/wildstyl3r/lpt/internal/constants"
	"gonum.org/v1/gonum/spatial/r3"
)

// Hit describes the first crossing of a segment with the boundary.
type Hit struct {
	Point     r3.Vec
	T         float64 // parametric position along p0->p1, in (0,1]
	Face      int
	SurfaceID int
	Normal    r3.Vec // unit normal, Dot(Normal, p1-p0) > 0

	// Coincident lists the other faces crossed at the same T whose planes
	// differ from Normal's, in face order.
	Coincident []Hit
}

// Locator answers segment/boundary intersection queries over a set of faces
// indexed by a bounding volume hierarchy. It is safe for concurrent reads;
// Rebuild, Update and SetOpen must not run concurrently with Intersect.
type Locator struct {
	faces []Face
	boxes []r3.Box
	tree  bvh
	open  map[int]bool
	dims  int
}

func NewLocator(faces []Face, open ...int) (*Locator, error) {
	l := &Locator{open: make(map[int]bool)}
	if err := l.Update(faces); err != nil {
		return nil, err
	}
	l.SetOpen(open...)
	return l, nil
}

// Update replaces the boundary geometry and rebuilds the index.
func (l *Locator) Update(faces []Face) error {
	if len(faces) == 0 {
		return fmt.Errorf("%w: boundary has no faces", config.ErrConfiguration)
	}
	dims := 0
	for i, f := range faces {
		if err := f.validate(i); err != nil {
			return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		d := len(f.Vertices)
		if dims == 0 {
			dims = d
		} else if d != dims {
			return fmt.Errorf("%w: face %d mixes segments and triangles", config.ErrConfiguration, i)
		}
	}
	l.faces = make([]Face, len(faces))
	for i, f := range faces {
		l.faces[i] = Face{Vertices: append([]r3.Vec(nil), f.Vertices...), SurfaceID: f.SurfaceID}
	}
	l.dims = dims
	l.boxes = make([]r3.Box, len(faces))
	for i, f := range l.faces {
		l.boxes[i] = f.box()
	}
	l.tree = buildBVH(l.boxes, dims == 2)
	return nil
}

// MoveVertices applies fn to every vertex in place and refits the index.
func (l *Locator) MoveVertices(fn func(face, vertex int, v r3.Vec) r3.Vec) error {
	for i := range l.faces {
		for j, v := range l.faces[i].Vertices {
			l.faces[i].Vertices[j] = fn(i, j, v)
		}
		if err := l.faces[i].validate(i); err != nil {
			return err
		}
	}
	l.Rebuild()
	return nil
}

// Rebuild refits the hierarchy to the current vertex positions.
func (l *Locator) Rebuild() {
	for i, f := range l.faces {
		l.boxes[i] = f.box()
	}
	l.tree.refit(l.boxes)
}

// Intersect returns the first crossing of p0->p1 with the boundary. Crossings
// closer than constants.IntersectionEpsilon to p0 are ignored, and crossings
// at equal parametric distance resolve to the lowest face index.
func (l *Locator) Intersect(p0, p1 r3.Vec) (Hit, bool) {
	return l.intersect(p0, p1, func(int) bool { return true })
}

// IntersectAfter is Intersect for a segment that starts on the faces just
// left behind: the epsilon rule only applies to those faces, so a wall met
// right next to them is still reported.
func (l *Locator) IntersectAfter(p0, p1 r3.Vec, left []int) (Hit, bool) {
	return l.intersect(p0, p1, func(face int) bool { return slices.Contains(left, face) })
}

func (l *Locator) intersect(p0, p1 r3.Vec, near func(face int) bool) (Hit, bool) {
	dir := r3.Sub(p1, p0)
	length := r3.Norm(dir)
	if length == 0 {
		return Hit{}, false
	}
	if l.dims == 2 && math.Hypot(dir.X, dir.Y) == 0 {
		return Hit{}, false
	}
	best := Hit{T: math.Inf(1), Face: -1}
	var candidates []Hit
	tMax := func() float64 { return best.T + constants.TieTolerance }
	l.tree.visit(p0, p1, tMax, func(face int) {
		t, n, ok := l.faces[face].intersect(p0, p1)
		if !ok || t <= 0 || (t*length < constants.IntersectionEpsilon && near(face)) {
			return
		}
		candidates = append(candidates, Hit{T: t, Face: face, Normal: n})
		switch {
		case t < best.T-constants.TieTolerance:
		case t <= best.T+constants.TieTolerance && face < best.Face:
		default:
			return
		}
		best = Hit{T: t, Face: face, Normal: n}
	})
	if best.Face < 0 {
		return Hit{}, false
	}
	best = l.finish(best, p0, dir)

	// faces met at the same point on other planes: corners and edges
	slices.SortFunc(candidates, func(a, b Hit) int { return a.Face - b.Face })
	planes := []r3.Vec{best.Normal}
	for _, c := range candidates {
		if c.Face == best.Face || math.Abs(c.T-best.T) > constants.TieTolerance {
			continue
		}
		c = l.finish(c, p0, dir)
		if slices.ContainsFunc(planes, func(n r3.Vec) bool { return r3.Dot(n, c.Normal) > 1-1e-9 }) {
			continue
		}
		planes = append(planes, c.Normal)
		best.Coincident = append(best.Coincident, c)
	}
	return best, true
}

func (l *Locator) finish(h Hit, p0, dir r3.Vec) Hit {
	if r3.Dot(h.Normal, dir) < 0 {
		h.Normal = r3.Scale(-1, h.Normal)
	}
	h.Point = r3.Add(p0, r3.Scale(h.T, dir))
	h.SurfaceID = l.faces[h.Face].SurfaceID
	return h
}

func (l *Locator) SurfaceID(face int) (int, error) {
	if face < 0 || face >= len(l.faces) {
		return 0, fmt.Errorf("face index %d out of range [0,%d)", face, len(l.faces))
	}
	return l.faces[face].SurfaceID, nil
}

// SetOpen flags surface ids as inlets/outlets. Hits on open surfaces are
// exits rather than rebounds.
func (l *Locator) SetOpen(ids ...int) {
	for _, id := range ids {
		l.open[id] = true
	}
}

func (l *Locator) IsOpen(id int) bool {
	return l.open[id]
}

// OpenSurfaces lists the open surface ids in increasing order.
func (l *Locator) OpenSurfaces() []int {
	ids := make([]int, 0, len(l.open))
	for id := range l.open {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SurfaceIDs lists the distinct surface ids in increasing order.
func (l *Locator) SurfaceIDs() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, f := range l.faces {
		if !seen[f.SurfaceID] {
			seen[f.SurfaceID] = true
			ids = append(ids, f.SurfaceID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Bounds is the bounding box of all faces. For segment boundaries the z
// extent is unbounded.
func (l *Locator) Bounds() r3.Box {
	if len(l.tree.nodes) == 0 {
		return r3.Box{}
	}
	b := l.tree.nodes[0].box
	if l.dims == 2 {
		b.Min.Z, b.Max.Z = math.Inf(-1), math.Inf(1)
	}
	return b
}

// Dimensions is 2 for segment boundaries and 3 for triangulated ones.
func (l *Locator) Dimensions() int { return l.dims }

func (l *Locator) Faces() []Face { return l.faces }

// Contains reports whether x lies inside the bounds padded by pad on every side.
func (l *Locator) Contains(x r3.Vec, pad float64) bool {
	b := l.Bounds()
	return b.Min.X-pad <= x.X && x.X <= b.Max.X+pad &&
		b.Min.Y-pad <= x.Y && x.Y <= b.Max.Y+pad &&
		b.Min.Z-pad <= x.Z && x.Z <= b.Max.Z+pad
}
