package geom

import (
	"fmt"
	"math"

	"github.com/wildstyl3r/lpt/internal/config"
	"github.com/wildstyl3r/lpt/internal/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// Surface ids assigned by BoxBoundary and RectangleBoundary.
const (
	SurfaceXMin = iota + 1
	SurfaceXMax
	SurfaceYMin
	SurfaceYMax
	SurfaceZMin
	SurfaceZMax
)

// BoxBoundary triangulates the six sides of an axis-aligned box, two
// triangles per side.
func BoxBoundary(b r3.Box) []Face {
	corner := func(x, y, z int) r3.Vec {
		v := b.Min
		if x == 1 {
			v.X = b.Max.X
		}
		if y == 1 {
			v.Y = b.Max.Y
		}
		if z == 1 {
			v.Z = b.Max.Z
		}
		return v
	}
	quad := func(id int, a, b, c, d r3.Vec) []Face {
		return []Face{
			{Vertices: []r3.Vec{a, b, c}, SurfaceID: id},
			{Vertices: []r3.Vec{a, c, d}, SurfaceID: id},
		}
	}
	var faces []Face
	faces = append(faces, quad(SurfaceXMin, corner(0, 0, 0), corner(0, 1, 0), corner(0, 1, 1), corner(0, 0, 1))...)
	faces = append(faces, quad(SurfaceXMax, corner(1, 0, 0), corner(1, 1, 0), corner(1, 1, 1), corner(1, 0, 1))...)
	faces = append(faces, quad(SurfaceYMin, corner(0, 0, 0), corner(1, 0, 0), corner(1, 0, 1), corner(0, 0, 1))...)
	faces = append(faces, quad(SurfaceYMax, corner(0, 1, 0), corner(1, 1, 0), corner(1, 1, 1), corner(0, 1, 1))...)
	faces = append(faces, quad(SurfaceZMin, corner(0, 0, 0), corner(1, 0, 0), corner(1, 1, 0), corner(0, 1, 0))...)
	faces = append(faces, quad(SurfaceZMax, corner(0, 0, 1), corner(1, 0, 1), corner(1, 1, 1), corner(0, 1, 1))...)
	return faces
}

// RectangleBoundary returns the four edges of the xy projection of b as
// segments.
func RectangleBoundary(b r3.Box) []Face {
	p := func(x, y float64) r3.Vec { return r3.Vec{X: x, Y: y} }
	return []Face{
		{Vertices: []r3.Vec{p(b.Min.X, b.Min.Y), p(b.Min.X, b.Max.Y)}, SurfaceID: SurfaceXMin},
		{Vertices: []r3.Vec{p(b.Max.X, b.Min.Y), p(b.Max.X, b.Max.Y)}, SurfaceID: SurfaceXMax},
		{Vertices: []r3.Vec{p(b.Min.X, b.Min.Y), p(b.Max.X, b.Min.Y)}, SurfaceID: SurfaceYMin},
		{Vertices: []r3.Vec{p(b.Min.X, b.Max.Y), p(b.Max.X, b.Max.Y)}, SurfaceID: SurfaceYMax},
	}
}

// ReadBoundary loads faces from a text file with one face per line:
//
//	id x0 y0 z0 x1 y1 z1 [x2 y2 z2]
//
// Lines with two vertices are segments, lines with three are triangles.
func ReadBoundary(filename string) ([]Face, error) {
	rows, err := utils.ReadFloatRows(filename, 7, 10)
	if err != nil {
		return nil, fmt.Errorf("%w: boundary %s: %w", config.ErrConfiguration, filename, err)
	}
	faces := make([]Face, 0, len(rows))
	for i, row := range rows {
		if len(row) != 7 && len(row) != 10 {
			return nil, fmt.Errorf("%w: boundary %s row %d: expected 7 or 10 columns, got %d",
				config.ErrConfiguration, filename, i+1, len(row))
		}
		if row[0] != math.Trunc(row[0]) {
			return nil, fmt.Errorf("%w: boundary %s row %d: surface id %g is not an integer",
				config.ErrConfiguration, filename, i+1, row[0])
		}
		f := Face{SurfaceID: int(row[0])}
		for j := 1; j < len(row); j += 3 {
			f.Vertices = append(f.Vertices, r3.Vec{X: row[j], Y: row[j+1], Z: row[j+2]})
		}
		faces = append(faces, f)
	}
	return faces, nil
}
