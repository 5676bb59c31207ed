package geom

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wildstyl3r/lpt/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

func floor() []Face {
	return []Face{
		{Vertices: []r3.Vec{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}}, SurfaceID: 7},
		{Vertices: []r3.Vec{{X: -1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}, SurfaceID: 7},
	}
}

func unitBox() r3.Box {
	return r3.Box{Min: r3.Vec{}, Max: r3.Vec{X: 1, Y: 1, Z: 1}}
}

func TestIntersectPlane(t *testing.T) {
	loc, err := NewLocator(floor())
	require.NoError(t, err)

	tests := []struct {
		name   string
		p0, p1 r3.Vec
		hit    bool
		t      float64
	}{
		{"above", r3.Vec{Z: 2}, r3.Vec{X: 0.5, Z: 1}, false, 0},
		{"below", r3.Vec{Z: -2}, r3.Vec{Z: -1}, false, 0},
		{"crossing", r3.Vec{Z: 1}, r3.Vec{Z: -1}, true, 0.5},
		{"ending on plane", r3.Vec{Z: 1}, r3.Vec{}, true, 1},
		{"upward crossing", r3.Vec{X: 0.2, Y: 0.3, Z: -0.25}, r3.Vec{X: 0.2, Y: 0.3, Z: 0.75}, true, 0.25},
		{"outside face", r3.Vec{X: 3, Z: 1}, r3.Vec{X: 3, Z: -1}, false, 0},
		{"starting on plane", r3.Vec{}, r3.Vec{Z: -1}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := loc.Intersect(tt.p0, tt.p1)
			require.Equal(t, tt.hit, ok)
			if !ok {
				return
			}
			assert.InDelta(t, tt.t, hit.T, 1e-12)
			assert.Equal(t, 7, hit.SurfaceID)
			assert.InDelta(t, 0, hit.Point.Z, 1e-12)
			assert.Greater(t, r3.Dot(hit.Normal, r3.Sub(tt.p1, tt.p0)), 0.)
			assert.InDelta(t, 1, r3.Norm(hit.Normal), 1e-12)
		})
	}
}

func TestIntersectRejectsNearStart(t *testing.T) {
	loc, err := NewLocator(floor())
	require.NoError(t, err)

	_, ok := loc.Intersect(r3.Vec{Z: 1e-9}, r3.Vec{Z: -1})
	assert.False(t, ok)

	hit, ok := loc.Intersect(r3.Vec{Z: 1e-6}, r3.Vec{Z: -1})
	require.True(t, ok)
	assert.InDelta(t, 1e-6/(1+1e-6), hit.T, 1e-12)
}

func TestIntersectFirstHitAndTies(t *testing.T) {
	loc, err := NewLocator(BoxBoundary(unitBox()))
	require.NoError(t, err)

	hit, ok := loc.Intersect(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 0.5, Y: 0.5, Z: -2})
	require.True(t, ok)
	assert.Equal(t, SurfaceZMin, hit.SurfaceID)
	assert.InDelta(t, 0.2, hit.T, 1e-12)
	assert.InDelta(t, -1, hit.Normal.Z, 1e-12)

	// diagonal of the z-min quad is shared by faces 8 and 9
	hit, ok = loc.Intersect(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 0.5, Y: 0.5, Z: -0.5})
	require.True(t, ok)
	assert.Equal(t, 8, hit.Face)

	// corner: x-max and y-max are hit at the same t, lower face index wins
	hit, ok = loc.Intersect(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: 1.5, Y: 1.5, Z: 0.5})
	require.True(t, ok)
	assert.Equal(t, SurfaceXMax, hit.SurfaceID)
	assert.InDelta(t, 0.5, hit.T, 1e-12)
	require.Len(t, hit.Coincident, 1)
	assert.Equal(t, SurfaceYMax, hit.Coincident[0].SurfaceID)
	assert.Equal(t, r3.Vec{Y: 1}, hit.Coincident[0].Normal)
	assert.Equal(t, hit.Point, hit.Coincident[0].Point)

	// vertex: one entry per wall, the two triangles of each wall collapse
	hit, ok = loc.Intersect(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vec{X: -0.5, Y: -0.5, Z: -0.5})
	require.True(t, ok)
	assert.Equal(t, SurfaceXMin, hit.SurfaceID)
	require.Len(t, hit.Coincident, 2)
	assert.Equal(t, SurfaceYMin, hit.Coincident[0].SurfaceID)
	assert.Equal(t, SurfaceZMin, hit.Coincident[1].SurfaceID)
}

func TestIntersectAfter(t *testing.T) {
	loc, err := NewLocator(BoxBoundary(unitBox()))
	require.NoError(t, err)

	// leaving x-min right next to y-min
	p0 := r3.Vec{X: 1e-6, Y: 1e-9, Z: 0.5}
	p1 := r3.Vec{X: 0.5, Y: -0.5, Z: 0.5}
	_, ok := loc.Intersect(p0, p1)
	assert.False(t, ok)

	hit, ok := loc.IntersectAfter(p0, p1, []int{0, 1})
	require.True(t, ok)
	assert.Equal(t, SurfaceYMin, hit.SurfaceID)
	assert.Equal(t, r3.Vec{Y: -1}, hit.Normal)

	// the faces just left keep the epsilon rule
	_, ok = loc.IntersectAfter(r3.Vec{X: 1e-9, Y: 0.5, Z: 0.5}, r3.Vec{X: -1, Y: 0.5, Z: 0.5}, []int{0, 1})
	assert.False(t, ok)
}

func TestSegmentBoundary(t *testing.T) {
	loc, err := NewLocator(RectangleBoundary(r3.Box{Max: r3.Vec{X: 2, Y: 1}}), SurfaceXMax)
	require.NoError(t, err)
	assert.Equal(t, 2, loc.Dimensions())

	hit, ok := loc.Intersect(r3.Vec{X: 1, Y: 0.5, Z: 3}, r3.Vec{X: 3, Y: 0.5, Z: 3})
	require.True(t, ok)
	assert.Equal(t, SurfaceXMax, hit.SurfaceID)
	assert.True(t, loc.IsOpen(hit.SurfaceID))
	assert.InDelta(t, 0.5, hit.T, 1e-12)
	assert.InDelta(t, 1, hit.Normal.X, 1e-12)
	assert.Equal(t, 3., hit.Point.Z)

	_, ok = loc.Intersect(r3.Vec{X: 1, Y: 0.5}, r3.Vec{X: 1.5, Y: 0.6})
	assert.False(t, ok)
	assert.True(t, loc.Contains(r3.Vec{X: 1, Y: 0.5, Z: 100}, 0))
}

func TestRebuildAfterMotion(t *testing.T) {
	loc, err := NewLocator(floor())
	require.NoError(t, err)

	require.NoError(t, loc.MoveVertices(func(_, _ int, v r3.Vec) r3.Vec {
		return r3.Add(v, r3.Vec{Z: 2})
	}))
	hit, ok := loc.Intersect(r3.Vec{Z: 3}, r3.Vec{Z: 1})
	require.True(t, ok)
	assert.InDelta(t, 0.5, hit.T, 1e-12)
	assert.InDelta(t, 2, loc.Bounds().Min.Z, 0)

	require.NoError(t, loc.Update(BoxBoundary(unitBox())))
	assert.Len(t, loc.Faces(), 12)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, loc.SurfaceIDs())
	id, err := loc.SurfaceID(11)
	require.NoError(t, err)
	assert.Equal(t, SurfaceZMax, id)
	_, err = loc.SurfaceID(12)
	assert.Error(t, err)
}

func TestLocatorRejectsBadGeometry(t *testing.T) {
	_, err := NewLocator(nil)
	assert.True(t, errors.Is(err, config.ErrConfiguration))

	_, err = NewLocator([]Face{{Vertices: []r3.Vec{{}, {X: 1}, {X: 2}}}})
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.ErrorIs(t, err, ErrDegenerateFace)

	_, err = NewLocator(append(floor(), RectangleBoundary(unitBox())...))
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestReadBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walls.txt")
	content := "# id x0 y0 z0 x1 y1 z1 x2 y2 z2\n" +
		"3 0 0 0 1 0 0 1 1 0\n" +
		"\n" +
		"4 0 0 0 1 1 0 0 1 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	faces, err := ReadBoundary(path)
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, 4, faces[1].SurfaceID)
	assert.Equal(t, r3.Vec{X: 1, Y: 1}, faces[1].Vertices[1])

	require.NoError(t, os.WriteFile(path, []byte("1 0 0 0 1 0 0 1\n"), 0600))
	_, err = ReadBoundary(path)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	require.NoError(t, os.WriteFile(path, []byte("1.5 0 0 0 1 0 0 1 1 0\n"), 0600))
	_, err = ReadBoundary(path)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = ReadBoundary(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
