package field

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wildstyl3r/lpt/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

func linearVelocity(x r3.Vec) r3.Vec {
	return r3.Vec{X: 1 + 2*x.X - x.Y, Y: 3*x.Z + 0.5, Z: x.X + x.Y + x.Z}
}

func TestBoxMeshLocate(t *testing.T) {
	for _, dims := range []int{2, 3} {
		mesh, err := NewBoxMesh(r3.Box{Max: r3.Vec{X: 2, Y: 1, Z: 1}}, 4, dims)
		require.NoError(t, err)
		assert.Equal(t, dims, mesh.Dimensions())

		for _, x := range []r3.Vec{{X: 0.3, Y: 0.4, Z: 0.5}, {X: 2, Y: 1, Z: 1}, {}, {X: 1.01, Y: 0.77, Z: 0.12}} {
			c, w, err := mesh.Locate(x)
			require.NoError(t, err, "dims=%d x=%v", dims, x)
			assert.GreaterOrEqual(t, c, 0)
			var sum float64
			for _, v := range w {
				sum += v
				assert.GreaterOrEqual(t, v, -1e-10)
			}
			assert.InDelta(t, 1, sum, 1e-12)
		}

		_, _, err = mesh.Locate(r3.Vec{X: 2.5, Y: 0.5, Z: 0.5})
		assert.ErrorIs(t, err, ErrOutsideMesh)
	}
}

func TestMeshSnapshotReproducesLinearFields(t *testing.T) {
	mesh, err := NewBoxMesh(r3.Box{Min: r3.Vec{X: -1}, Max: r3.Vec{X: 1, Y: 1, Z: 1}}, 3, 3)
	require.NoError(t, err)

	snap := NewMeshSnapshot(mesh, 0.5)
	velocity := make([]r3.Vec, mesh.NumPoints())
	pressure := make([]float64, mesh.NumPoints())
	for i, x := range mesh.Points() {
		velocity[i] = linearVelocity(x)
		pressure[i] = 4*x.X - 2*x.Z
	}
	require.NoError(t, snap.AddVector(Velocity, velocity))
	require.NoError(t, snap.AddScalar(Pressure, pressure))
	assert.Error(t, snap.AddScalar("short", pressure[1:]))
	assert.True(t, snap.Has(Pressure))
	assert.False(t, snap.Has("Temperature"))

	x := r3.Vec{X: 0.123, Y: 0.456, Z: 0.789}
	v, err := snap.Vector(Velocity, x)
	require.NoError(t, err)
	want := linearVelocity(x)
	assert.InDelta(t, want.X, v.X, 1e-12)
	assert.InDelta(t, want.Y, v.Y, 1e-12)
	assert.InDelta(t, want.Z, v.Z, 1e-12)

	p, err := snap.Scalar(Pressure, x)
	require.NoError(t, err)
	assert.InDelta(t, 4*x.X-2*x.Z, p, 1e-12)

	g, err := snap.Gradient(Velocity, x)
	require.NoError(t, err)
	expected := [3][3]float64{{2, -1, 0}, {0, 0, 3}, {1, 1, 1}}
	for i := range 3 {
		for j := range 3 {
			assert.InDelta(t, expected[i][j], g.At(i, j), 1e-12, "G[%d][%d]", i, j)
		}
	}

	gp, err := snap.ScalarGradient(Pressure, x)
	require.NoError(t, err)
	assert.InDelta(t, 4, gp.X, 1e-12)
	assert.InDelta(t, 0, gp.Y, 1e-12)
	assert.InDelta(t, -2, gp.Z, 1e-12)

	_, err = snap.Scalar(Velocity, x)
	assert.ErrorIs(t, err, ErrFieldUnavailable)
	_, err = snap.Vector(Velocity, r3.Vec{X: 5})
	assert.ErrorIs(t, err, ErrOutsideMesh)
}

func TestTriangleMeshIgnoresZ(t *testing.T) {
	mesh, err := NewBoxMesh(r3.Box{Max: r3.Vec{X: 1, Y: 1}}, 5, 2)
	require.NoError(t, err)
	store := NewSampledStore(mesh, DoubleGyre{A: 1}, nil)
	snap, err := store.Load(0)
	require.NoError(t, err)

	a, err := snap.Vector(Velocity, r3.Vec{X: 0.3, Y: 0.3})
	require.NoError(t, err)
	b, err := snap.Vector(Velocity, r3.Vec{X: 0.3, Y: 0.3, Z: 7})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	// interpolated gyre is close to the analytic one on a coarse mesh
	exact := DoubleGyre{A: 1}.Velocity(0, r3.Vec{X: 0.3, Y: 0.3})
	assert.InDelta(t, exact.X, a.X, 0.5)
	assert.InDelta(t, exact.Y, a.Y, 0.5)
}

func TestNewMeshRejectsBadCells(t *testing.T) {
	points := []r3.Vec{{}, {X: 1}, {X: 2}, {Y: 1}}
	_, err := NewMesh(points, [][]int{{0, 1, 2}})
	assert.ErrorIs(t, err, config.ErrConfiguration)
	_, err = NewMesh(points, [][]int{{0, 1, 7}})
	assert.ErrorIs(t, err, config.ErrConfiguration)
	_, err = NewMesh(points, [][]int{{0, 1, 3}, {0, 1, 2, 3}})
	assert.ErrorIs(t, err, config.ErrConfiguration)
	_, err = NewBoxMesh(r3.Box{Max: r3.Vec{X: 1, Y: 1}}, 0, 2)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestFlows(t *testing.T) {
	rot, err := NewFlow("rotation", FlowParams{Amplitude: 2, Center: r3.Vec{X: 1, Y: 1}, FluidDensity: 1000})
	require.NoError(t, err)
	snap := FlowSnapshot(rot, 0, nil)
	v, err := snap.Vector(Velocity, r3.Vec{X: 2, Y: 1})
	require.NoError(t, err)
	assert.InDelta(t, 2, v.Y, 1e-15)
	gp, err := snap.ScalarGradient(Pressure, r3.Vec{X: 2, Y: 1})
	require.NoError(t, err)
	// centripetal balance: grad p = rho Omega^2 r
	assert.InDelta(t, 4000, gp.X, 1e-3)

	gyre, err := NewFlow("gyre3d", FlowParams{Amplitude: 1})
	require.NoError(t, err)
	div := r3.Divergence(r3.Vec{X: 0.3, Y: 0.2, Z: 0.1}, r3.Vec{X: 1e-6, Y: 1e-6, Z: 1e-6},
		func(x r3.Vec) r3.Vec { return gyre.Velocity(0, x) })
	assert.False(t, math.IsNaN(div))

	still := FlowSnapshot(Still{}, 0, nil)
	assert.False(t, still.Has(Pressure))

	_, err = NewFlow("vortex", FlowParams{})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
