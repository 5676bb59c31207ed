// Package field provides time-interpolated access to fluid fields stored as
// a sequence of snapshots.
package field

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrFieldUnavailable = errors.New("field unavailable")
	ErrOutsideMesh      = errors.New("point outside mesh")
)

// Field names sampled by the particle integrator.
const (
	Velocity = "Velocity"
	Pressure = "Pressure"
)

// Snapshot is the state of the fluid at one instant. Implementations must be
// safe for concurrent reads.
type Snapshot interface {
	Time() float64
	Has(name string) bool
	Vector(name string, x r3.Vec) (r3.Vec, error)
	Scalar(name string, x r3.Vec) (float64, error)
	// Gradient returns the tensor G[i][j] = d v_i / d x_j.
	Gradient(name string, x r3.Vec) (*r3.Mat, error)
	ScalarGradient(name string, x r3.Vec) (r3.Vec, error)
}

// Store gives indexed access to snapshots ordered by increasing time.
type Store interface {
	Times() []float64
	Load(i int) (Snapshot, error)
}
