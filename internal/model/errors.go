package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNumericalDegeneracy marks a particle whose state became NaN or Inf.
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")
	// ErrBounceLimit marks a particle that was frozen for a step after too
	// many reflections.
	ErrBounceLimit = errors.New("bounce limit exceeded")
	// ErrEscaped marks a particle that left the domain bounds without
	// crossing the boundary.
	ErrEscaped = errors.New("particle escaped the domain")
	// ErrRedistribution is a failed ownership hand-off between ranks. It is
	// fatal to the run.
	ErrRedistribution = errors.New("redistribution failed")
)

// ParticleError ties a per-particle failure to the particle and the time it
// happened at.
type ParticleError struct {
	ID   int
	Time float64
	Err  error
}

func (e *ParticleError) Error() string {
	return fmt.Sprintf("particle %d at t=%g: %v", e.ID, e.Time, e.Err)
}

func (e *ParticleError) Unwrap() error {
	return e.Err
}
