package model

import (
	"errors"
	"math"
	"sync"

	"github.com/wildstyl3r/lpt/internal/constants"
	"github.com/wildstyl3r/lpt/internal/field"
	"github.com/wildstyl3r/lpt/internal/geom"
	"github.com/wildstyl3r/lpt/internal/logging"
	"gonum.org/v1/gonum/spatial/r3"
)

// System is the environment particles move in: the boundary, the fluid and
// the body forces of the frame. It is shared read-only by all particles of a
// bucket while a step is in progress.
type System struct {
	Boundary *geom.Locator        // nil for an unbounded domain
	Fluid    *field.TemporalCache // nil for a fluid at rest

	Gravity        r3.Vec
	Omega          r3.Vec // angular velocity of the frame
	FluidDensity   float64
	FluidViscosity float64

	MaxBounces int
	Offset     float64 // distance a reflected particle is moved away from the wall

	Logger logging.Logger

	mu     sync.Mutex
	warned map[string]bool
}

func NewSystem(boundary *geom.Locator, fluid *field.TemporalCache, logger logging.Logger) *System {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &System{
		Boundary:       boundary,
		Fluid:          fluid,
		FluidDensity:   constants.WaterDensity,
		FluidViscosity: constants.WaterViscosity,
		MaxBounces:     constants.MaxBouncesPerStep,
		Offset:         constants.ReboundOffset,
		Logger:         logger,
	}
}

// warnOnce logs a fallback once per key for the lifetime of the system.
func (s *System) warnOnce(key string, format string, v ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warned == nil {
		s.warned = make(map[string]bool)
	}
	if s.warned[key] {
		return
	}
	s.warned[key] = true
	s.Logger.Warnf(format, v...)
}

// fluid samples the fluid velocity and pressure gradient at x. A missing
// field or a point outside the mesh reads as zero.
func (s *System) fluid(t float64, x r3.Vec) (u, gradP r3.Vec) {
	if s.Fluid == nil {
		return r3.Vec{}, r3.Vec{}
	}
	u, err := s.Fluid.Sample(t, field.Velocity, x)
	if err != nil {
		s.fallback(field.Velocity, err)
		u = r3.Vec{}
	}
	gradP, err = s.Fluid.SampleScalarGradient(t, field.Pressure, x)
	if err != nil {
		s.fallback(field.Pressure, err)
		gradP = r3.Vec{}
	}
	return u, gradP
}

func (s *System) fallback(name string, err error) {
	switch {
	case errors.Is(err, field.ErrFieldUnavailable):
		s.warnOnce("missing:"+name, "%v, using zero", err)
	case errors.Is(err, field.ErrOutsideMesh):
		s.warnOnce("outside:"+name, "sampling %s: %v, using zero", name, err)
	default:
		s.warnOnce("error:"+name, "sampling %s: %v, using zero", name, err)
	}
}

// forces is the acceleration from everything but drag.
func (s *System) forces(p *PhysicalParticle, x, v, gradP r3.Vec) r3.Vec {
	a := r3.Scale(1-s.FluidDensity/p.Density, s.Gravity)
	a = r3.Sub(a, r3.Scale(1/p.Density, gradP))
	if s.Omega != (r3.Vec{}) {
		a = r3.Sub(a, r3.Scale(2, r3.Cross(s.Omega, v)))
		a = r3.Sub(a, r3.Cross(s.Omega, r3.Cross(s.Omega, x)))
	}
	return a
}

// intersect queries the boundary; left holds the faces the particle was
// just reflected off within the current step.
func (s *System) intersect(p0, p1 r3.Vec, left []int) (geom.Hit, bool) {
	if s.Boundary == nil {
		return geom.Hit{}, false
	}
	if left == nil {
		return s.Boundary.Intersect(p0, p1)
	}
	return s.Boundary.IntersectAfter(p0, p1, left)
}

// inside reports whether x is within the boundary bounds, padded by a
// small margin so that wall hits are never mistaken for escapes.
func (s *System) inside(x r3.Vec) bool {
	if s.Boundary == nil {
		return true
	}
	size := s.Boundary.Bounds().Size()
	extent := math.Max(size.X, size.Y)
	if !math.IsInf(size.Z, 0) {
		extent = math.Max(extent, size.Z)
	}
	return s.Boundary.Contains(x, 1e-6*extent+2*s.Offset)
}

func (s *System) maxBounces() int {
	if s.MaxBounces <= 0 {
		return constants.MaxBouncesPerStep
	}
	return s.MaxBounces
}
