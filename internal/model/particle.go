package model

import (
	"fmt"
	"math"

	"github.com/wildstyl3r/lpt/internal/geom"
	"github.com/wildstyl3r/lpt/internal/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

type State uint8

const (
	Active State = iota
	Exited
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Aux fields every bucket maintains.
const (
	FieldCollisions = "collisions"
	FieldWear       = "wear"
)

type Particle struct {
	ID       int
	Position r3.Vec
	Velocity r3.Vec

	// fluid samples at the start of the last substep
	FluidVelocity    r3.Vec
	PressureGradient r3.Vec

	Time   float64
	Fields map[string]float64
	Params *PhysicalParticle
	State  State
}

// stage holds the coefficients of the velocity equation dv/dt = k (u - v) + f
// sampled at one point.
type stage struct {
	k float64
	u r3.Vec
	f r3.Vec
}

func (s *System) stage(p *Particle, t float64, x, v r3.Vec) (stage, r3.Vec) {
	u, gradP := s.fluid(t, x)
	slip := r3.Norm(r3.Sub(u, v))
	return stage{
		k: p.Params.Drag.rate(p.Params, slip, s.FluidDensity, s.FluidViscosity),
		u: u,
		f: s.forces(p.Params, x, v, gradP),
	}, gradP
}

// relax advances v by dt under dv/dt = k (u - v) + f with frozen k, u and f.
// The drag part is integrated exactly, so stiff drag stays stable.
func relax(v r3.Vec, k float64, force r3.Vec, dt float64) r3.Vec {
	decay, phi := 1., dt
	if k > 0 {
		decay = math.Exp(-k * dt)
		phi = -math.Expm1(-k*dt) / k
	}
	return r3.Add(r3.Scale(decay, v), r3.Scale(phi, force))
}

// integrate is one predictor-corrector step from (x, v) at time t. The
// predictor moves the particle with its current velocity; the corrector
// samples the fluid at the predicted position and averages both stages.
// Without drag it is Heun's method.
func (s *System) integrate(p *Particle, t float64, x, v r3.Vec, dt float64) (xNew, vNew r3.Vec) {
	s0, gradP := s.stage(p, t, x, v)
	p.FluidVelocity, p.PressureGradient = s0.u, gradP

	g0 := r3.Add(r3.Scale(s0.k, s0.u), s0.f)
	xPred := r3.Add(x, r3.Scale(dt, v))
	vPred := relax(v, s0.k, g0, dt)

	s1, _ := s.stage(p, t+dt, xPred, vPred)
	g1 := r3.Add(r3.Scale(s1.k, s1.u), s1.f)

	vNew = relax(v, 0.5*(s0.k+s1.k), r3.Scale(0.5, r3.Add(g0, g1)), dt)
	xNew = r3.Add(x, r3.Scale(0.5*dt, r3.Add(v, vNew)))
	return xNew, vNew
}

// Advance moves an active particle over dt, reflecting it off closed
// surfaces and stopping it on open ones. It returns the collisions in the
// order they happened.
//
// On ErrNumericalDegeneracy and ErrEscaped the particle is exited. On
// ErrBounceLimit it stays active, frozen where its last reflection left it.
// Time is not updated; the bucket owns it.
func (p *Particle) Advance(s *System, dt float64) ([]CollisionInfo, error) {
	if p.State != Active {
		return nil, nil
	}
	var collisions []CollisionInfo
	t := p.Time
	remaining := dt
	bounces := 0
	var left []int
	for remaining > 0 {
		x, v := p.Position, p.Velocity
		xNew, vNew := s.integrate(p, t, x, v, remaining)
		if !utils.IsFinite(xNew) || !utils.IsFinite(vNew) {
			p.State = Exited
			return collisions, &ParticleError{ID: p.ID, Time: t, Err: ErrNumericalDegeneracy}
		}

		hit, crossed := s.intersect(x, xNew, left)
		if !crossed {
			p.Position, p.Velocity = xNew, vNew
			if !s.inside(xNew) {
				p.State = Exited
				return collisions, &ParticleError{ID: p.ID, Time: t + remaining, Err: ErrEscaped}
			}
			return collisions, nil
		}

		vHit := r3.Add(v, r3.Scale(hit.T, r3.Sub(vNew, v)))
		tHit := t + hit.T*remaining
		walls := append([]geom.Hit{hit}, hit.Coincident...)
		for _, w := range walls {
			if s.Boundary.IsOpen(w.SurfaceID) {
				p.Position, p.Velocity = w.Point, vHit
				p.State = Exited
				return collisions, nil
			}
		}

		if bounces == s.maxBounces() {
			return collisions, &ParticleError{ID: p.ID, Time: t, Err: ErrBounceLimit}
		}
		bounces++
		// a corner reflects off every wall the particle still moves into
		vOut := vHit
		nudge := r3.Vec{}
		left = left[:0]
		for i, w := range walls {
			if i > 0 && r3.Dot(vOut, w.Normal) <= 0 {
				continue
			}
			vIn := vOut
			vOut = reflect(vIn, w.Normal, p.Params.Restitution)
			collisions = append(collisions, CollisionInfo{
				ParticleID:  p.ID,
				Position:    w.Point,
				Time:        tHit,
				VelocityIn:  vIn,
				VelocityOut: vOut,
				Normal:      w.Normal,
				SurfaceID:   w.SurfaceID,
				Face:        w.Face,
				Angle:       impactAngle(vIn, w.Normal),
			})
			nudge = r3.Add(nudge, w.Normal)
			left = append(left, w.Face)
		}
		p.Position = r3.Sub(hit.Point, r3.Scale(s.Offset, nudge))
		p.Velocity = vOut
		t = tHit
		remaining *= 1 - hit.T
	}
	return collisions, nil
}
