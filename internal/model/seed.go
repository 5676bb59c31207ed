package model

import (
	"fmt"
	"math/rand"

	"github.com/wildstyl3r/lpt/internal/config"
	"github.com/wildstyl3r/lpt/internal/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// SeedBox places n particles uniformly in box, with ids from firstID on.
func SeedBox(rng *rand.Rand, box r3.Box, n, firstID int, params *PhysicalParticle) []*Particle {
	particles := make([]*Particle, n)
	for i := range particles {
		particles[i] = &Particle{
			ID:       firstID + i,
			Position: utils.UniformInBox(rng, box),
			Params:   params,
		}
	}
	return particles
}

// ReadSeeds reads one particle per row: x y z [vx vy vz].
func ReadSeeds(filename string, firstID int, params *PhysicalParticle) ([]*Particle, error) {
	rows, err := utils.ReadFloatRows(filename, 3, 6)
	if err != nil {
		return nil, fmt.Errorf("%w: seeds: %v", config.ErrConfiguration, err)
	}
	particles := make([]*Particle, len(rows))
	for i, row := range rows {
		p := &Particle{
			ID:       firstID + i,
			Position: r3.Vec{X: row[0], Y: row[1], Z: row[2]},
			Params:   params,
		}
		switch len(row) {
		case 3:
		case 6:
			p.Velocity = r3.Vec{X: row[3], Y: row[4], Z: row[5]}
		default:
			return nil, fmt.Errorf("%w: seeds: row %d has %d columns, want 3 or 6", config.ErrConfiguration, i+1, len(row))
		}
		particles[i] = p
	}
	return particles, nil
}

// MatchFluid starts particles with the local fluid velocity at time t.
func (s *System) MatchFluid(particles []*Particle, t float64) error {
	if s.Fluid != nil {
		if err := s.Fluid.Refresh(t); err != nil {
			return err
		}
	}
	for _, p := range particles {
		u, gradP := s.fluid(t, p.Position)
		p.Velocity, p.FluidVelocity, p.PressureGradient = u, u, gradP
	}
	return nil
}
