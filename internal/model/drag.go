package model

import (
	"fmt"
	"math"

	"github.com/wildstyl3r/lpt/internal/config"
)

type DragLaw uint8

const (
	DragNone DragLaw = iota
	DragStokes
	DragSchillerNaumann
)

var dragNames = map[string]DragLaw{
	"none":             DragNone,
	"stokes":           DragStokes,
	"schiller-naumann": DragSchillerNaumann,
}

func ParseDrag(name string) (DragLaw, error) {
	if d, ok := dragNames[name]; ok {
		return d, nil
	}
	return DragNone, fmt.Errorf("%w: unknown drag law %q", config.ErrConfiguration, name)
}

func (d DragLaw) String() string {
	for name, law := range dragNames {
		if law == d {
			return name
		}
	}
	return fmt.Sprintf("DragLaw(%d)", d)
}

// rate is the drag relaxation rate k [s^-1] such that the drag acceleration
// is k (u - v). slip is |u - v|.
func (d DragLaw) rate(p *PhysicalParticle, slip, fluidDensity, fluidViscosity float64) float64 {
	if d == DragNone || fluidViscosity <= 0 {
		return 0
	}
	stokes := 18 * fluidViscosity / (p.Density * p.Diameter * p.Diameter)
	if d == DragStokes {
		return stokes
	}
	re := fluidDensity * slip * p.Diameter / fluidViscosity
	if re < 1000 {
		return stokes * (1 + 0.15*math.Pow(re, 0.687))
	}
	// Newton regime, Cd = 0.44
	return stokes * 0.44 * re / 24
}
