package model

import (
	"fmt"
	"math"

	"github.com/wildstyl3r/lpt/internal/config"
)

// PhysicalParticle holds the parameters shared by a population of
// particles. It is never modified once particles refer to it.
type PhysicalParticle struct {
	Diameter    float64
	Density     float64
	Restitution float64
	Drag        DragLaw
}

func (p PhysicalParticle) Validate() error {
	var problems []string
	if !(p.Diameter > 0) || math.IsInf(p.Diameter, 0) {
		problems = append(problems, fmt.Sprintf("diameter %g is not positive", p.Diameter))
	}
	if !(p.Density > 0) || math.IsInf(p.Density, 0) {
		problems = append(problems, fmt.Sprintf("density %g is not positive", p.Density))
	}
	if !(0 <= p.Restitution && p.Restitution <= 1) {
		problems = append(problems, fmt.Sprintf("restitution %g is outside [0, 1]", p.Restitution))
	}
	if _, ok := dragNames[p.Drag.String()]; !ok {
		problems = append(problems, fmt.Sprintf("unknown drag law %d", p.Drag))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: particle parameters: %v", config.ErrConfiguration, problems)
	}
	return nil
}

func (p PhysicalParticle) Mass() float64 {
	return p.Density * math.Pi * p.Diameter * p.Diameter * p.Diameter / 6
}
