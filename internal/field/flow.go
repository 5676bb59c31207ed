package field

import (
	"fmt"
	"math"

	"github.com/wildstyl3r/lpt/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

// Flow is a closed-form velocity field.
type Flow interface {
	Velocity(t float64, x r3.Vec) r3.Vec
}

// pressureFlow is a Flow that also defines a pressure field.
type pressureFlow interface {
	Flow
	Pressure(t float64, x r3.Vec) float64
}

type Still struct{}

func (Still) Velocity(float64, r3.Vec) r3.Vec { return r3.Vec{} }

type Uniform struct {
	U r3.Vec
}

func (f Uniform) Velocity(float64, r3.Vec) r3.Vec { return f.U }

// DoubleGyre is the steady double gyre on the unit square:
//
//	u = -2πA sin(πx) cos(2πy),  v = πA cos(πx) sin(2πy)
type DoubleGyre struct {
	A float64
}

func (f DoubleGyre) Velocity(_ float64, x r3.Vec) r3.Vec {
	return r3.Vec{
		X: -2 * math.Pi * f.A * math.Sin(math.Pi*x.X) * math.Cos(2*math.Pi*x.Y),
		Y: math.Pi * f.A * math.Cos(math.Pi*x.X) * math.Sin(2*math.Pi*x.Y),
	}
}

// DoubleGyre3D extends the double gyre into the unit cube.
type DoubleGyre3D struct {
	A float64
}

func (f DoubleGyre3D) Velocity(_ float64, x r3.Vec) r3.Vec {
	vertical := math.Pi * f.A * math.Cos(math.Pi*x.X) * math.Sin(2*math.Pi*x.Y) * math.Sin(2*math.Pi*x.Z)
	return r3.Vec{
		X: -2 * math.Pi * f.A * math.Sin(math.Pi*x.X) * math.Sin(2*math.Pi*(x.Y+x.Z)),
		Y: vertical,
		Z: vertical,
	}
}

// Rotation is solid body rotation with angular rate Omega about the z axis
// through Center, with the balancing pressure p = ρ Ω² r² / 2.
type Rotation struct {
	Omega   float64
	Center  r3.Vec
	Density float64
}

func (f Rotation) Velocity(_ float64, x r3.Vec) r3.Vec {
	r := r3.Sub(x, f.Center)
	return r3.Vec{X: -f.Omega * r.Y, Y: f.Omega * r.X}
}

func (f Rotation) Pressure(_ float64, x r3.Vec) float64 {
	r := r3.Sub(x, f.Center)
	return 0.5 * f.Density * f.Omega * f.Omega * (r.X*r.X + r.Y*r.Y)
}

// FlowParams collects the inputs of the configurable flows.
type FlowParams struct {
	Velocity     r3.Vec
	Amplitude    float64
	Center       r3.Vec
	FluidDensity float64
}

func NewFlow(kind string, p FlowParams) (Flow, error) {
	switch kind {
	case "still", "":
		return Still{}, nil
	case "uniform":
		return Uniform{U: p.Velocity}, nil
	case "gyre":
		return DoubleGyre{A: p.Amplitude}, nil
	case "gyre3d":
		return DoubleGyre3D{A: p.Amplitude}, nil
	case "rotation":
		return Rotation{Omega: p.Amplitude, Center: p.Center, Density: p.FluidDensity}, nil
	default:
		return nil, fmt.Errorf("%w: unknown flow %q", config.ErrConfiguration, kind)
	}
}

// FlowSnapshot evaluates f at time t.
func FlowSnapshot(f Flow, t float64, domain *r3.Box) *FuncSnapshot {
	s := &FuncSnapshot{
		T:       t,
		Vectors: map[string]func(r3.Vec) r3.Vec{Velocity: func(x r3.Vec) r3.Vec { return f.Velocity(t, x) }},
		Domain:  domain,
	}
	if pf, ok := f.(pressureFlow); ok {
		s.Scalars = map[string]func(r3.Vec) float64{Pressure: func(x r3.Vec) float64 { return pf.Pressure(t, x) }}
	}
	return s
}
