package model

import (
	"fmt"
	"math"

	"github.com/wildstyl3r/lpt/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

type WearModel uint8

const (
	WearKinetic WearModel = iota
	WearMcLaury
	WearOka
)

var wearNames = map[string]WearModel{
	"kinetic": WearKinetic,
	"mclaury": WearMcLaury,
	"oka":     WearOka,
}

func ParseWear(name string) (WearModel, error) {
	if w, ok := wearNames[name]; ok {
		return w, nil
	}
	return WearKinetic, fmt.Errorf("%w: unknown wear model %q", config.ErrConfiguration, name)
}

func (w WearModel) String() string {
	for name, model := range wearNames {
		if model == w {
			return name
		}
	}
	return fmt.Sprintf("WearModel(%d)", w)
}

// Wall material constants. Both correlations are fitted in SI units.
const (
	mclauryBrinell     = 120. // Brinell hardness of carbon steel
	mclauryShapeFactor = 1.   // sharp particles; 0.53 semi-rounded, 0.2 rounded
	mclauryExponent    = 1.73
	mclauryKneeAngle   = 15 * math.Pi / 180

	okaVickers     = 1.8    // [GPa]
	okaK           = 65.    // [mm^3 kg^-1]
	okaRefVelocity = 104.   // [m s^-1]
	okaRefDiameter = 326e-6 // [m]
	mm3            = 1e-9   // [m^3]
)

// Wear maps one impact to an erosion metric:
//   - WearKinetic: kinetic energy of the normal velocity component
//   - WearMcLaury: mass of wall removed per mass of impacting particles
//   - WearOka: volume of wall removed by this impact
func Wear(c CollisionInfo, p *PhysicalParticle, model WearModel) float64 {
	speed := r3.Norm(c.VelocityIn)
	if speed == 0 {
		return 0
	}
	switch model {
	case WearKinetic:
		vn := r3.Dot(c.VelocityIn, c.Normal)
		return 0.5 * p.Mass() * vn * vn
	case WearMcLaury:
		a := 1559e-9 * math.Pow(mclauryBrinell, -0.59) * mclauryShapeFactor
		return a * mclauryAngleFunction(c.Angle) * math.Pow(speed, mclauryExponent)
	case WearOka:
		return okaErosion(c.Angle, speed, p.Diameter) * p.Mass()
	default:
		return 0
	}
}

func mclauryAngleFunction(alpha float64) float64 {
	if alpha <= mclauryKneeAngle {
		return -38.4*alpha*alpha + 22.7*alpha
	}
	cos, sin := math.Cos(alpha), math.Sin(alpha)
	return 3.147*cos*cos*sin + 0.3609*sin*sin + 2.532
}

// okaErosion is the erosion ratio E(α) = g(α) E90 [m^3 kg^-1].
func okaErosion(alpha, speed, diameter float64) float64 {
	hv := okaVickers
	n1 := 0.71 * math.Pow(hv, 0.14)
	n2 := 2.4 * math.Pow(hv, -0.94)
	k1 := -0.12
	k2 := 2.3 * math.Pow(hv, 0.038)
	k3 := 0.19
	sin := math.Sin(alpha)
	g := math.Pow(sin, n1) * math.Pow(1+hv*(1-sin), n2)
	e90 := okaK * math.Pow(hv, k1) * math.Pow(speed/okaRefVelocity, k2) * math.Pow(diameter/okaRefDiameter, k3)
	return g * e90 * mm3
}
