package model

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CollisionInfo records one reflection off a closed surface. Normal points
// out of the domain. Angle is the impact angle between the incoming
// velocity and the surface plane, in radians. Wear is filled in by the
// bucket with its wear model.
type CollisionInfo struct {
	ParticleID  int
	Position    r3.Vec
	Time        float64
	VelocityIn  r3.Vec
	VelocityOut r3.Vec
	Normal      r3.Vec
	SurfaceID   int
	Face        int
	Angle       float64
	Wear        float64
}

func impactAngle(v, n r3.Vec) float64 {
	speed := r3.Norm(v)
	if speed == 0 {
		return 0
	}
	return math.Asin(min(1, math.Abs(r3.Dot(v, n))/speed))
}

// reflect applies the restitution law: the normal component is scaled by
// -e and the tangential one kept.
func reflect(v, n r3.Vec, e float64) r3.Vec {
	return r3.Sub(v, r3.Scale((1+e)*r3.Dot(v, n), n))
}
