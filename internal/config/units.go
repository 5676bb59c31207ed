package config

import (
	"fmt"

	"github.com/wildstyl3r/lpt/internal/utils"
)

var unitToSI = map[string]float64{
	"m":  1,    // [m]
	"cm": 1e-2, // [m]
	"mm": 1e-3, // [m]
	"um": 1e-6, // [m]
	"kg": 1,    // [kg]
	"g":  1e-3, // [kg]
	"s":  1,    // [s]
	"ms": 1e-3, // [s]
}

type UnitClass int

const (
	Length UnitClass = iota
	Mass
	Time
)

var unitsInClass = map[UnitClass][]string{
	Length: {"um", "mm", "cm", "m"},
	Mass:   {"g", "kg"},
	Time:   {"ms", "s"},
}

var classesOfUnits = map[string]UnitClass{
	"m":  Length,
	"cm": Length,
	"mm": Length,
	"um": Length,
	"kg": Mass,
	"g":  Mass,
	"s":  Time,
	"ms": Time,
}

type UnitElement = struct {
	Class UnitClass
	Power int
}

var defaultUnits = []string{"m", "kg", "s"}

// checkUnits completes units with the defaults for every class not mentioned
// and reports units that are unknown or name a class twice.
func checkUnits(units []string) (extended, conflicts []string) {
	classes := map[UnitClass]struct{}{}
	for _, unit := range units {
		class, known := classesOfUnits[unit]
		if !known {
			conflicts = append(conflicts, unit)
			continue
		}
		if _, some := classes[class]; some {
			conflicts = append(conflicts, unit)
		} else {
			classes[class] = struct{}{}
		}
	}
	extended = append([]string(nil), units...)
	for _, unit := range defaultUnits {
		if _, some := classes[classesOfUnits[unit]]; !some {
			extended = append(extended, unit)
		}
	}
	return
}

// meshUnits is the unit system the simulation runs in: lengths in the mesh
// unit, mass in kg, time in s.
func meshUnits(meshUnit string) ([]string, error) {
	if meshUnit == "" {
		meshUnit = "m"
	}
	if classesOfUnits[meshUnit] != Length || unitToSI[meshUnit] == 0 {
		return nil, fmt.Errorf("%w: MeshUnit %q is not a length unit", ErrConfiguration, meshUnit)
	}
	return []string{meshUnit, "kg", "s"}, nil
}

// SI converts v expressed in units to SI when direct is set, and from SI to
// units otherwise.
func SI(v float64, classes []UnitElement, units []string, direct bool) float64 {
	for i := range classes {
		uc := classes[i]
		unit := utils.Intersect(unitsInClass[uc.Class], units)
		if unit == nil {
			continue
		}
		absPower := utils.IntAbs(uc.Power)
		if direct == (uc.Power > 0) {
			for range absPower {
				v *= unitToSI[*unit]
			}
		} else {
			for range absPower {
				v /= unitToSI[*unit]
			}
		}
	}
	return v
}
