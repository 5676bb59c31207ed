package parallel

import (
	"fmt"
	"math"
	"sort"

	"github.com/wildstyl3r/lpt/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

// Partition decides which rank owns a particle.
type Partition interface {
	Owner(x r3.Vec, id int, size int) int
}

// Slab cuts the domain into slabs along one axis. With Cuts set, rank r owns
// [Cuts[r-1], Cuts[r]); otherwise [Min, Max] is split into equal slabs.
// Points beyond either end belong to the first or last rank.
type Slab struct {
	Axis     int
	Min, Max float64
	Cuts     []float64
}

func coordinate(x r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return x.X
	case 1:
		return x.Y
	default:
		return x.Z
	}
}

func (s Slab) Owner(x r3.Vec, _ int, size int) int {
	if size <= 1 {
		return 0
	}
	c := coordinate(x, s.Axis)
	if len(s.Cuts) > 0 {
		r := sort.Search(len(s.Cuts), func(i int) bool { return c < s.Cuts[i] })
		return min(r, size-1)
	}
	width := s.Max - s.Min
	if !(width > 0) || math.IsInf(width, 0) || math.IsNaN(c) {
		return 0
	}
	r := int(math.Floor((c - s.Min) / width * float64(size)))
	return max(0, min(r, size-1))
}

// RoundRobin deals particles to ranks by id, regardless of position.
type RoundRobin struct{}

func (RoundRobin) Owner(_ r3.Vec, id int, size int) int {
	if size <= 1 {
		return 0
	}
	r := id % size
	if r < 0 {
		r += size
	}
	return r
}

// NewPartition builds a partition by name: an axis ("x", "y", "z") for
// equal slabs over bounds, or "roundrobin".
func NewPartition(kind string, bounds r3.Box) (Partition, error) {
	axis := map[string]int{"x": 0, "y": 1, "z": 2}
	if kind == "roundrobin" {
		return RoundRobin{}, nil
	}
	a, ok := axis[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown partition %q", config.ErrConfiguration, kind)
	}
	return Slab{Axis: a, Min: coordinate(bounds.Min, a), Max: coordinate(bounds.Max, a)}, nil
}
