package field

import (
	"fmt"
	"slices"

	"github.com/wildstyl3r/lpt/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

// TemporalCache keeps the two snapshots bracketing the current time and
// interpolates linearly between them. Sampling outside the bracket reloads
// the proper pair from the store, reusing a snapshot shared by both pairs.
//
// Between Prepare and Release the bracket is pinned: samples never reload,
// times outside the bracket clamp to its ends, and concurrent sampling is
// safe.
type TemporalCache struct {
	store  Store
	times  []float64
	lo, hi int
	loaded map[int]Snapshot
	pinned bool
	loads  int
}

func NewTemporalCache(store Store) (*TemporalCache, error) {
	times := store.Times()
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: field store has no snapshots", config.ErrConfiguration)
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return nil, fmt.Errorf("%w: snapshot times must be strictly increasing, got %v", config.ErrConfiguration, times)
		}
	}
	return &TemporalCache{
		store:  store,
		times:  slices.Clone(times),
		lo:     -1,
		hi:     -1,
		loaded: make(map[int]Snapshot, 2),
	}, nil
}

func (c *TemporalCache) covers(t float64) bool {
	return c.lo >= 0 && c.times[c.lo] <= t && t <= c.times[c.hi]
}

// bracketFor returns the indices of the snapshots around t. A time equal to
// a snapshot time opens the bracket starting there; times outside the stored
// range collapse to the first or last snapshot.
func (c *TemporalCache) bracketFor(t float64) (int, int) {
	n := len(c.times)
	switch {
	case t < c.times[0]:
		return 0, 0
	case t >= c.times[n-1]:
		return n - 1, n - 1
	}
	i, found := slices.BinarySearch(c.times, t)
	if !found {
		i--
	}
	return i, i + 1
}

func (c *TemporalCache) load(lo, hi int) error {
	keep := make(map[int]Snapshot, 2)
	for _, i := range []int{lo, hi} {
		if _, ok := keep[i]; ok {
			continue
		}
		if s, ok := c.loaded[i]; ok {
			keep[i] = s
			continue
		}
		s, err := c.store.Load(i)
		if err != nil {
			return fmt.Errorf("loading snapshot %d (t=%g): %w", i, c.times[i], err)
		}
		c.loads++
		keep[i] = s
	}
	c.loaded = keep
	c.lo, c.hi = lo, hi
	return nil
}

// Refresh makes the bracket cover t. The current bracket is kept when it
// already does, including at its end points.
func (c *TemporalCache) Refresh(t float64) error {
	if c.covers(t) {
		return nil
	}
	return c.load(c.bracketFor(t))
}

// Prepare pins a bracket for sampling in [t0, t1] until Release. When the
// step crosses a snapshot time the bracket around its midpoint is pinned.
func (c *TemporalCache) Prepare(t0, t1 float64) error {
	c.pinned = false
	if !(c.covers(t0) && c.covers(t1)) {
		if err := c.load(c.bracketFor(0.5 * (t0 + t1))); err != nil {
			return err
		}
	}
	c.pinned = true
	return nil
}

func (c *TemporalCache) Release() {
	c.pinned = false
}

// Bracket returns the times of the cached snapshots.
func (c *TemporalCache) Bracket() (t0, t1 float64, ok bool) {
	if c.lo < 0 {
		return 0, 0, false
	}
	return c.times[c.lo], c.times[c.hi], true
}

// Loads counts snapshots read from the store so far.
func (c *TemporalCache) Loads() int {
	return c.loads
}

func (c *TemporalCache) Times() []float64 {
	return c.times
}

func (c *TemporalCache) weights(t float64) (s0, s1 Snapshot, w float64, err error) {
	if !c.covers(t) && (!c.pinned || c.lo < 0) {
		if err := c.Refresh(t); err != nil {
			return nil, nil, 0, err
		}
	}
	t0, t1 := c.times[c.lo], c.times[c.hi]
	switch {
	case c.lo == c.hi || t <= t0:
		w = 0
	case t >= t1:
		w = 1
	default:
		w = (t - t0) / (t1 - t0)
	}
	return c.loaded[c.lo], c.loaded[c.hi], w, nil
}

func interpolate[T any](c *TemporalCache, t float64, get func(Snapshot) (T, error), mix func(a, b T, w float64) T) (T, error) {
	var zero T
	s0, s1, w, err := c.weights(t)
	if err != nil {
		return zero, err
	}
	if w == 0 {
		return get(s0)
	}
	if w == 1 {
		return get(s1)
	}
	a, err := get(s0)
	if err != nil {
		return zero, err
	}
	b, err := get(s1)
	if err != nil {
		return zero, err
	}
	return mix(a, b, w), nil
}

func mixVec(a, b r3.Vec, w float64) r3.Vec {
	return r3.Add(r3.Scale(1-w, a), r3.Scale(w, b))
}

func (c *TemporalCache) Sample(t float64, name string, x r3.Vec) (r3.Vec, error) {
	return interpolate(c, t, func(s Snapshot) (r3.Vec, error) { return s.Vector(name, x) }, mixVec)
}

func (c *TemporalCache) SampleScalar(t float64, name string, x r3.Vec) (float64, error) {
	return interpolate(c, t, func(s Snapshot) (float64, error) { return s.Scalar(name, x) },
		func(a, b, w float64) float64 { return (1-w)*a + w*b })
}

func (c *TemporalCache) SampleGradient(t float64, name string, x r3.Vec) (*r3.Mat, error) {
	return interpolate(c, t, func(s Snapshot) (*r3.Mat, error) { return s.Gradient(name, x) },
		func(a, b *r3.Mat, w float64) *r3.Mat {
			var sa, sb r3.Mat
			sa.Scale(1-w, a)
			sb.Scale(w, b)
			m := r3.NewMat(nil)
			m.Add(&sa, &sb)
			return m
		})
}

func (c *TemporalCache) SampleScalarGradient(t float64, name string, x r3.Vec) (r3.Vec, error) {
	return interpolate(c, t, func(s Snapshot) (r3.Vec, error) { return s.ScalarGradient(name, x) }, mixVec)
}
