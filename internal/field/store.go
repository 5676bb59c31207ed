package field

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// MemoryStore serves snapshots already held in memory.
type MemoryStore struct {
	snapshots []Snapshot
}

func NewMemoryStore(snapshots ...Snapshot) *MemoryStore {
	s := &MemoryStore{snapshots: append([]Snapshot(nil), snapshots...)}
	sort.SliceStable(s.snapshots, func(i, j int) bool { return s.snapshots[i].Time() < s.snapshots[j].Time() })
	return s
}

func (s *MemoryStore) Times() []float64 {
	times := make([]float64, len(s.snapshots))
	for i, snap := range s.snapshots {
		times[i] = snap.Time()
	}
	return times
}

func (s *MemoryStore) Load(i int) (Snapshot, error) {
	if i < 0 || i >= len(s.snapshots) {
		return nil, fmt.Errorf("snapshot %d out of range [0,%d)", i, len(s.snapshots))
	}
	return s.snapshots[i], nil
}

// AnalyticStore evaluates a Flow in closed form at fixed snapshot times.
type AnalyticStore struct {
	flow   Flow
	times  []float64
	domain *r3.Box
}

// NewAnalyticStore uses a single snapshot at t=0 when no times are given.
func NewAnalyticStore(flow Flow, times []float64, domain *r3.Box) *AnalyticStore {
	if len(times) == 0 {
		times = []float64{0}
	}
	return &AnalyticStore{flow: flow, times: times, domain: domain}
}

func (s *AnalyticStore) Times() []float64 { return s.times }

func (s *AnalyticStore) Load(i int) (Snapshot, error) {
	if i < 0 || i >= len(s.times) {
		return nil, fmt.Errorf("snapshot %d out of range [0,%d)", i, len(s.times))
	}
	return FlowSnapshot(s.flow, s.times[i], s.domain), nil
}

// SampledStore samples a Flow onto the points of a Mesh when a snapshot is
// loaded, so that sampling goes through mesh location and barycentric
// interpolation.
type SampledStore struct {
	mesh  *Mesh
	flow  Flow
	times []float64
}

func NewSampledStore(mesh *Mesh, flow Flow, times []float64) *SampledStore {
	if len(times) == 0 {
		times = []float64{0}
	}
	return &SampledStore{mesh: mesh, flow: flow, times: times}
}

func (s *SampledStore) Times() []float64 { return s.times }

func (s *SampledStore) Load(i int) (Snapshot, error) {
	if i < 0 || i >= len(s.times) {
		return nil, fmt.Errorf("snapshot %d out of range [0,%d)", i, len(s.times))
	}
	t := s.times[i]
	snap := NewMeshSnapshot(s.mesh, t)
	points := s.mesh.Points()
	velocity := make([]r3.Vec, len(points))
	for p, x := range points {
		velocity[p] = s.flow.Velocity(t, x)
	}
	if err := snap.AddVector(Velocity, velocity); err != nil {
		return nil, err
	}
	if pf, ok := s.flow.(pressureFlow); ok {
		pressure := make([]float64, len(points))
		for p, x := range points {
			pressure[p] = pf.Pressure(t, x)
		}
		if err := snap.AddScalar(Pressure, pressure); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
