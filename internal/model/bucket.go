package model

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/wildstyl3r/lpt/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

type BucketParameters struct {
	Time     float64
	Fields   []string // aux fields every particle carries besides the built-in ones
	Wear     WearModel
	Threads  int  // workers advancing particles; 0 or 1 advances them in order
	Compress bool // compress redistribution parcels
}

// Bucket owns the particles of one rank and drives them through time.
type Bucket struct {
	system    *System
	particles []*Particle
	time      float64
	fields    []string
	wear      WearModel
	threads   int
	compress  bool

	collisions  []CollisionInfo
	populations map[PhysicalParticle]*PhysicalParticle
	retired     int
}

// NewBucket takes ownership of particles. Their aux fields are checked
// against the schema; missing ones start at zero.
func NewBucket(system *System, particles []*Particle, parameters BucketParameters) (*Bucket, error) {
	b := &Bucket{
		system:      system,
		time:        parameters.Time,
		wear:        parameters.Wear,
		threads:     parameters.Threads,
		compress:    parameters.Compress,
		populations: make(map[PhysicalParticle]*PhysicalParticle),
	}
	if _, ok := wearNames[b.wear.String()]; !ok {
		return nil, fmt.Errorf("%w: unknown wear model %d", config.ErrConfiguration, b.wear)
	}
	b.fields = Schema(parameters.Fields)
	if err := b.adopt(particles); err != nil {
		return nil, err
	}
	return b, nil
}

// Schema lists the aux fields of every particle: the built-in ones first,
// then fields in order, without repetitions.
func Schema(fields []string) []string {
	schema := []string{FieldCollisions, FieldWear}
	for _, name := range fields {
		if !slices.Contains(schema, name) {
			schema = append(schema, name)
		}
	}
	return schema
}

func (b *Bucket) checkSchema(p *Particle) error {
	for name := range p.Fields {
		if !slices.Contains(b.fields, name) {
			return fmt.Errorf("particle %d: field %q is not declared", p.ID, name)
		}
	}
	return nil
}

// intern makes particles with equal parameters share one PhysicalParticle.
func (b *Bucket) intern(params *PhysicalParticle) *PhysicalParticle {
	if shared, ok := b.populations[*params]; ok {
		return shared
	}
	b.populations[*params] = params
	return params
}

func (b *Bucket) adopt(particles []*Particle) error {
	ids := make(map[int]bool, len(b.particles)+len(particles))
	for _, p := range b.particles {
		ids[p.ID] = true
	}
	for _, p := range particles {
		if p.Params == nil {
			return fmt.Errorf("%w: particle %d has no parameters", config.ErrConfiguration, p.ID)
		}
		if err := p.Params.Validate(); err != nil {
			return fmt.Errorf("particle %d: %w", p.ID, err)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate particle id %d", config.ErrConfiguration, p.ID)
		}
		ids[p.ID] = true
		if err := b.checkSchema(p); err != nil {
			return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		if p.Fields == nil {
			p.Fields = make(map[string]float64, len(b.fields))
		}
		for _, name := range b.fields {
			if _, ok := p.Fields[name]; !ok {
				p.Fields[name] = 0
			}
		}
		p.Params = b.intern(p.Params)
		p.Time = b.time
	}
	b.particles = append(b.particles, particles...)
	b.sort()
	return nil
}

func (b *Bucket) sort() {
	sort.Slice(b.particles, func(i, j int) bool { return b.particles[i].ID < b.particles[j].ID })
}

func (b *Bucket) Time() float64 { return b.time }

func (b *Bucket) System() *System { return b.system }

func (b *Bucket) Fields() []string { return b.fields }

// Len counts the particles held, including those exited in the last step.
func (b *Bucket) Len() int { return len(b.particles) }

func (b *Bucket) Active() int {
	n := 0
	for _, p := range b.particles {
		if p.State == Active {
			n++
		}
	}
	return n
}

// Retired counts exited particles dropped from the bucket so far.
func (b *Bucket) Retired() int { return b.retired }

// Collisions is the log of every reflection so far, in step order.
func (b *Bucket) Collisions() []CollisionInfo { return b.collisions }

// retire drops the particles exited in the previous step.
func (b *Bucket) retire() {
	kept := b.particles[:0]
	for _, p := range b.particles {
		if p.State == Active {
			kept = append(kept, p)
		} else {
			b.retired++
		}
	}
	clear(b.particles[len(kept):])
	b.particles = kept
}

type stepResult struct {
	collisions []CollisionInfo
	err        error
}

// Step advances every active particle by dt. Failures of single particles
// are logged and never stop the step; the returned error is about the
// fluid data the step needs.
func (b *Bucket) Step(dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("%w: time step %g is not positive", config.ErrConfiguration, dt)
	}
	b.retire()
	end := b.time + dt
	if fluid := b.system.Fluid; fluid != nil {
		if err := fluid.Prepare(b.time, end); err != nil {
			return err
		}
		defer fluid.Release()
	}

	results := make([]stepResult, len(b.particles))
	advance := func(i int) {
		p := b.particles[i]
		results[i].collisions, results[i].err = p.Advance(b.system, dt)
	}
	if b.threads > 1 {
		var wg sync.WaitGroup
		jobs := make(chan int, len(b.particles))
		for i := range b.particles {
			jobs <- i
		}
		close(jobs)
		for range b.threads {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					advance(i)
				}
			}()
		}
		wg.Wait()
	} else {
		for i := range b.particles {
			advance(i)
		}
	}

	for i, p := range b.particles {
		r := results[i]
		for _, c := range r.collisions {
			c.Wear = Wear(c, p.Params, b.wear)
			p.Fields[FieldCollisions]++
			p.Fields[FieldWear] += c.Wear
			b.collisions = append(b.collisions, c)
		}
		if r.err != nil {
			b.report(r.err)
		}
		p.Time = end
	}
	b.time = end
	return nil
}

func (b *Bucket) report(err error) {
	log := b.system.Logger
	switch {
	case errors.Is(err, ErrNumericalDegeneracy):
		log.Warnf("%v, particle exited", err)
	case errors.Is(err, ErrEscaped):
		log.Warnf("%v without crossing the boundary", err)
	case errors.Is(err, ErrBounceLimit):
		log.Warnf("%v, particle frozen for this step", err)
	default:
		log.Errorf("%v", err)
	}
}

// Record is the state of one particle as handed to output.
type Record struct {
	ID       int
	Time     float64
	Position r3.Vec
	Velocity r3.Vec
	Fields   map[string]float64
	Alive    bool
}

// Snapshot copies the current particle states, ordered by id. Particles
// exited during the last step are included with Alive unset.
func (b *Bucket) Snapshot() []Record {
	records := make([]Record, len(b.particles))
	for i, p := range b.particles {
		records[i] = Record{
			ID:       p.ID,
			Time:     p.Time,
			Position: p.Position,
			Velocity: p.Velocity,
			Fields:   maps.Clone(p.Fields),
			Alive:    p.State == Active,
		}
	}
	return records
}
