package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/wildstyl3r/lpt/internal/parallel"
	"gonum.org/v1/gonum/spatial/r3"
)

// parcelEntry is the fixed-size part of a particle on the wire.
type parcelEntry struct {
	ID               int64
	Position         [3]float64
	Velocity         [3]float64
	FluidVelocity    [3]float64
	PressureGradient [3]float64
	Time             float64
	State            uint8
	Drag             uint8
	Diameter         float64
	Density          float64
	Restitution      float64
	NFields          uint32
}

func vec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

func encodeParticles(particles []*Particle) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, int64(len(particles))); err != nil {
		return nil, err
	}
	for _, p := range particles {
		entry := parcelEntry{
			ID:               int64(p.ID),
			Position:         [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
			Velocity:         [3]float64{p.Velocity.X, p.Velocity.Y, p.Velocity.Z},
			FluidVelocity:    [3]float64{p.FluidVelocity.X, p.FluidVelocity.Y, p.FluidVelocity.Z},
			PressureGradient: [3]float64{p.PressureGradient.X, p.PressureGradient.Y, p.PressureGradient.Z},
			Time:             p.Time,
			State:            uint8(p.State),
			Drag:             uint8(p.Params.Drag),
			Diameter:         p.Params.Diameter,
			Density:          p.Params.Density,
			Restitution:      p.Params.Restitution,
			NFields:          uint32(len(p.Fields)),
		}
		if err := binary.Write(&buf, binary.LittleEndian, &entry); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(p.Fields))
		for name := range p.Fields {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if err := binary.Write(&buf, binary.LittleEndian, uint16(len(name))); err != nil {
				return nil, err
			}
			buf.WriteString(name)
			if err := binary.Write(&buf, binary.LittleEndian, p.Fields[name]); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func decodeParticles(data []byte) ([]*Particle, error) {
	if len(data) == 0 {
		return nil, nil
	}
	rd := bytes.NewReader(data)
	var n int64
	if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	particles := make([]*Particle, 0, n)
	for range n {
		var entry parcelEntry
		if err := binary.Read(rd, binary.LittleEndian, &entry); err != nil {
			return nil, err
		}
		p := &Particle{
			ID:               int(entry.ID),
			Position:         vec(entry.Position),
			Velocity:         vec(entry.Velocity),
			FluidVelocity:    vec(entry.FluidVelocity),
			PressureGradient: vec(entry.PressureGradient),
			Time:             entry.Time,
			State:            State(entry.State),
			Params: &PhysicalParticle{
				Diameter:    entry.Diameter,
				Density:     entry.Density,
				Restitution: entry.Restitution,
				Drag:        DragLaw(entry.Drag),
			},
			Fields: make(map[string]float64, entry.NFields),
		}
		for range entry.NFields {
			var length uint16
			if err := binary.Read(rd, binary.LittleEndian, &length); err != nil {
				return nil, err
			}
			name := make([]byte, length)
			if _, err := io.ReadFull(rd, name); err != nil {
				return nil, err
			}
			var v float64
			if err := binary.Read(rd, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			p.Fields[string(name)] = v
		}
		particles = append(particles, p)
	}
	if rd.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes in parcel", rd.Len())
	}
	return particles, nil
}

func encodeIDs(ids []int) ([]byte, error) {
	var buf bytes.Buffer
	wide := make([]int64, len(ids))
	for i, id := range ids {
		wide[i] = int64(id)
	}
	if err := binary.Write(&buf, binary.LittleEndian, int64(len(ids))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, wide); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeIDs(data []byte) ([]int, error) {
	if len(data) == 0 {
		return nil, nil
	}
	rd := bytes.NewReader(data)
	var n int64
	if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n < 0 || n*8 != int64(rd.Len()) {
		return nil, fmt.Errorf("acknowledgement of %d ids in %d bytes", n, rd.Len())
	}
	wide := make([]int64, n)
	if err := binary.Read(rd, binary.LittleEndian, wide); err != nil {
		return nil, err
	}
	ids := make([]int, n)
	for i, id := range wide {
		ids[i] = int(id)
	}
	return ids, nil
}

func (b *Bucket) pack(data []byte) ([]byte, error) {
	if !b.compress {
		return data, nil
	}
	return parallel.Compress(data)
}

func (b *Bucket) unpack(data []byte) ([]byte, error) {
	if !b.compress {
		return data, nil
	}
	return parallel.Decompress(data)
}

// exchange packs, exchanges and unpacks one buffer per rank.
func (b *Bucket) exchange(comm parallel.Communicator, out [][]byte) ([][]byte, error) {
	for r := range out {
		packed, err := b.pack(out[r])
		if err != nil {
			return nil, err
		}
		out[r] = packed
	}
	in, err := comm.Exchange(out)
	if err != nil {
		return nil, err
	}
	for r := range in {
		if in[r], err = b.unpack(in[r]); err != nil {
			return nil, fmt.Errorf("parcel from rank %d: %w", r, err)
		}
	}
	return in, nil
}

// Redistribute hands every active particle to the rank that owns its
// position. It is collective: all ranks must call it together.
//
// Particles are sent first; a receiver accepts a parcel only if none of its
// ids is already present, and answers with the accepted ids. A sender drops
// its copies only after the acknowledgement matches what it sent. The total
// number of active particles is compared before and after.
func (b *Bucket) Redistribute(comm parallel.Communicator, partition parallel.Partition) error {
	rank, size := comm.Rank(), comm.Size()
	before, err := comm.AllReduceInt(b.Active())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedistribution, err)
	}

	leaving := make([][]*Particle, size)
	for _, p := range b.particles {
		if p.State != Active {
			continue
		}
		owner := partition.Owner(p.Position, p.ID, size)
		if owner < 0 || owner >= size {
			return fmt.Errorf("%w: particle %d assigned to rank %d of %d", ErrRedistribution, p.ID, owner, size)
		}
		if owner != rank {
			leaving[owner] = append(leaving[owner], p)
		}
	}

	out := make([][]byte, size)
	for r, ps := range leaving {
		if len(ps) == 0 {
			continue
		}
		if out[r], err = encodeParticles(ps); err != nil {
			return fmt.Errorf("%w: %v", ErrRedistribution, err)
		}
	}
	in, err := b.exchange(comm, out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedistribution, err)
	}

	present := make(map[int]bool, len(b.particles))
	for _, p := range b.particles {
		present[p.ID] = true
	}
	var arrived []*Particle
	acks := make([][]byte, size)
	for from, data := range in {
		if from == rank || len(data) == 0 {
			continue
		}
		ps, err := decodeParticles(data)
		if err != nil {
			return fmt.Errorf("%w: parcel from rank %d: %v", ErrRedistribution, from, err)
		}
		ids := make([]int, len(ps))
		for i, p := range ps {
			if present[p.ID] {
				return fmt.Errorf("%w: particle %d from rank %d is already on rank %d", ErrRedistribution, p.ID, from, rank)
			}
			if err := b.checkSchema(p); err != nil {
				return fmt.Errorf("%w: %v", ErrRedistribution, err)
			}
			present[p.ID] = true
			ids[i] = p.ID
		}
		if acks[from], err = encodeIDs(ids); err != nil {
			return fmt.Errorf("%w: %v", ErrRedistribution, err)
		}
		arrived = append(arrived, ps...)
	}

	in, err = b.exchange(comm, acks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedistribution, err)
	}
	gone := make(map[int]bool)
	for to, ps := range leaving {
		if len(ps) == 0 {
			continue
		}
		ids, err := decodeIDs(in[to])
		if err != nil {
			return fmt.Errorf("%w: acknowledgement from rank %d: %v", ErrRedistribution, to, err)
		}
		if len(ids) != len(ps) {
			return fmt.Errorf("%w: rank %d accepted %d of %d particles", ErrRedistribution, to, len(ids), len(ps))
		}
		for i, p := range ps {
			if ids[i] != p.ID {
				return fmt.Errorf("%w: rank %d acknowledged particle %d instead of %d", ErrRedistribution, to, ids[i], p.ID)
			}
			gone[p.ID] = true
		}
	}

	kept := b.particles[:0]
	for _, p := range b.particles {
		if !gone[p.ID] {
			kept = append(kept, p)
		}
	}
	clear(b.particles[len(kept):])
	b.particles = kept
	for _, p := range arrived {
		p.Params = b.intern(p.Params)
		p.Time = b.time
	}
	b.particles = append(b.particles, arrived...)
	b.sort()

	after, err := comm.AllReduceInt(b.Active())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedistribution, err)
	}
	if after != before {
		return fmt.Errorf("%w: %d active particles before, %d after", ErrRedistribution, before, after)
	}
	return nil
}
