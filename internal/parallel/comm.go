// Package parallel provides the collective primitives used to move particles
// between ranks, together with the domain partitions that decide ownership.
package parallel

import (
	"errors"
	"fmt"
	"sync"
)

var ErrAborted = errors.New("communicator aborted")

// Communicator is the set of collectives a rank needs for redistribution.
// Every collective must be called by all ranks in the same order.
type Communicator interface {
	Rank() int
	Size() int
	Barrier() error
	// Exchange sends out[r] to rank r and returns the buffers received,
	// indexed by sender.
	Exchange(out [][]byte) ([][]byte, error)
	// AllReduceInt returns the sum of v over all ranks.
	AllReduceInt(v int) (int, error)
}

// Serial is the communicator of a single-process run.
type Serial struct{}

func (Serial) Rank() int      { return 0 }
func (Serial) Size() int      { return 1 }
func (Serial) Barrier() error { return nil }

func (Serial) Exchange(out [][]byte) ([][]byte, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("exchange: %d buffers for 1 rank", len(out))
	}
	return [][]byte{out[0]}, nil
}

func (Serial) AllReduceInt(v int) (int, error) { return v, nil }

// LocalGroup runs ranks as goroutines of one process. Collectives are built
// on a reusable generation barrier; a failing rank aborts the group so that
// the others leave their collectives with ErrAborted instead of blocking.
type LocalGroup struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	waiting    int
	generation int
	aborted    error

	mailbox [][][]byte // [to][from]
	sums    []int
}

func NewLocalGroup(size int) (*LocalGroup, error) {
	if size < 1 {
		return nil, fmt.Errorf("local group needs at least one rank, got %d", size)
	}
	g := &LocalGroup{
		size:    size,
		mailbox: make([][][]byte, size),
		sums:    make([]int, size),
	}
	for i := range g.mailbox {
		g.mailbox[i] = make([][]byte, size)
	}
	g.cond = sync.NewCond(&g.mu)
	return g, nil
}

func (g *LocalGroup) Size() int {
	return g.size
}

// Rank returns the communicator of rank r.
func (g *LocalGroup) Rank(r int) Communicator {
	return &member{group: g, rank: r}
}

// Run calls fn once per rank, each in its own goroutine, and waits for all
// of them. The first failure aborts the group.
func (g *LocalGroup) Run(fn func(comm Communicator) error) error {
	errs := make([]error, g.size)
	var wg sync.WaitGroup
	for r := range g.size {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			if err := fn(g.Rank(r)); err != nil {
				errs[r] = fmt.Errorf("rank %d: %w", r, err)
				g.abort(errs[r])
			}
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (g *LocalGroup) abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted == nil {
		g.aborted = fmt.Errorf("%w: %v", ErrAborted, err)
	}
	g.cond.Broadcast()
}

func (g *LocalGroup) barrier() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted != nil {
		return g.aborted
	}
	gen := g.generation
	g.waiting++
	if g.waiting == g.size {
		g.waiting = 0
		g.generation++
		g.cond.Broadcast()
		return nil
	}
	for gen == g.generation && g.aborted == nil {
		g.cond.Wait()
	}
	if gen == g.generation {
		return g.aborted
	}
	return nil
}

type member struct {
	group *LocalGroup
	rank  int
}

func (m *member) Rank() int      { return m.rank }
func (m *member) Size() int      { return m.group.size }
func (m *member) Barrier() error { return m.group.barrier() }

func (m *member) Exchange(out [][]byte) ([][]byte, error) {
	g := m.group
	if len(out) != g.size {
		return nil, fmt.Errorf("exchange: %d buffers for %d ranks", len(out), g.size)
	}
	g.mu.Lock()
	for to, b := range out {
		g.mailbox[to][m.rank] = b
	}
	g.mu.Unlock()

	if err := g.barrier(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	in := make([][]byte, g.size)
	copy(in, g.mailbox[m.rank])
	clear(g.mailbox[m.rank])
	g.mu.Unlock()

	// the mailbox row is written again only after everybody has read theirs
	if err := g.barrier(); err != nil {
		return nil, err
	}
	return in, nil
}

func (m *member) AllReduceInt(v int) (int, error) {
	g := m.group
	g.mu.Lock()
	g.sums[m.rank] = v
	g.mu.Unlock()

	if err := g.barrier(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	var sum int
	for _, s := range g.sums {
		sum += s
	}
	g.mu.Unlock()

	if err := g.barrier(); err != nil {
		return 0, err
	}
	return sum, nil
}
