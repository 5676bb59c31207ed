package geom

import (
	"math"
	"sort"

	"github.com/wildstyl3r/lpt/internal/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

const leafSize = 4

type bvhNode struct {
	box         r3.Box
	left, right int   // child node indices, -1 for leaves
	faces       []int // face indices held by a leaf
}

// bvh is a bounding volume hierarchy over face boxes, stored as a flat node
// slice with the root at index 0.
type bvh struct {
	nodes []bvhNode
	flat  bool // ignore z: segment boundaries live in the xy plane
}

func buildBVH(boxes []r3.Box, flat bool) bvh {
	tree := bvh{flat: flat}
	if len(boxes) == 0 {
		return tree
	}
	indices := make([]int, len(boxes))
	for i := range indices {
		indices[i] = i
	}
	tree.build(boxes, indices)
	return tree
}

func (t *bvh) build(boxes []r3.Box, indices []int) int {
	box := boxes[indices[0]]
	for _, i := range indices[1:] {
		box = utils.BoxUnion(box, boxes[i])
	}
	node := len(t.nodes)
	t.nodes = append(t.nodes, bvhNode{box: box, left: -1, right: -1})
	if len(indices) <= leafSize {
		t.nodes[node].faces = append([]int(nil), indices...)
		return node
	}

	size := r3.Sub(box.Max, box.Min)
	if t.flat {
		size.Z = 0
	}
	axis := func(v r3.Vec) float64 { return v.X }
	if size.Y >= size.X && size.Y >= size.Z {
		axis = func(v r3.Vec) float64 { return v.Y }
	} else if size.Z >= size.X && size.Z >= size.Y {
		axis = func(v r3.Vec) float64 { return v.Z }
	}
	// stable order keeps builds reproducible for identical input
	sort.SliceStable(indices, func(i, j int) bool {
		return axis(boxes[indices[i]].Center()) < axis(boxes[indices[j]].Center())
	})
	mid := len(indices) / 2
	left := t.build(boxes, indices[:mid])
	right := t.build(boxes, indices[mid:])
	t.nodes[node].left, t.nodes[node].right = left, right
	return node
}

// refit recomputes node boxes bottom-up without changing the topology.
func (t *bvh) refit(boxes []r3.Box) {
	if len(t.nodes) > 0 {
		t.refitNode(0, boxes)
	}
}

func (t *bvh) refitNode(node int, boxes []r3.Box) r3.Box {
	n := &t.nodes[node]
	if n.left < 0 {
		box := boxes[n.faces[0]]
		for _, i := range n.faces[1:] {
			box = utils.BoxUnion(box, boxes[i])
		}
		n.box = box
		return box
	}
	box := utils.BoxUnion(t.refitNode(n.left, boxes), t.refitNode(n.right, boxes))
	t.nodes[node].box = box
	return box
}

// visit calls fn for every face whose leaf box is crossed by p0->p1, pruning
// subtrees that start beyond tMax.
func (t *bvh) visit(p0, p1 r3.Vec, tMax func() float64, fn func(face int)) {
	if len(t.nodes) == 0 {
		return
	}
	dir := r3.Sub(p1, p0)
	stack := []int{0}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[node]
		entry, ok := slab(n.box, p0, dir, t.flat)
		if !ok || entry > tMax() {
			continue
		}
		if n.left < 0 {
			for _, f := range n.faces {
				fn(f)
			}
			continue
		}
		stack = append(stack, n.right, n.left)
	}
}

// slab intersects the segment p0 + t*dir, t in [0,1], with a box, returning
// the entry parameter. Flat boxes are padded so that planar faces are hit.
func slab(b r3.Box, p0, dir r3.Vec, flat bool) (float64, bool) {
	const pad = 1e-12
	tMin, tMax := 0., 1.
	axes := [][4]float64{
		{p0.X, dir.X, b.Min.X, b.Max.X},
		{p0.Y, dir.Y, b.Min.Y, b.Max.Y},
	}
	if !flat {
		axes = append(axes, [4]float64{p0.Z, dir.Z, b.Min.Z, b.Max.Z})
	}
	for _, c := range axes {
		origin, d := c[0], c[1]
		width := pad * math.Max(1, math.Abs(c[2])+math.Abs(c[3]))
		lo, hi := c[2]-width, c[3]+width
		if d == 0 {
			if origin < lo || origin > hi {
				return 0, false
			}
			continue
		}
		t0, t1 := (lo-origin)/d, (hi-origin)/d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tMin, tMax = math.Max(tMin, t0), math.Min(tMax, t1)
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}
