package field

import (
	"fmt"

	"github.com/wildstyl3r/lpt/internal/config"
	"github.com/wildstyl3r/lpt/internal/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	baryTolerance = 1e-10
	nearestCells  = 12
)

// Mesh is a simplex mesh: triangles in the xy plane or tetrahedra. Points
// are located through a k-d tree over cell centroids.
type Mesh struct {
	points []r3.Vec
	cells  [][]int
	dims   int
	plane  float64 // z of a triangle mesh

	// inverse[c] maps x - v0 to the barycentric coordinates 1..dims of cell c
	inverse []*r3.Mat
	grads   [][]r3.Vec // gradients of the barycentric coordinates per cell
	tree    *kdtree.Tree
	bounds  r3.Box
}

func NewMesh(points []r3.Vec, cells [][]int) (*Mesh, error) {
	if len(points) == 0 || len(cells) == 0 {
		return nil, fmt.Errorf("%w: empty mesh", config.ErrConfiguration)
	}
	m := &Mesh{points: points, cells: cells, dims: len(cells[0]) - 1, plane: points[0].Z}
	if m.dims != 2 && m.dims != 3 {
		return nil, fmt.Errorf("%w: cells must be triangles or tetrahedra, got %d vertices", config.ErrConfiguration, len(cells[0]))
	}
	m.bounds = r3.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		m.bounds = utils.BoxUnion(m.bounds, r3.Box{Min: p, Max: p})
	}
	if m.dims == 2 && m.bounds.Min.Z != m.bounds.Max.Z {
		return nil, fmt.Errorf("%w: triangle mesh must lie in a plane of constant z", config.ErrConfiguration)
	}

	m.inverse = make([]*r3.Mat, len(cells))
	m.grads = make([][]r3.Vec, len(cells))
	centers := make(centroids, len(cells))
	for c, cell := range cells {
		if len(cell) != m.dims+1 {
			return nil, fmt.Errorf("%w: cell %d has %d vertices, expected %d", config.ErrConfiguration, c, len(cell), m.dims+1)
		}
		for _, v := range cell {
			if v < 0 || v >= len(points) {
				return nil, fmt.Errorf("%w: cell %d references point %d of %d", config.ErrConfiguration, c, v, len(points))
			}
		}
		if err := m.prepareCell(c); err != nil {
			return nil, err
		}
		var center r3.Vec
		for _, v := range cell {
			center = r3.Add(center, points[v])
		}
		centers[c] = centroid{pos: r3.Scale(1/float64(len(cell)), center), cell: c}
	}
	m.tree = kdtree.New(centers, false)
	return m, nil
}

func (m *Mesh) prepareCell(c int) error {
	cell := m.cells[c]
	v0 := m.points[cell[0]]
	edges := [3]r3.Vec{{}, {}, {Z: 1}}
	for j := 1; j <= m.dims; j++ {
		edges[j-1] = r3.Sub(m.points[cell[j]], v0)
	}
	t := mat.NewDense(3, 3, []float64{
		edges[0].X, edges[1].X, edges[2].X,
		edges[0].Y, edges[1].Y, edges[2].Y,
		edges[0].Z, edges[1].Z, edges[2].Z,
	})
	var inv mat.Dense
	if err := inv.Inverse(t); err != nil {
		return fmt.Errorf("%w: cell %d is degenerate: %w", config.ErrConfiguration, c, err)
	}
	vals := make([]float64, 9)
	for i := range 3 {
		for j := range 3 {
			vals[i*3+j] = inv.At(i, j)
		}
	}
	m.inverse[c] = r3.NewMat(vals)

	grads := make([]r3.Vec, m.dims+1)
	for j := 1; j <= m.dims; j++ {
		grads[j] = m.inverse[c].VecRow(j - 1)
		grads[0] = r3.Sub(grads[0], grads[j])
	}
	m.grads[c] = grads
	return nil
}

func (m *Mesh) Dimensions() int { return m.dims }

func (m *Mesh) Bounds() r3.Box { return m.bounds }

func (m *Mesh) NumPoints() int { return len(m.points) }

func (m *Mesh) Points() []r3.Vec { return m.points }

// barycentric returns the barycentric coordinates of x in cell c.
func (m *Mesh) barycentric(c int, x r3.Vec) []float64 {
	cell := m.cells[c]
	l := m.inverse[c].MulVec(r3.Sub(x, m.points[cell[0]]))
	w := make([]float64, m.dims+1)
	w[1], w[2] = l.X, l.Y
	if m.dims == 3 {
		w[3] = l.Z
	}
	w[0] = 1
	for _, v := range w[1:] {
		w[0] -= v
	}
	return w
}

func inside(w []float64) bool {
	for _, v := range w {
		if v < -baryTolerance {
			return false
		}
	}
	return true
}

// Locate returns the cell enclosing x and the barycentric weights of its
// vertices. Triangle meshes ignore the z coordinate of x.
func (m *Mesh) Locate(x r3.Vec) (int, []float64, error) {
	if m.dims == 2 {
		x.Z = m.plane
	}
	pad := baryTolerance * (1 + r3.Norm(m.bounds.Size()))
	if x.X < m.bounds.Min.X-pad || x.X > m.bounds.Max.X+pad ||
		x.Y < m.bounds.Min.Y-pad || x.Y > m.bounds.Max.Y+pad ||
		x.Z < m.bounds.Min.Z-pad || x.Z > m.bounds.Max.Z+pad {
		return -1, nil, fmt.Errorf("%w: %v", ErrOutsideMesh, x)
	}

	keeper := kdtree.NewNKeeper(min(nearestCells, len(m.cells)))
	m.tree.NearestSet(keeper, centroid{pos: x})
	for _, c := range keeper.Heap {
		cell := c.Comparable.(centroid).cell
		if w := m.barycentric(cell, x); inside(w) {
			return cell, w, nil
		}
	}
	// sliver cells can have distant centroids
	for cell := range m.cells {
		if w := m.barycentric(cell, x); inside(w) {
			return cell, w, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %v", ErrOutsideMesh, x)
}

type centroid struct {
	pos  r3.Vec
	cell int
}

func (c centroid) at(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return c.pos.X
	case 1:
		return c.pos.Y
	default:
		return c.pos.Z
	}
}

func (c centroid) Compare(b kdtree.Comparable, d kdtree.Dim) float64 {
	return c.at(d) - b.(centroid).at(d)
}

func (c centroid) Dims() int { return 3 }

func (c centroid) Distance(b kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(c.pos, b.(centroid).pos))
}

type centroids []centroid

func (c centroids) Index(i int) kdtree.Comparable         { return c[i] }
func (c centroids) Len() int                              { return len(c) }
func (c centroids) Pivot(d kdtree.Dim) int                { return plane{centroids: c, Dim: d}.Pivot() }
func (c centroids) Slice(start, end int) kdtree.Interface { return c[start:end] }

type plane struct {
	kdtree.Dim
	centroids
}

func (p plane) Less(i, j int) bool {
	return p.centroids[i].at(p.Dim) < p.centroids[j].at(p.Dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.centroids = p.centroids[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}

// NewBoxMesh meshes an axis-aligned box with n cells per side: two triangles
// per square in the z = b.Min.Z plane when dims is 2, six tetrahedra per cube
// otherwise.
func NewBoxMesh(b r3.Box, n, dims int) (*Mesh, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: mesh resolution must be positive, got %d", config.ErrConfiguration, n)
	}
	size := b.Size()
	nz := n
	if dims == 2 {
		nz = 0
	}
	index := func(i, j, k int) int { return (k*(n+1)+j)*(n+1) + i }
	var points []r3.Vec
	for k := 0; k <= nz; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				p := r3.Vec{
					X: b.Min.X + size.X*float64(i)/float64(n),
					Y: b.Min.Y + size.Y*float64(j)/float64(n),
					Z: b.Min.Z,
				}
				if dims == 3 {
					p.Z += size.Z * float64(k) / float64(n)
				}
				points = append(points, p)
			}
		}
	}

	var cells [][]int
	if dims == 2 {
		for j := range n {
			for i := range n {
				a, bb, c, d := index(i, j, 0), index(i+1, j, 0), index(i+1, j+1, 0), index(i, j+1, 0)
				cells = append(cells, []int{a, bb, c}, []int{a, c, d})
			}
		}
		return NewMesh(points, cells)
	}

	// Kuhn subdivision: one tetrahedron per monotone path through the cube
	paths := [6][3][3]int{
		{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}},
		{{1, 0, 0}, {1, 0, 1}, {1, 1, 1}},
		{{0, 1, 0}, {1, 1, 0}, {1, 1, 1}},
		{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}},
		{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}},
		{{0, 0, 1}, {0, 1, 1}, {1, 1, 1}},
	}
	for k := range n {
		for j := range n {
			for i := range n {
				for _, path := range paths {
					tet := []int{index(i, j, k)}
					for _, o := range path {
						tet = append(tet, index(i+o[0], j+o[1], k+o[2]))
					}
					cells = append(cells, tet)
				}
			}
		}
	}
	return NewMesh(points, cells)
}
