package field

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

type fieldRef struct {
	vector bool
	slot   int
}

// MeshSnapshot holds point data on a Mesh. Values are interpolated with the
// barycentric weights of the enclosing cell; gradients are constant per cell.
type MeshSnapshot struct {
	mesh    *Mesh
	time    float64
	index   map[string]fieldRef
	vectors [][]r3.Vec
	scalars [][]float64
}

func NewMeshSnapshot(mesh *Mesh, time float64) *MeshSnapshot {
	return &MeshSnapshot{mesh: mesh, time: time, index: make(map[string]fieldRef)}
}

func (s *MeshSnapshot) AddVector(name string, values []r3.Vec) error {
	if len(values) != s.mesh.NumPoints() {
		return fmt.Errorf("field %s: %d values for %d points", name, len(values), s.mesh.NumPoints())
	}
	s.index[name] = fieldRef{vector: true, slot: len(s.vectors)}
	s.vectors = append(s.vectors, values)
	return nil
}

func (s *MeshSnapshot) AddScalar(name string, values []float64) error {
	if len(values) != s.mesh.NumPoints() {
		return fmt.Errorf("field %s: %d values for %d points", name, len(values), s.mesh.NumPoints())
	}
	s.index[name] = fieldRef{slot: len(s.scalars)}
	s.scalars = append(s.scalars, values)
	return nil
}

func (s *MeshSnapshot) Time() float64 { return s.time }

func (s *MeshSnapshot) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *MeshSnapshot) lookup(name string, vector bool) (fieldRef, error) {
	ref, ok := s.index[name]
	if !ok || ref.vector != vector {
		return ref, fmt.Errorf("%w: %s at t=%g", ErrFieldUnavailable, name, s.time)
	}
	return ref, nil
}

func (s *MeshSnapshot) Vector(name string, x r3.Vec) (r3.Vec, error) {
	ref, err := s.lookup(name, true)
	if err != nil {
		return r3.Vec{}, err
	}
	c, w, err := s.mesh.Locate(x)
	if err != nil {
		return r3.Vec{}, err
	}
	var v r3.Vec
	for k, p := range s.mesh.cells[c] {
		v = r3.Add(v, r3.Scale(w[k], s.vectors[ref.slot][p]))
	}
	return v, nil
}

func (s *MeshSnapshot) Scalar(name string, x r3.Vec) (float64, error) {
	ref, err := s.lookup(name, false)
	if err != nil {
		return 0, err
	}
	c, w, err := s.mesh.Locate(x)
	if err != nil {
		return 0, err
	}
	var v float64
	for k, p := range s.mesh.cells[c] {
		v += w[k] * s.scalars[ref.slot][p]
	}
	return v, nil
}

func (s *MeshSnapshot) Gradient(name string, x r3.Vec) (*r3.Mat, error) {
	ref, err := s.lookup(name, true)
	if err != nil {
		return nil, err
	}
	c, _, err := s.mesh.Locate(x)
	if err != nil {
		return nil, err
	}
	g := r3.NewMat(nil)
	var outer r3.Mat
	for k, p := range s.mesh.cells[c] {
		outer.Outer(1, s.vectors[ref.slot][p], s.mesh.grads[c][k])
		g.Add(g, &outer)
	}
	return g, nil
}

func (s *MeshSnapshot) ScalarGradient(name string, x r3.Vec) (r3.Vec, error) {
	ref, err := s.lookup(name, false)
	if err != nil {
		return r3.Vec{}, err
	}
	c, _, err := s.mesh.Locate(x)
	if err != nil {
		return r3.Vec{}, err
	}
	var g r3.Vec
	for k, p := range s.mesh.cells[c] {
		g = r3.Add(g, r3.Scale(s.scalars[ref.slot][p], s.mesh.grads[c][k]))
	}
	return g, nil
}

const finiteDifferenceStep = 1e-6

// FuncSnapshot evaluates closed-form fields. Derivatives use central finite
// differences. A nil Domain accepts every point.
type FuncSnapshot struct {
	T       float64
	Vectors map[string]func(r3.Vec) r3.Vec
	Scalars map[string]func(r3.Vec) float64
	Domain  *r3.Box
}

func (s *FuncSnapshot) Time() float64 { return s.T }

func (s *FuncSnapshot) Has(name string) bool {
	_, vector := s.Vectors[name]
	_, scalar := s.Scalars[name]
	return vector || scalar
}

func (s *FuncSnapshot) check(x r3.Vec) error {
	if d := s.Domain; d != nil && !(d.Min.X <= x.X && x.X <= d.Max.X &&
		d.Min.Y <= x.Y && x.Y <= d.Max.Y && d.Min.Z <= x.Z && x.Z <= d.Max.Z) {
		return fmt.Errorf("%w: %v", ErrOutsideMesh, x)
	}
	return nil
}

func (s *FuncSnapshot) vector(name string, x r3.Vec) (func(r3.Vec) r3.Vec, error) {
	f, ok := s.Vectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s at t=%g", ErrFieldUnavailable, name, s.T)
	}
	return f, s.check(x)
}

func (s *FuncSnapshot) scalar(name string, x r3.Vec) (func(r3.Vec) float64, error) {
	f, ok := s.Scalars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s at t=%g", ErrFieldUnavailable, name, s.T)
	}
	return f, s.check(x)
}

func (s *FuncSnapshot) Vector(name string, x r3.Vec) (r3.Vec, error) {
	f, err := s.vector(name, x)
	if err != nil {
		return r3.Vec{}, err
	}
	return f(x), nil
}

func (s *FuncSnapshot) Scalar(name string, x r3.Vec) (float64, error) {
	f, err := s.scalar(name, x)
	if err != nil {
		return 0, err
	}
	return f(x), nil
}

func (s *FuncSnapshot) Gradient(name string, x r3.Vec) (*r3.Mat, error) {
	f, err := s.vector(name, x)
	if err != nil {
		return nil, err
	}
	g := r3.NewMat(nil)
	h := finiteDifferenceStep
	g.Jacobian(x, r3.Vec{X: h, Y: h, Z: h}, f)
	return g, nil
}

func (s *FuncSnapshot) ScalarGradient(name string, x r3.Vec) (r3.Vec, error) {
	f, err := s.scalar(name, x)
	if err != nil {
		return r3.Vec{}, err
	}
	h := finiteDifferenceStep
	return r3.Gradient(x, r3.Vec{X: h, Y: h, Z: h}, f), nil
}
