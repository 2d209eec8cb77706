package env

import (
	"fmt"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/tensor"
)

// Spec describes the dtype and shape of a value, or a named collection of
// child specs. Composite specs mirror the nesting of batches, their shape
// is the batch shape of the node. Shapes on leaf specs are full value
// shapes including the batch dimensions.
type Spec struct {
	dtype     tensor.DType
	shape     []int
	low, high float64
	n         int64

	composite bool
	names     []string
	children  map[string]*Spec
}

// Unbounded returns a leaf spec with no value bounds. Float64 leaves sample
// uniformly from [0, 1).
func Unbounded(dtype tensor.DType, shape []int) *Spec {
	return &Spec{dtype: dtype, shape: cloneShape(shape), low: 0, high: 1}
}

// Bounded returns a float64 leaf spec with values in [low, high).
func Bounded(low, high float64, shape []int) *Spec {
	return &Spec{dtype: tensor.Float64, shape: cloneShape(shape), low: low, high: high}
}

// Categorical returns an int64 leaf spec with values in [0, n).
func Categorical(n int64, shape []int) *Spec {
	return &Spec{dtype: tensor.Int64, shape: cloneShape(shape), n: n}
}

// Binary returns a bool leaf spec.
func Binary(shape []int) *Spec {
	return &Spec{dtype: tensor.Bool, shape: cloneShape(shape)}
}

// NewComposite returns an empty composite spec with the given batch shape.
func NewComposite(batchShape []int) *Spec {
	return &Spec{
		composite: true,
		shape:     cloneShape(batchShape),
		children:  make(map[string]*Spec),
	}
}

func cloneShape(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

// IsComposite reports whether the spec is a collection of children.
func (s *Spec) IsComposite() bool { return s.composite }

func (s *Spec) DType() tensor.DType { return s.dtype }

// Shape returns the value shape of a leaf spec, or the batch shape of a
// composite one.
func (s *Spec) Shape() []int { return cloneShape(s.shape) }

// N returns the category count of a categorical leaf, zero otherwise.
func (s *Spec) N() int64 { return s.n }

// Bounds returns the sampling bounds of a float leaf.
func (s *Spec) Bounds() (low, high float64) { return s.low, s.high }

// Keys returns the child names of a composite spec in insertion order.
func (s *Spec) Keys() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Child returns the direct child spec, nil when absent.
func (s *Spec) Child(name string) *Spec {
	if !s.composite {
		return nil
	}
	return s.children[name]
}

// Set stores a child spec at the path, materializing intermediate
// composites with this spec's batch shape. Panics on a leaf receiver.
func (s *Spec) Set(key batch.Key, child *Spec) *Spec {
	if !s.composite {
		panic("env: cannot set a child on a leaf spec")
	}
	if len(key) == 0 {
		panic("env: cannot set the empty key")
	}
	name := key[0]
	if len(key) == 1 {
		if _, ok := s.children[name]; !ok {
			s.names = append(s.names, name)
		}
		s.children[name] = child
		return s
	}
	sub, ok := s.children[name]
	if !ok || !sub.composite {
		sub = NewComposite(s.shape)
		if !ok {
			s.names = append(s.names, name)
		}
		s.children[name] = sub
	}
	sub.Set(key[1:], child)
	return s
}

// Get returns the spec at the path.
func (s *Spec) Get(key batch.Key) (*Spec, bool) {
	cur := s
	for _, name := range key {
		if !cur.composite {
			return nil, false
		}
		next, ok := cur.children[name]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// LeafPaths returns the paths of all leaf specs in traversal order.
func (s *Spec) LeafPaths() []batch.Key {
	var out []batch.Key
	s.appendLeafPaths(nil, &out)
	return out
}

func (s *Spec) appendLeafPaths(prefix batch.Key, out *[]batch.Key) {
	if !s.composite {
		if len(prefix) > 0 {
			*out = append(*out, prefix.Clone())
		}
		return
	}
	for _, name := range s.names {
		s.children[name].appendLeafPaths(prefix.Child(name), out)
	}
}

// Zero builds a zero-filled batch with the structure of a composite spec.
func (s *Spec) Zero(device string) (*batch.Batch, error) {
	if !s.composite {
		return nil, fmt.Errorf("env: Zero needs a composite spec")
	}
	b := batch.New(s.shape, device)
	for _, name := range s.names {
		child := s.children[name]
		if child.composite {
			sub, err := child.Zero(device)
			if err != nil {
				return nil, err
			}
			if err := b.Set(batch.K(name), batch.Sub(sub)); err != nil {
				return nil, err
			}
			continue
		}
		t := tensor.ZerosOn(device, child.dtype, child.shape)
		if err := b.Set(batch.K(name), batch.Leaf(t)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// FromBatch derives a spec tree mirroring the batch structure, leaves
// become unbounded specs with the observed dtype and shape.
func FromBatch(c batch.Container) (*Spec, error) {
	s := NewComposite(c.BatchShape())
	for _, name := range c.Keys() {
		e, err := c.Get(batch.K(name))
		if err != nil {
			return nil, err
		}
		if e.IsLeaf() {
			t := e.Tensor()
			s.Set(batch.K(name), Unbounded(t.DType(), t.Shape()))
			continue
		}
		sub, err := FromBatch(e.Container())
		if err != nil {
			return nil, err
		}
		s.Set(batch.K(name), sub)
	}
	return s, nil
}
