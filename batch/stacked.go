package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zeu5/rl-env-utils/tensor"
)

// Stacked is a lazy stack of containers along a batch dimension. Elements
// keep their own entries, reads assemble values on demand and writes split
// them back across the elements. Elements may disagree on keys and on leaf
// shapes, reading a leaf whose shapes differ across elements yields
// ErrHeterogeneousShapes.
type Stacked struct {
	elements []Container
	stackDim int
}

var _ Container = &Stacked{}

// NewStacked stacks the elements along dim. All elements must share a batch
// shape and device, key sets may differ.
func NewStacked(dim int, elements ...Container) (*Stacked, error) {
	if len(elements) == 0 {
		return nil, errors.New("batch: stacking requires at least one element")
	}
	shape := elements[0].BatchShape()
	if dim < 0 || dim > len(shape) {
		return nil, fmt.Errorf("batch: stack dim %d out of range for batch shape %v", dim, shape)
	}
	device := elements[0].Device()
	for _, el := range elements[1:] {
		if !sameShape(el.BatchShape(), shape) {
			return nil, fmt.Errorf("batch: cannot stack batch shapes %v and %v", shape, el.BatchShape())
		}
		if el.Device() != device {
			return nil, fmt.Errorf("batch: cannot stack devices %s and %s", device, el.Device())
		}
	}
	return &Stacked{elements: elements, stackDim: dim}, nil
}

// MustStacked is NewStacked panicking on error, for construction sites where
// the inputs are known to be consistent.
func MustStacked(dim int, elements ...Container) *Stacked {
	s, err := NewStacked(dim, elements...)
	if err != nil {
		panic(err)
	}
	return s
}

// StackDim returns the batch dimension the stack was made along.
func (s *Stacked) StackDim() int { return s.stackDim }

// Elements returns the stacked containers. The slice is shared.
func (s *Stacked) Elements() []Container { return s.elements }

func (s *Stacked) BatchShape() []int {
	es := s.elements[0].BatchShape()
	out := make([]int, 0, len(es)+1)
	out = append(out, es[:s.stackDim]...)
	out = append(out, len(s.elements))
	out = append(out, es[s.stackDim:]...)
	return out
}

func (s *Stacked) Device() string { return s.elements[0].Device() }

func (s *Stacked) Len() int { return len(s.Keys()) }

// Keys returns the top-level names present in every element, in the first
// element's order.
func (s *Stacked) Keys() []string {
	sets := make([]map[string]struct{}, len(s.elements)-1)
	for i, el := range s.elements[1:] {
		m := make(map[string]struct{})
		for _, n := range el.Keys() {
			m[n] = struct{}{}
		}
		sets[i] = m
	}
	var out []string
	for _, name := range s.elements[0].Keys() {
		common := true
		for _, set := range sets {
			if _, ok := set[name]; !ok {
				common = false
				break
			}
		}
		if common {
			out = append(out, name)
		}
	}
	return out
}

// LeafPaths returns the leaf paths present in every element, in the first
// element's traversal order. Leaves with differing shapes across elements
// are included.
func (s *Stacked) LeafPaths() []Key {
	sets := make([]KeySet, len(s.elements)-1)
	for i, el := range s.elements[1:] {
		sets[i] = NewKeySet(el.LeafPaths()...)
	}
	var out []Key
	for _, k := range s.elements[0].LeafPaths() {
		common := true
		for _, set := range sets {
			if !set.Has(k) {
				common = false
				break
			}
		}
		if common {
			out = append(out, k)
		}
	}
	return out
}

func (s *Stacked) Get(key Key) (Entry, error) {
	entries := make([]Entry, len(s.elements))
	leaves := 0
	for i, el := range s.elements {
		e, err := el.Get(key)
		if err != nil {
			return Entry{}, err
		}
		entries[i] = e
		if e.IsLeaf() {
			leaves++
		}
	}
	if leaves == len(entries) {
		first := entries[0].Tensor()
		ts := make([]*tensor.Dense, len(entries))
		for i, e := range entries {
			t := e.Tensor()
			if !sameShape(t.Shape(), first.Shape()) {
				return Entry{}, fmt.Errorf("%w: %q", ErrHeterogeneousShapes, key.String())
			}
			if t.DType() != first.DType() {
				return Entry{}, fmt.Errorf("batch: %q has dtype %v in one stacked element and %v in another", key.String(), first.DType(), t.DType())
			}
			ts[i] = t
		}
		return Leaf(tensor.Stack(ts, s.stackDim)), nil
	}
	if leaves == 0 {
		subs := make([]Container, len(entries))
		for i, e := range entries {
			subs[i] = e.Container()
		}
		return Sub(&Stacked{elements: subs, stackDim: s.stackDim}), nil
	}
	return Entry{}, fmt.Errorf("batch: %q is a leaf in some stacked elements and a sub-batch in others", key.String())
}

func (s *Stacked) GetOr(key Key, def Entry) (Entry, error) {
	return getOr(s, key, def)
}

func (s *Stacked) GetLeaf(key Key) (*tensor.Dense, error) {
	return getLeaf(s, key)
}

func (s *Stacked) Set(key Key, e Entry) error {
	if e.IsNil() {
		return fmt.Errorf("batch: cannot set a nil entry at %q", key.String())
	}
	if e.IsLeaf() {
		t := e.Tensor()
		if s.stackDim >= t.Rank() || t.Shape()[s.stackDim] != len(s.elements) {
			return fmt.Errorf("batch: leaf shape %v cannot split across %d elements at dim %d", t.Shape(), len(s.elements), s.stackDim)
		}
		pieces := t.Unbind(s.stackDim)
		for i, el := range s.elements {
			if err := el.Set(key, Leaf(pieces[i])); err != nil {
				return err
			}
		}
		return nil
	}
	os, ok := e.Container().(*Stacked)
	if !ok || os.stackDim != s.stackDim || len(os.elements) != len(s.elements) {
		return fmt.Errorf("batch: setting %q into a stacked batch requires a matching stacked sub-batch", key.String())
	}
	for i, el := range s.elements {
		if err := el.Set(key, Sub(os.elements[i])); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stacked) Pop(key Key) (Entry, bool) {
	e, err := s.Get(key)
	if err != nil {
		return Entry{}, false
	}
	s.Exclude(key)
	return e, true
}

func (s *Stacked) Empty() Container {
	elems := make([]Container, len(s.elements))
	for i, el := range s.elements {
		elems[i] = el.Empty()
	}
	return &Stacked{elements: elems, stackDim: s.stackDim}
}

func (s *Stacked) Select(keys []Key, strict bool) (Container, error) {
	elems := make([]Container, len(s.elements))
	for i, el := range s.elements {
		sel, err := el.Select(keys, strict)
		if err != nil {
			return nil, err
		}
		elems[i] = sel
	}
	return &Stacked{elements: elems, stackDim: s.stackDim}, nil
}

func (s *Stacked) Exclude(keys ...Key) {
	for _, el := range s.elements {
		el.Exclude(keys...)
	}
}

func (s *Stacked) Update(other Container) error {
	if os, ok := other.(*Stacked); ok && os.stackDim == s.stackDim && len(os.elements) == len(s.elements) {
		for i, el := range s.elements {
			if err := el.Update(os.elements[i]); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range other.Keys() {
		e, err := other.Get(K(name))
		if err != nil {
			return err
		}
		if err := s.Set(K(name), e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stacked) MergeWhere(mask *tensor.Dense, other Container) error {
	os, ok := other.(*Stacked)
	if !ok || os.stackDim != s.stackDim || len(os.elements) != len(s.elements) {
		return errors.New("batch: masked merge into a stacked batch requires a matching stacked source")
	}
	if s.stackDim >= mask.Rank() {
		return fmt.Errorf("batch: mask shape %v cannot split at dim %d", mask.Shape(), s.stackDim)
	}
	pieces := mask.Unbind(s.stackDim)
	for i, el := range s.elements {
		if err := el.MergeWhere(pieces[i], os.elements[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stacked) Clone() Container {
	elems := make([]Container, len(s.elements))
	for i, el := range s.elements {
		elems[i] = el.Clone()
	}
	return &Stacked{elements: elems, stackDim: s.stackDim}
}

// MarshalJSON encodes the stack as its dimension and element list.
func (s *Stacked) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`{"stack_dim":%d,"elements":[`, s.stackDim))
	for i, el := range s.elements {
		if i > 0 {
			sb.WriteString(",")
		}
		data, err := json.Marshal(el)
		if err != nil {
			return nil, err
		}
		sb.Write(data)
	}
	sb.WriteString("]}")
	return []byte(sb.String()), nil
}
