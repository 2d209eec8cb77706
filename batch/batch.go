package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zeu5/rl-env-utils/tensor"
)

var (
	// ErrKeyNotFound reports a lookup of a path with no entry.
	ErrKeyNotFound = errors.New("key not found")
	// ErrHeterogeneousShapes reports a leaf read through a stacked batch
	// whose elements hold tensors of differing shapes. Callers that can
	// recover do so by operating on the stacked elements one by one.
	ErrHeterogeneousShapes = errors.New("stacked elements hold differing shapes")
)

// Entry is the value stored under a key, either a leaf tensor or a nested
// sub-batch. Exactly one of the two is set.
type Entry struct {
	leaf *tensor.Dense
	sub  Container
}

// Leaf wraps a tensor as an entry.
func Leaf(t *tensor.Dense) Entry { return Entry{leaf: t} }

// Sub wraps a container as an entry.
func Sub(c Container) Entry { return Entry{sub: c} }

// IsLeaf reports whether the entry holds a tensor.
func (e Entry) IsLeaf() bool { return e.leaf != nil }

// IsNil reports whether the entry holds nothing, the zero Entry.
func (e Entry) IsNil() bool { return e.leaf == nil && e.sub == nil }

// Tensor returns the leaf tensor, nil for sub-batch entries.
func (e Entry) Tensor() *tensor.Dense { return e.leaf }

// Container returns the nested sub-batch, nil for leaf entries.
func (e Entry) Container() Container { return e.sub }

// Container is the common surface of plain and stacked batches. Keys address
// entries by path, sub-batches are containers themselves.
type Container interface {
	// BatchShape returns the leading dimensions shared by all leaves.
	BatchShape() []int
	// Device returns the device tag of the container.
	Device() string
	// Len returns the number of top-level entries.
	Len() int
	// Keys returns the top-level entry names in deterministic order.
	Keys() []string
	// LeafPaths returns the full paths of all leaf entries.
	LeafPaths() []Key
	// Get returns the entry at the path. Missing paths yield an error
	// wrapping ErrKeyNotFound.
	Get(key Key) (Entry, error)
	// GetOr returns the entry at the path, or def when the path is
	// missing. Failures other than a missing path are returned.
	GetOr(key Key, def Entry) (Entry, error)
	// GetLeaf returns the tensor at the path, failing on sub-batches.
	GetLeaf(key Key) (*tensor.Dense, error)
	// Set stores the entry at the path, materializing missing
	// intermediate nodes as empty sub-batches.
	Set(key Key, e Entry) error
	// Pop removes and returns the entry at the path.
	Pop(key Key) (Entry, bool)
	// Empty returns a new container with the same batch shape and device
	// and no entries.
	Empty() Container
	// Select returns a new container holding only the given paths. When
	// strict, missing paths are an error, otherwise they are skipped.
	// Selected values are shared, not copied.
	Select(keys []Key, strict bool) (Container, error)
	// Exclude removes the given paths where present.
	Exclude(keys ...Key)
	// Update merges the entries of other into the container, descending
	// into sub-batches present on both sides and overwriting leaves.
	Update(other Container) error
	// MergeWhere replaces entry values with those of other wherever mask
	// is true, keeping current values elsewhere. Leaves missing from
	// other are treated as zero-filled.
	MergeWhere(mask *tensor.Dense, other Container) error
	// Clone returns a deep copy.
	Clone() Container
}

// Batch is an ordered mapping from names to entries with a fixed batch
// shape and device tag. Entries keep insertion order.
type Batch struct {
	shape  []int
	device string
	names  []string
	items  map[string]Entry
}

var _ Container = &Batch{}

// New returns an empty batch. An empty device defaults to the cpu tag.
func New(shape []int, device string) *Batch {
	if device == "" {
		device = tensor.DefaultDevice
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Batch{
		shape:  s,
		device: device,
		items:  make(map[string]Entry),
	}
}

func (b *Batch) BatchShape() []int {
	out := make([]int, len(b.shape))
	copy(out, b.shape)
	return out
}

func (b *Batch) Device() string { return b.device }

func (b *Batch) Len() int { return len(b.names) }

func (b *Batch) Keys() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

func (b *Batch) LeafPaths() []Key {
	var out []Key
	for _, name := range b.names {
		e := b.items[name]
		if e.IsLeaf() {
			out = append(out, K(name))
			continue
		}
		for _, sub := range e.Container().LeafPaths() {
			full := make(Key, 0, 1+len(sub))
			full = append(full, name)
			full = append(full, sub...)
			out = append(out, full)
		}
	}
	return out
}

func (b *Batch) Get(key Key) (Entry, error) {
	if len(key) == 0 {
		return Entry{}, fmt.Errorf("%w: empty key", ErrKeyNotFound)
	}
	e, ok := b.items[key[0]]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key.String())
	}
	if len(key) == 1 {
		return e, nil
	}
	if e.IsLeaf() {
		return Entry{}, fmt.Errorf("%w: %q is a leaf, cannot descend to %q", ErrKeyNotFound, key[0], key.String())
	}
	return e.Container().Get(key[1:])
}

func (b *Batch) GetOr(key Key, def Entry) (Entry, error) {
	return getOr(b, key, def)
}

func (b *Batch) GetLeaf(key Key) (*tensor.Dense, error) {
	return getLeaf(b, key)
}

func getOr(c Container, key Key, def Entry) (Entry, error) {
	e, err := c.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return def, nil
	}
	return e, err
}

func getLeaf(c Container, key Key) (*tensor.Dense, error) {
	e, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	if !e.IsLeaf() {
		return nil, fmt.Errorf("batch: %q is a sub-batch, not a leaf", key.String())
	}
	return e.Tensor(), nil
}

func (b *Batch) Set(key Key, e Entry) error {
	if len(key) == 0 {
		return errors.New("batch: cannot set the empty key")
	}
	if e.IsNil() {
		return fmt.Errorf("batch: cannot set a nil entry at %q", key.String())
	}
	name := key[0]
	if len(key) == 1 {
		if e.IsLeaf() {
			t := e.Tensor()
			if t.Rank() < len(b.shape) || !sameShape(t.Shape()[:len(b.shape)], b.shape) {
				return fmt.Errorf("batch: value shape %v does not extend batch shape %v at %q", t.Shape(), b.shape, name)
			}
		}
		b.setTop(name, e)
		return nil
	}
	cur, ok := b.items[name]
	var sub Container
	if ok && !cur.IsLeaf() {
		sub = cur.Container()
	} else {
		sub = New(b.shape, b.device)
		b.setTop(name, Sub(sub))
	}
	return sub.Set(key[1:], e)
}

func (b *Batch) setTop(name string, e Entry) {
	if _, ok := b.items[name]; !ok {
		b.names = append(b.names, name)
	}
	b.items[name] = e
}

func (b *Batch) deleteTop(name string) {
	if _, ok := b.items[name]; !ok {
		return
	}
	delete(b.items, name)
	for i, n := range b.names {
		if n == name {
			b.names = append(b.names[:i], b.names[i+1:]...)
			break
		}
	}
}

func (b *Batch) Pop(key Key) (Entry, bool) {
	if len(key) == 0 {
		return Entry{}, false
	}
	name := key[0]
	cur, ok := b.items[name]
	if !ok {
		return Entry{}, false
	}
	if len(key) == 1 {
		b.deleteTop(name)
		return cur, true
	}
	if cur.IsLeaf() {
		return Entry{}, false
	}
	return cur.Container().Pop(key[1:])
}

func (b *Batch) Empty() Container {
	return New(b.shape, b.device)
}

func (b *Batch) Select(keys []Key, strict bool) (Container, error) {
	out := New(b.shape, b.device)
	for _, k := range keys {
		e, err := b.Get(k)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) && !strict {
				continue
			}
			return nil, err
		}
		if err := out.Set(k, e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *Batch) Exclude(keys ...Key) {
	for _, k := range keys {
		b.exclude(k)
	}
}

func (b *Batch) exclude(k Key) {
	if len(k) == 0 {
		return
	}
	name := k[0]
	cur, ok := b.items[name]
	if !ok {
		return
	}
	if len(k) == 1 {
		b.deleteTop(name)
		return
	}
	if cur.IsLeaf() {
		return
	}
	cur.Container().Exclude(k[1:])
}

func (b *Batch) Update(other Container) error {
	for _, name := range other.Keys() {
		theirs, err := other.Get(K(name))
		if err != nil {
			return err
		}
		if !theirs.IsLeaf() {
			if cur, ok := b.items[name]; ok && !cur.IsLeaf() {
				if err := cur.Container().Update(theirs.Container()); err != nil {
					return err
				}
				continue
			}
		}
		if err := b.Set(K(name), theirs); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) MergeWhere(mask *tensor.Dense, other Container) error {
	for _, name := range b.names {
		cur := b.items[name]
		if cur.IsLeaf() {
			t := cur.Tensor()
			var ot *tensor.Dense
			oe, err := other.Get(K(name))
			switch {
			case errors.Is(err, ErrKeyNotFound):
				ot = tensor.ZerosOn(t.Device(), t.DType(), t.Shape())
			case err != nil:
				return err
			case !oe.IsLeaf():
				return fmt.Errorf("batch: merge mismatch at %q: leaf here, sub-batch there", name)
			default:
				ot = oe.Tensor()
			}
			b.items[name] = Leaf(ot.Where(mask, t))
			continue
		}
		sub := cur.Container()
		var osub Container
		oe, err := other.Get(K(name))
		switch {
		case errors.Is(err, ErrKeyNotFound):
			osub = sub.Empty()
		case err != nil:
			return err
		case oe.IsLeaf():
			return fmt.Errorf("batch: merge mismatch at %q: sub-batch here, leaf there", name)
		default:
			osub = oe.Container()
		}
		if err := sub.MergeWhere(mask, osub); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) Clone() Container {
	out := New(b.shape, b.device)
	for _, name := range b.names {
		e := b.items[name]
		if e.IsLeaf() {
			out.setTop(name, Leaf(e.Tensor().Clone()))
		} else {
			out.setTop(name, Sub(e.Container().Clone()))
		}
	}
	return out
}

// Equal reports whether two containers hold the same leaf paths with equal
// tensors and share a batch shape. Entry order is ignored.
func Equal(a, b Container) bool {
	if !sameShape(a.BatchShape(), b.BatchShape()) {
		return false
	}
	ap, bp := a.LeafPaths(), b.LeafPaths()
	if len(ap) != len(bp) {
		return false
	}
	bset := NewKeySet(bp...)
	for _, k := range ap {
		if !bset.Has(k) {
			return false
		}
		at, err := a.GetLeaf(k)
		if err != nil {
			return false
		}
		bt, err := b.GetLeaf(k)
		if err != nil {
			return false
		}
		if !at.Equal(bt) {
			return false
		}
	}
	return true
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the batch as a nested object in entry order.
func (b *Batch) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("{")
	for i, name := range b.names {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf("%q:", name))
		e := b.items[name]
		var data []byte
		var err error
		if e.IsLeaf() {
			data, err = e.Tensor().MarshalJSON()
		} else {
			data, err = json.Marshal(e.Container())
		}
		if err != nil {
			return nil, err
		}
		sb.Write(data)
	}
	sb.WriteString("}")
	return []byte(sb.String()), nil
}
