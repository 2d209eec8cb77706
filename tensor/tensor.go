package tensor

import (
	"fmt"
	"strings"
)

// DefaultDevice is the device tag assigned when none is specified.
const DefaultDevice = "cpu"

// DType enumerates the element types a Dense tensor can hold.
type DType int

const (
	Bool DType = iota
	Int64
	Float64
)

func (d DType) String() string {
	switch d {
	case Bool:
		return "bool"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// Dense is a dtype-tagged n-dimensional array backed by a flat slice in
// row-major order. A nil or empty shape denotes a scalar with one element.
// All operations are out of place unless documented otherwise. Operations
// panic on shape or dtype misuse, these are programming errors and not
// data-dependent conditions.
type Dense struct {
	dtype  DType
	shape  []int
	device string

	bools  []bool
	ints   []int64
	floats []float64
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func cloneShape(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

func newDense(dtype DType, shape []int, device string) *Dense {
	if device == "" {
		device = DefaultDevice
	}
	t := &Dense{dtype: dtype, shape: cloneShape(shape), device: device}
	n := numel(shape)
	switch dtype {
	case Bool:
		t.bools = make([]bool, n)
	case Int64:
		t.ints = make([]int64, n)
	case Float64:
		t.floats = make([]float64, n)
	default:
		panic(fmt.Sprintf("tensor: unknown dtype %v", dtype))
	}
	return t
}

// Zeros returns a zero-filled tensor on the default device.
func Zeros(dtype DType, shape []int) *Dense {
	return newDense(dtype, shape, DefaultDevice)
}

// ZerosOn returns a zero-filled tensor carrying the given device tag.
func ZerosOn(device string, dtype DType, shape []int) *Dense {
	return newDense(dtype, shape, device)
}

// Ones returns a tensor filled with true or 1 depending on dtype.
func Ones(dtype DType, shape []int) *Dense {
	return OnesOn(DefaultDevice, dtype, shape)
}

// OnesOn is Ones with an explicit device tag.
func OnesOn(device string, dtype DType, shape []int) *Dense {
	t := newDense(dtype, shape, device)
	switch dtype {
	case Bool:
		for i := range t.bools {
			t.bools[i] = true
		}
	case Int64:
		for i := range t.ints {
			t.ints[i] = 1
		}
	case Float64:
		for i := range t.floats {
			t.floats[i] = 1
		}
	}
	return t
}

// FromBools wraps a bool slice as a tensor with the given shape. The slice
// is copied.
func FromBools(data []bool, shape []int) *Dense {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: %d elements cannot fill shape %v", len(data), shape))
	}
	t := newDense(Bool, shape, DefaultDevice)
	copy(t.bools, data)
	return t
}

// FromInt64s wraps an int64 slice as a tensor with the given shape.
func FromInt64s(data []int64, shape []int) *Dense {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: %d elements cannot fill shape %v", len(data), shape))
	}
	t := newDense(Int64, shape, DefaultDevice)
	copy(t.ints, data)
	return t
}

// FromFloat64s wraps a float64 slice as a tensor with the given shape.
func FromFloat64s(data []float64, shape []int) *Dense {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: %d elements cannot fill shape %v", len(data), shape))
	}
	t := newDense(Float64, shape, DefaultDevice)
	copy(t.floats, data)
	return t
}

// BoolScalar returns a rank-0 bool tensor.
func BoolScalar(v bool) *Dense {
	t := newDense(Bool, nil, DefaultDevice)
	t.bools[0] = v
	return t
}

// Int64Scalar returns a rank-0 int64 tensor.
func Int64Scalar(v int64) *Dense {
	t := newDense(Int64, nil, DefaultDevice)
	t.ints[0] = v
	return t
}

// Float64Scalar returns a rank-0 float64 tensor.
func Float64Scalar(v float64) *Dense {
	t := newDense(Float64, nil, DefaultDevice)
	t.floats[0] = v
	return t
}

func (t *Dense) DType() DType { return t.dtype }

// Shape returns a copy of the tensor shape.
func (t *Dense) Shape() []int { return cloneShape(t.shape) }

func (t *Dense) Rank() int { return len(t.shape) }

func (t *Dense) Numel() int { return numel(t.shape) }

func (t *Dense) Device() string { return t.device }

// To returns a tensor sharing this tensor's data but carrying the given
// device tag.
func (t *Dense) To(device string) *Dense {
	if device == "" {
		device = DefaultDevice
	}
	out := *t
	out.device = device
	out.shape = cloneShape(t.shape)
	return &out
}

// Bools returns the underlying bool storage. Mutating it mutates the tensor.
func (t *Dense) Bools() []bool {
	t.mustDType(Bool, "Bools")
	return t.bools
}

// Int64s returns the underlying int64 storage.
func (t *Dense) Int64s() []int64 {
	t.mustDType(Int64, "Int64s")
	return t.ints
}

// Float64s returns the underlying float64 storage.
func (t *Dense) Float64s() []float64 {
	t.mustDType(Float64, "Float64s")
	return t.floats
}

func (t *Dense) mustDType(d DType, op string) {
	if t.dtype != d {
		panic(fmt.Sprintf("tensor: %s called on %v tensor", op, t.dtype))
	}
}

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	out := newDense(t.dtype, t.shape, t.device)
	switch t.dtype {
	case Bool:
		copy(out.bools, t.bools)
	case Int64:
		copy(out.ints, t.ints)
	case Float64:
		copy(out.floats, t.floats)
	}
	return out
}

// Equal reports whether two tensors have the same dtype, shape and element
// values. Device tags are ignored.
func (t *Dense) Equal(o *Dense) bool {
	if t.dtype != o.dtype || len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	switch t.dtype {
	case Bool:
		for i := range t.bools {
			if t.bools[i] != o.bools[i] {
				return false
			}
		}
	case Int64:
		for i := range t.ints {
			if t.ints[i] != o.ints[i] {
				return false
			}
		}
	case Float64:
		for i := range t.floats {
			if t.floats[i] != o.floats[i] {
				return false
			}
		}
	}
	return true
}

// Reshape returns a tensor with the given shape sharing this tensor's data.
// Panics if the element counts differ.
func (t *Dense) Reshape(shape []int) *Dense {
	if numel(shape) != t.Numel() {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.shape, shape))
	}
	out := *t
	out.shape = cloneShape(shape)
	return &out
}

// SqueezeTrailing drops the last dimension when it has size one, mirroring a
// trailing squeeze. Tensors whose last dimension is not one are returned
// unchanged. The result shares this tensor's data.
func (t *Dense) SqueezeTrailing() *Dense {
	if len(t.shape) == 0 || t.shape[len(t.shape)-1] != 1 {
		return t
	}
	out := *t
	out.shape = cloneShape(t.shape[:len(t.shape)-1])
	return &out
}

// Or returns the element-wise logical OR of two bool tensors. Shapes must
// match exactly, except that a one-element tensor broadcasts against any
// shape.
func (t *Dense) Or(o *Dense) *Dense {
	t.mustDType(Bool, "Or")
	o.mustDType(Bool, "Or")
	if t.Numel() == 1 && o.Numel() > 1 {
		out := o.Clone()
		if t.bools[0] {
			for i := range out.bools {
				out.bools[i] = true
			}
		}
		return out
	}
	if o.Numel() == 1 && t.Numel() > 1 {
		out := t.Clone()
		if o.bools[0] {
			for i := range out.bools {
				out.bools[i] = true
			}
		}
		return out
	}
	if !sameShape(t.shape, o.shape) {
		panic(fmt.Sprintf("tensor: Or shape mismatch %v vs %v", t.shape, o.shape))
	}
	out := t.Clone()
	for i := range out.bools {
		out.bools[i] = out.bools[i] || o.bools[i]
	}
	return out
}

// Not returns the element-wise negation of a bool tensor.
func (t *Dense) Not() *Dense {
	t.mustDType(Bool, "Not")
	out := t.Clone()
	for i := range out.bools {
		out.bools[i] = !out.bools[i]
	}
	return out
}

// Any reports whether any element of a bool tensor is true.
func (t *Dense) Any() bool {
	t.mustDType(Bool, "Any")
	for _, v := range t.bools {
		if v {
			return true
		}
	}
	return false
}

// All reports whether every element of a bool tensor is true. True for an
// empty tensor.
func (t *Dense) All() bool {
	t.mustDType(Bool, "All")
	for _, v := range t.bools {
		if !v {
			return false
		}
	}
	return true
}

// ReduceTrailingAny ORs away all dimensions beyond the first rank ones,
// collapsing a bool tensor to the given leading rank. A tensor already at or
// below that rank is returned as is.
func (t *Dense) ReduceTrailingAny(rank int) *Dense {
	t.mustDType(Bool, "ReduceTrailingAny")
	if rank < 0 {
		panic("tensor: negative rank")
	}
	if len(t.shape) <= rank {
		return t
	}
	lead := t.shape[:rank]
	out := newDense(Bool, lead, t.device)
	inner := 1
	for _, s := range t.shape[rank:] {
		inner *= s
	}
	for i := range out.bools {
		for j := 0; j < inner; j++ {
			if t.bools[i*inner+j] {
				out.bools[i] = true
				break
			}
		}
	}
	return out
}

// Where selects elements from this tensor where cond is true and from other
// where it is false. cond must be a bool tensor whose shape is a leading
// prefix of this tensor's shape, it broadcasts over the trailing dimensions.
// other must match this tensor's dtype and shape.
func (t *Dense) Where(cond, other *Dense) *Dense {
	cond.mustDType(Bool, "Where cond")
	if t.dtype != other.dtype {
		panic(fmt.Sprintf("tensor: Where dtype mismatch %v vs %v", t.dtype, other.dtype))
	}
	if !sameShape(t.shape, other.shape) {
		panic(fmt.Sprintf("tensor: Where shape mismatch %v vs %v", t.shape, other.shape))
	}
	if cond.Rank() > t.Rank() || !sameShape(cond.shape, t.shape[:cond.Rank()]) {
		panic(fmt.Sprintf("tensor: Where cond shape %v does not prefix %v", cond.shape, t.shape))
	}
	inner := t.Numel() / max(cond.Numel(), 1)
	if cond.Numel() == 0 {
		inner = 0
	}
	out := newDense(t.dtype, t.shape, t.device)
	pick := func(i int) bool { return cond.bools[i/inner] }
	switch t.dtype {
	case Bool:
		for i := range out.bools {
			if pick(i) {
				out.bools[i] = t.bools[i]
			} else {
				out.bools[i] = other.bools[i]
			}
		}
	case Int64:
		for i := range out.ints {
			if pick(i) {
				out.ints[i] = t.ints[i]
			} else {
				out.ints[i] = other.ints[i]
			}
		}
	case Float64:
		for i := range out.floats {
			if pick(i) {
				out.floats[i] = t.floats[i]
			} else {
				out.floats[i] = other.floats[i]
			}
		}
	}
	return out
}

// Stack stacks tensors of identical dtype, shape and device along a new
// dimension inserted at dim.
func Stack(ts []*Dense, dim int) *Dense {
	if len(ts) == 0 {
		panic("tensor: Stack of no tensors")
	}
	first := ts[0]
	if dim < 0 || dim > first.Rank() {
		panic(fmt.Sprintf("tensor: Stack dim %d out of range for rank %d", dim, first.Rank()))
	}
	for _, t := range ts[1:] {
		if t.dtype != first.dtype || !sameShape(t.shape, first.shape) {
			panic("tensor: Stack over mismatched tensors")
		}
	}
	shape := make([]int, 0, first.Rank()+1)
	shape = append(shape, first.shape[:dim]...)
	shape = append(shape, len(ts))
	shape = append(shape, first.shape[dim:]...)
	out := newDense(first.dtype, shape, first.device)
	outer := numel(first.shape[:dim])
	inner := numel(first.shape[dim:])
	for k, t := range ts {
		for o := 0; o < outer; o++ {
			src := o * inner
			dst := (o*len(ts) + k) * inner
			switch first.dtype {
			case Bool:
				copy(out.bools[dst:dst+inner], t.bools[src:src+inner])
			case Int64:
				copy(out.ints[dst:dst+inner], t.ints[src:src+inner])
			case Float64:
				copy(out.floats[dst:dst+inner], t.floats[src:src+inner])
			}
		}
	}
	return out
}

// Unbind splits a tensor along dim into shape[dim] tensors with that
// dimension removed. The inverse of Stack.
func (t *Dense) Unbind(dim int) []*Dense {
	if dim < 0 || dim >= t.Rank() {
		panic(fmt.Sprintf("tensor: Unbind dim %d out of range for rank %d", dim, t.Rank()))
	}
	n := t.shape[dim]
	pieceShape := make([]int, 0, t.Rank()-1)
	pieceShape = append(pieceShape, t.shape[:dim]...)
	pieceShape = append(pieceShape, t.shape[dim+1:]...)
	outer := numel(t.shape[:dim])
	inner := numel(t.shape[dim+1:])
	out := make([]*Dense, n)
	for k := 0; k < n; k++ {
		piece := newDense(t.dtype, pieceShape, t.device)
		for o := 0; o < outer; o++ {
			src := (o*n + k) * inner
			dst := o * inner
			switch t.dtype {
			case Bool:
				copy(piece.bools[dst:dst+inner], t.bools[src:src+inner])
			case Int64:
				copy(piece.ints[dst:dst+inner], t.ints[src:src+inner])
			case Float64:
				copy(piece.floats[dst:dst+inner], t.floats[src:src+inner])
			}
		}
		out[k] = piece
	}
	return out
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

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (t *Dense) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dense(%v, shape=%v, device=%s)", t.dtype, t.shape, t.device)
	return sb.String()
}

// MarshalJSON encodes the tensor as {"dtype":..,"shape":..,"data":[..]}.
func (t *Dense) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`{"dtype":%q,"shape":[`, t.dtype.String()))
	for i, s := range t.shape {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf("%d", s))
	}
	sb.WriteString(`],"data":[`)
	for i := 0; i < t.Numel(); i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		switch t.dtype {
		case Bool:
			sb.WriteString(fmt.Sprintf("%t", t.bools[i]))
		case Int64:
			sb.WriteString(fmt.Sprintf("%d", t.ints[i]))
		case Float64:
			sb.WriteString(fmt.Sprintf("%g", t.floats[i]))
		}
	}
	sb.WriteString("]}")
	return []byte(sb.String()), nil
}
