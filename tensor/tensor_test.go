package tensor

import (
	"testing"
)

func TestZerosShape(t *testing.T) {
	ten := Zeros(Float64, []int{2, 3})
	if ten.Numel() != 6 {
		t.Errorf("expected 6 elements, got %d", ten.Numel())
	}
	if ten.Rank() != 2 {
		t.Errorf("expected rank 2, got %d", ten.Rank())
	}
	if ten.Device() != DefaultDevice {
		t.Errorf("expected device %s, got %s", DefaultDevice, ten.Device())
	}
	for _, v := range ten.Float64s() {
		if v != 0 {
			t.Errorf("expected zero value, got %f", v)
		}
	}
}

func TestScalar(t *testing.T) {
	s := BoolScalar(true)
	if s.Rank() != 0 {
		t.Errorf("expected rank 0, got %d", s.Rank())
	}
	if s.Numel() != 1 {
		t.Errorf("expected 1 element, got %d", s.Numel())
	}
	if !s.Any() {
		t.Error("expected true scalar")
	}
}

func TestReshape(t *testing.T) {
	ten := FromInt64s([]int64{1, 2, 3, 4, 5, 6}, []int{2, 3})
	r := ten.Reshape([]int{3, 2})
	if r.Rank() != 2 || r.Shape()[0] != 3 || r.Shape()[1] != 2 {
		t.Errorf("unexpected shape %v", r.Shape())
	}
	if r.Int64s()[5] != 6 {
		t.Errorf("expected element order preserved, got %v", r.Int64s())
	}
}

func TestSqueezeTrailing(t *testing.T) {
	ten := Zeros(Bool, []int{4, 1})
	s := ten.SqueezeTrailing()
	if s.Rank() != 1 || s.Shape()[0] != 4 {
		t.Errorf("expected shape [4], got %v", s.Shape())
	}

	wide := Zeros(Bool, []int{4, 2})
	if wide.SqueezeTrailing().Rank() != 2 {
		t.Error("expected non-unit trailing dim to be kept")
	}
}

func TestOr(t *testing.T) {
	a := FromBools([]bool{true, false, false}, []int{3})
	b := FromBools([]bool{false, false, true}, []int{3})
	c := a.Or(b)
	want := []bool{true, false, true}
	for i, v := range c.Bools() {
		if v != want[i] {
			t.Errorf("element %d: expected %t, got %t", i, want[i], v)
		}
	}
	// operands untouched
	if a.Bools()[2] || b.Bools()[0] {
		t.Error("expected Or to leave operands unchanged")
	}
}

func TestOrScalarBroadcast(t *testing.T) {
	a := FromBools([]bool{true, false}, []int{2})
	s := BoolScalar(true)
	c := a.Or(s)
	if !c.Bools()[0] || !c.Bools()[1] {
		t.Errorf("expected all true, got %v", c.Bools())
	}
	d := s.Or(a)
	if !d.Bools()[0] || !d.Bools()[1] {
		t.Errorf("expected all true, got %v", d.Bools())
	}
}

func TestAnyAll(t *testing.T) {
	mixed := FromBools([]bool{true, false}, []int{2})
	if !mixed.Any() {
		t.Error("expected Any true")
	}
	if mixed.All() {
		t.Error("expected All false")
	}
	if Zeros(Bool, []int{3}).Any() {
		t.Error("expected Any false on zeros")
	}
	if !Ones(Bool, []int{3}).All() {
		t.Error("expected All true on ones")
	}
}

func TestReduceTrailingAny(t *testing.T) {
	ten := FromBools([]bool{
		true, false,
		false, false,
		false, true,
	}, []int{3, 2})
	r := ten.ReduceTrailingAny(1)
	if r.Rank() != 1 || r.Shape()[0] != 3 {
		t.Fatalf("expected shape [3], got %v", r.Shape())
	}
	want := []bool{true, false, true}
	for i, v := range r.Bools() {
		if v != want[i] {
			t.Errorf("element %d: expected %t, got %t", i, want[i], v)
		}
	}
	// already at rank
	same := ten.ReduceTrailingAny(2)
	if !same.Equal(ten) {
		t.Error("expected tensor at rank to be unchanged")
	}
}

func TestWhere(t *testing.T) {
	cur := FromFloat64s([]float64{1, 2, 3, 4}, []int{2, 2})
	other := FromFloat64s([]float64{10, 20, 30, 40}, []int{2, 2})
	cond := FromBools([]bool{true, false}, []int{2})
	out := cur.Where(cond, other)
	want := []float64{1, 2, 30, 40}
	for i, v := range out.Float64s() {
		if v != want[i] {
			t.Errorf("element %d: expected %f, got %f", i, want[i], v)
		}
	}
}

func TestStackUnbind(t *testing.T) {
	a := FromInt64s([]int64{1, 2}, []int{2})
	b := FromInt64s([]int64{3, 4}, []int{2})
	s := Stack([]*Dense{a, b}, 0)
	if s.Rank() != 2 || s.Shape()[0] != 2 || s.Shape()[1] != 2 {
		t.Fatalf("unexpected stacked shape %v", s.Shape())
	}
	pieces := s.Unbind(0)
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(pieces))
	}
	if !pieces[0].Equal(a) || !pieces[1].Equal(b) {
		t.Error("expected Unbind to recover stacked tensors")
	}
}

func TestStackDimOne(t *testing.T) {
	a := FromInt64s([]int64{1, 2, 3}, []int{3})
	b := FromInt64s([]int64{4, 5, 6}, []int{3})
	s := Stack([]*Dense{a, b}, 1)
	if s.Shape()[0] != 3 || s.Shape()[1] != 2 {
		t.Fatalf("unexpected stacked shape %v", s.Shape())
	}
	want := []int64{1, 4, 2, 5, 3, 6}
	for i, v := range s.Int64s() {
		if v != want[i] {
			t.Errorf("element %d: expected %d, got %d", i, want[i], v)
		}
	}
	pieces := s.Unbind(1)
	if !pieces[0].Equal(a) || !pieces[1].Equal(b) {
		t.Error("expected Unbind along dim 1 to recover inputs")
	}
}

func TestClone(t *testing.T) {
	a := FromFloat64s([]float64{1, 2}, []int{2})
	c := a.Clone()
	c.Float64s()[0] = 9
	if a.Float64s()[0] != 1 {
		t.Error("expected Clone to copy data")
	}
	if !a.Equal(a.Clone()) {
		t.Error("expected clone to equal original")
	}
}
