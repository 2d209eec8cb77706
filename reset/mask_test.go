package reset

import (
	"errors"
	"testing"

	"github.com/zeu5/rl-env-utils/batch"
)

func TestMaskExplicitKeys(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{true, false}, []int{2}))
	mustSet(t, b, batch.K("agents", DefaultKey), bools([]bool{false, false}, []int{2, 1}))

	mask, err := AggregateMask(b, []batch.Key{batch.K(DefaultKey), batch.K("agents", DefaultKey)}, nil)
	if err != nil {
		t.Fatalf("aggregate mask: %v", err)
	}
	if mask.Rank() != 1 || mask.Shape()[0] != 2 {
		t.Fatalf("unexpected mask shape %v", mask.Shape())
	}
	if !mask.Bools()[0] || mask.Bools()[1] {
		t.Errorf("unexpected mask %v", mask.Bools())
	}
}

func TestMaskORsMarkers(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{true, false}, []int{2}))
	mustSet(t, b, batch.K("agents", DefaultKey), bools([]bool{false, true}, []int{2, 1}))

	mask, err := AggregateMask(b, []batch.Key{batch.K(DefaultKey), batch.K("agents", DefaultKey)}, nil)
	if err != nil {
		t.Fatalf("aggregate mask: %v", err)
	}
	if !mask.All() {
		t.Errorf("expected markers ORed together, got %v", mask.Bools())
	}
}

func TestMaskPartialKeys(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{true, false}, []int{2}))
	keys := []batch.Key{batch.K(DefaultKey), batch.K("agents", DefaultKey)}

	_, err := AggregateMask(b, keys, nil)
	if !errors.Is(err, ErrPartialResetKeys) {
		t.Errorf("expected ErrPartialResetKeys, got %v", err)
	}

	// same failure when the missing key comes first
	_, err = AggregateMask(b, []batch.Key{keys[1], keys[0]}, nil)
	if !errors.Is(err, ErrPartialResetKeys) {
		t.Errorf("expected ErrPartialResetKeys, got %v", err)
	}
}

func TestMaskAllMissing(t *testing.T) {
	b := batch.New([]int{3}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2, 3}, []int{3}))

	mask, err := AggregateMask(b, []batch.Key{batch.K(DefaultKey)}, nil)
	if err != nil {
		t.Fatalf("aggregate mask: %v", err)
	}
	if !mask.All() {
		t.Error("expected an all-true mask when every marker is absent")
	}
	if mask.Rank() != 1 || mask.Shape()[0] != 3 {
		t.Errorf("unexpected mask shape %v", mask.Shape())
	}
}

func TestMaskDerivedFromDoneKeys(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{false, true}, []int{2}))

	// done and terminated both derive the same marker, read once
	mask, err := AggregateMask(b, nil, []batch.Key{batch.K("done"), batch.K("terminated")})
	if err != nil {
		t.Fatalf("aggregate mask: %v", err)
	}
	if mask.Bools()[0] || !mask.Bools()[1] {
		t.Errorf("unexpected mask %v", mask.Bools())
	}
}

func TestMaskDerivedNestedDoneKey(t *testing.T) {
	b := batch.New(nil, "")
	mustSet(t, b, batch.K("agents", DefaultKey), bools([]bool{true, false}, []int{2, 1}))

	mask, err := AggregateMask(b, nil, []batch.Key{batch.K("agents", "done")})
	if err != nil {
		t.Fatalf("aggregate mask: %v", err)
	}
	// reduced all the way down to the root batch shape
	if mask.Rank() != 0 {
		t.Fatalf("unexpected mask shape %v", mask.Shape())
	}
	if !mask.Any() {
		t.Error("expected the nested marker to surface")
	}
}

func TestMaskSkim(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	mustSet(t, b, batch.K("agents", DefaultKey), bools([]bool{false, true}, []int{2, 1}))

	mask, err := AggregateMask(b, nil, nil)
	if err != nil {
		t.Fatalf("aggregate mask: %v", err)
	}
	if mask.Bools()[0] || !mask.Bools()[1] {
		t.Errorf("unexpected skimmed mask %v", mask.Bools())
	}
}

func TestMaskSkimEmpty(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))

	mask, err := AggregateMask(b, nil, nil)
	if err != nil {
		t.Fatalf("aggregate mask: %v", err)
	}
	if mask.Any() {
		t.Error("expected an all-false mask without markers")
	}
}

func TestMaskRejectsSubBatch(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("agents", "obs"), floats([]float64{1, 2}, []int{2}))

	_, err := AggregateMask(b, []batch.Key{batch.K("agents")}, nil)
	if err == nil {
		t.Error("expected a sub-batch reset key to fail")
	}
}
