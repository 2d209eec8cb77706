package reset

import (
	"testing"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/tensor"
)

func leafValues(t *testing.T, c batch.Container, key batch.Key) []float64 {
	t.Helper()
	leaf, err := c.GetLeaf(key)
	if err != nil {
		t.Fatalf("get %s: %v", key.String(), err)
	}
	return leaf.Float64s()
}

func TestMergeNoKeysIsNoOp(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	rb := batch.New([]int{2}, "")
	mustSet(t, rb, batch.K("obs"), floats([]float64{9, 8}, []int{2}))

	if err := Merge(rb, b, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := leafValues(t, b, batch.K("obs"))
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("expected the batch untouched without reset keys, got %v", got)
	}
}

func TestMergeAbsentMarkerIsWholesale(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	rb := batch.New([]int{2}, "")
	mustSet(t, rb, batch.K("obs"), floats([]float64{9, 8}, []int{2}))

	if err := Merge(rb, b, []batch.Key{batch.K(DefaultKey)}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := leafValues(t, b, batch.K("obs"))
	if got[0] != 9 || got[1] != 8 {
		t.Errorf("expected wholesale update, got %v", got)
	}
}

func TestMergeAllTrueMarkerIsWholesale(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{true, true}, []int{2}))
	rb := batch.New([]int{2}, "")
	mustSet(t, rb, batch.K("obs"), floats([]float64{9, 8}, []int{2}))

	if err := Merge(rb, b, []batch.Key{batch.K(DefaultKey)}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := leafValues(t, b, batch.K("obs"))
	if got[0] != 9 || got[1] != 8 {
		t.Errorf("expected wholesale update, got %v", got)
	}
	if hasKey(b, batch.K(DefaultKey)) {
		t.Error("expected the marker popped")
	}
}

func TestMergeMaskedRoot(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	mustSet(t, b, batch.K("extra"), floats([]float64{5, 6}, []int{2}))
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{true, false}, []int{2, 1}))
	rb := batch.New([]int{2}, "")
	mustSet(t, rb, batch.K("obs"), floats([]float64{9, 8}, []int{2}))

	if err := Merge(rb, b, []batch.Key{batch.K(DefaultKey)}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	obs := leafValues(t, b, batch.K("obs"))
	if obs[0] != 9 || obs[1] != 2 {
		t.Errorf("expected the masked slot replaced, got %v", obs)
	}
	// leaves missing from the reset batch merge against zeros
	extra := leafValues(t, b, batch.K("extra"))
	if extra[0] != 0 || extra[1] != 6 {
		t.Errorf("expected the masked slot zeroed, got %v", extra)
	}
	if hasKey(b, batch.K(DefaultKey)) {
		t.Error("expected the marker popped")
	}
}

func TestMergeNestedNode(t *testing.T) {
	agents := batch.New([]int{2}, "")
	mustSet(t, agents, batch.K("obs"), floats([]float64{1, 2, 3, 4}, []int{2, 2}))
	mustSet(t, agents, batch.K(DefaultKey), bools([]bool{false, true}, []int{2, 1}))
	b := batch.New(nil, "")
	mustSet(t, b, batch.K("goal"), floats([]float64{7}, []int{1}))
	mustSet(t, b, batch.K("agents"), batch.Sub(agents))

	resetAgents := batch.New([]int{2}, "")
	mustSet(t, resetAgents, batch.K("obs"), floats([]float64{9, 9, 8, 8}, []int{2, 2}))
	rb := batch.New(nil, "")
	mustSet(t, rb, batch.K("agents"), batch.Sub(resetAgents))

	if err := Merge(rb, b, []batch.Key{batch.K("agents", DefaultKey)}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	obs := leafValues(t, b, batch.K("agents", "obs"))
	want := []float64{1, 2, 8, 8}
	for i, v := range obs {
		if v != want[i] {
			t.Errorf("element %d: expected %v, got %v", i, want[i], v)
		}
	}
	// nodes outside the reset key are untouched
	if goal := leafValues(t, b, batch.K("goal")); goal[0] != 7 {
		t.Errorf("expected goal untouched, got %v", goal)
	}
	if hasKey(b, batch.K("agents", DefaultKey)) {
		t.Error("expected the nested marker popped")
	}
}

func TestMergeAncestorCoversNested(t *testing.T) {
	agents := batch.New([]int{2}, "")
	mustSet(t, agents, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	mustSet(t, agents, batch.K(DefaultKey), bools([]bool{false, false}, []int{2, 1}))
	b := batch.New(nil, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{3}, []int{1}))
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{true}, []int{1}))
	mustSet(t, b, batch.K("agents"), batch.Sub(agents))

	resetAgents := batch.New([]int{2}, "")
	mustSet(t, resetAgents, batch.K("obs"), floats([]float64{9, 8}, []int{2}))
	rb := batch.New(nil, "")
	mustSet(t, rb, batch.K("obs"), floats([]float64{7}, []int{1}))
	mustSet(t, rb, batch.K("agents"), batch.Sub(resetAgents))

	keys := []batch.Key{batch.K(DefaultKey), batch.K("agents", DefaultKey)}
	batch.SortByDepth(keys)
	if err := Merge(rb, b, keys); err != nil {
		t.Fatalf("merge: %v", err)
	}
	// the root merge already replaced the nested node, even though its own
	// marker was all false
	obs := leafValues(t, b, batch.K("agents", "obs"))
	if obs[0] != 9 || obs[1] != 8 {
		t.Errorf("expected the root merge to cover the nested node, got %v", obs)
	}
	if root := leafValues(t, b, batch.K("obs")); root[0] != 7 {
		t.Errorf("expected root obs updated, got %v", root)
	}
	if hasKey(b, batch.K(DefaultKey)) || hasKey(b, batch.K("agents", DefaultKey)) {
		t.Error("expected every marker popped, covered or not")
	}
}

func TestMergeRootCoversLaterKeys(t *testing.T) {
	b := batch.New([]int{2}, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	mustSet(t, b, batch.K(DefaultKey), bools([]bool{true, false}, []int{2, 1}))
	mustSet(t, b, batch.K("alt_reset"), bools([]bool{true, true}, []int{2}))
	rb := batch.New([]int{2}, "")
	mustSet(t, rb, batch.K("obs"), floats([]float64{9, 8}, []int{2}))

	keys := []batch.Key{batch.K(DefaultKey), batch.K("alt_reset")}
	if err := Merge(rb, b, keys); err != nil {
		t.Fatalf("merge: %v", err)
	}
	// the first root marker decided the whole merge, the second was only
	// consumed
	obs := leafValues(t, b, batch.K("obs"))
	if obs[0] != 9 || obs[1] != 2 {
		t.Errorf("expected only the first root merge applied, got %v", obs)
	}
	if hasKey(b, batch.K(DefaultKey)) || hasKey(b, batch.K("alt_reset")) {
		t.Error("expected both markers popped")
	}
}

func TestMergeSiblingGroups(t *testing.T) {
	build := func(vals []float64, marker []bool) *batch.Batch {
		g := batch.New([]int{2}, "")
		mustSet(t, g, batch.K("obs"), floats(vals, []int{2}))
		if marker != nil {
			mustSet(t, g, batch.K(DefaultKey), bools(marker, []int{2, 1}))
		}
		return g
	}
	b := batch.New(nil, "")
	mustSet(t, b, batch.K("red"), batch.Sub(build([]float64{1, 2}, []bool{true, false})))
	mustSet(t, b, batch.K("blue"), batch.Sub(build([]float64{3, 4}, []bool{false, false})))

	rb := batch.New(nil, "")
	mustSet(t, rb, batch.K("red"), batch.Sub(build([]float64{9, 9}, nil)))
	mustSet(t, rb, batch.K("blue"), batch.Sub(build([]float64{8, 8}, nil)))

	keys := []batch.Key{batch.K("red", DefaultKey), batch.K("blue", DefaultKey)}
	if err := Merge(rb, b, keys); err != nil {
		t.Fatalf("merge: %v", err)
	}
	red := leafValues(t, b, batch.K("red", "obs"))
	if red[0] != 9 || red[1] != 2 {
		t.Errorf("unexpected red obs %v", red)
	}
	// an all-false marker still merges, element-wise with no winners
	blue := leafValues(t, b, batch.K("blue", "obs"))
	if blue[0] != 3 || blue[1] != 4 {
		t.Errorf("unexpected blue obs %v", blue)
	}
}

func TestMergeMissingResetNode(t *testing.T) {
	agents := batch.New([]int{2}, "")
	mustSet(t, agents, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	b := batch.New(nil, "")
	mustSet(t, b, batch.K("agents"), batch.Sub(agents))
	rb := batch.New(nil, "")

	err := Merge(rb, b, []batch.Key{batch.K("agents", DefaultKey)})
	if err == nil {
		t.Error("expected a missing reset batch node to fail")
	}
}

func TestMergeScalarMarker(t *testing.T) {
	b := batch.New(nil, "")
	mustSet(t, b, batch.K("obs"), floats([]float64{1, 2}, []int{2}))
	mustSet(t, b, batch.K(DefaultKey), batch.Leaf(tensor.FromBools([]bool{false}, nil)))
	rb := batch.New(nil, "")
	mustSet(t, rb, batch.K("obs"), floats([]float64{9, 8}, []int{2}))

	if err := Merge(rb, b, []batch.Key{batch.K(DefaultKey)}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := leafValues(t, b, batch.K("obs"))
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("expected values kept under a false scalar marker, got %v", got)
	}
}
