package mdp

import (
	"errors"
	"fmt"

	"github.com/zeu5/rl-env-utils/batch"
)

// NextKey is the reserved name of the sub-batch holding post-step values.
const NextKey = "next"

// Config controls which key families a transition carries into the next
// root batch.
type Config struct {
	// KeepOther carries root entries that belong to no gated family.
	KeepOther bool
	// ExcludeReward drops reward entries from the result.
	ExcludeReward bool
	// ExcludeDone drops done entries from the result.
	ExcludeDone bool
	// ExcludeAction drops action entries from the result.
	ExcludeAction bool

	RewardKeys []batch.Key
	DoneKeys   []batch.Key
	ActionKeys []batch.Key
}

// DefaultConfig returns the conventional single-agent transition: keep
// unrelated entries, drop the reward and the action, keep done flags.
func DefaultConfig() Config {
	return Config{
		KeepOther:     true,
		ExcludeReward: true,
		ExcludeDone:   false,
		ExcludeAction: true,
		RewardKeys:    []batch.Key{batch.K("reward")},
		DoneKeys:      []batch.Key{batch.K("done")},
		ActionKeys:    []batch.Key{batch.K("action")},
	}
}

func (c Config) exclusionSet() batch.KeySet {
	s := batch.NewKeySet()
	if c.ExcludeReward {
		for _, k := range c.RewardKeys {
			s.Add(k)
		}
	}
	if c.ExcludeDone {
		for _, k := range c.DoneKeys {
			s.Add(k)
		}
	}
	if c.ExcludeAction {
		for _, k := range c.ActionKeys {
			s.Add(k)
		}
	}
	return s
}

// Step builds the root batch of the following step from a stepped batch:
// entries under next are promoted to the root and root entries are carried
// or dropped according to cfg. The input is not modified. When dest is
// non-nil the result is merged into it and dest is returned, otherwise a
// fresh batch with the structure of the next sub-batch is returned.
//
// Stacked batches are handled element-wise and re-stacked, ragged leaves
// included.
func Step(b batch.Container, dest batch.Container, cfg Config) (batch.Container, error) {
	if st, ok := b.(*batch.Stacked); ok {
		return stepStacked(st, dest, cfg)
	}
	nextE, err := b.Get(batch.K(NextKey))
	if err != nil {
		return nil, fmt.Errorf("mdp: batch has no %q sub-batch: %w", NextKey, err)
	}
	if nextE.IsLeaf() {
		return nil, fmt.Errorf("mdp: %q entry is a leaf, expected a sub-batch", NextKey)
	}
	next := nextE.Container()
	excluded := cfg.exclusionSet()

	out := next.Empty()
	if cfg.KeepOther {
		for _, name := range b.Keys() {
			if name == NextKey {
				continue
			}
			if _, err := copyFiltered(b, out, name, nil, excluded); err != nil {
				return nil, err
			}
		}
	} else if !cfg.ExcludeAction {
		for _, k := range cfg.ActionKeys {
			if err := copyKey(b, out, k); err != nil {
				return nil, err
			}
		}
	}
	for _, name := range next.Keys() {
		if _, err := copyFiltered(next, out, name, nil, excluded); err != nil {
			return nil, err
		}
	}
	if dest != nil {
		if err := dest.Update(out); err != nil {
			return nil, err
		}
		return dest, nil
	}
	return out, nil
}

func stepStacked(st *batch.Stacked, dest batch.Container, cfg Config) (batch.Container, error) {
	elems := st.Elements()
	var destElems []batch.Container
	if dest != nil {
		if ds, ok := dest.(*batch.Stacked); ok && ds.StackDim() == st.StackDim() && len(ds.Elements()) == len(elems) {
			destElems = ds.Elements()
		}
	}
	outs := make([]batch.Container, len(elems))
	for i, el := range elems {
		var de batch.Container
		if destElems != nil {
			de = destElems[i]
		}
		out, err := Step(el, de, cfg)
		if err != nil {
			return nil, err
		}
		outs[i] = out
	}
	// a matching stacked destination was merged slice by slice already
	if destElems != nil {
		return dest, nil
	}
	stacked, err := batch.NewStacked(st.StackDim(), outs...)
	if err != nil {
		return nil, err
	}
	if dest != nil {
		if err := dest.Update(stacked); err != nil {
			return nil, err
		}
		return dest, nil
	}
	return stacked, nil
}

// copyFiltered copies the entry name of src into dst unless its full path
// is excluded, descending into sub-batches so that excluded nested keys are
// dropped individually. Sub-batches are only attached when something below
// them was copied. Ragged stacked leaves are copied element by element.
// Reports whether anything was copied at or below the entry.
func copyFiltered(src, dst batch.Container, name string, prefix batch.Key, excluded batch.KeySet) (bool, error) {
	path := prefix.Child(name)
	if excluded.Has(path) {
		return false, nil
	}
	e, err := src.Get(batch.K(name))
	if err != nil {
		if errors.Is(err, batch.ErrHeterogeneousShapes) {
			ss, okSrc := src.(*batch.Stacked)
			dd, okDst := dst.(*batch.Stacked)
			if okSrc && okDst && len(ss.Elements()) == len(dd.Elements()) {
				nonEmpty := false
				for i, sel := range ss.Elements() {
					ne, err := copyFiltered(sel, dd.Elements()[i], name, prefix, excluded)
					if err != nil {
						return nonEmpty, err
					}
					nonEmpty = nonEmpty || ne
				}
				return nonEmpty, nil
			}
		}
		return false, err
	}
	if e.IsLeaf() {
		if err := dst.Set(batch.K(name), e); err != nil {
			return false, err
		}
		return true, nil
	}
	sub := e.Container()
	var dsub batch.Container
	if de, err := dst.Get(batch.K(name)); err == nil && !de.IsLeaf() {
		dsub = de.Container()
	} else {
		dsub = sub.Empty()
	}
	nonEmpty := false
	for _, subName := range sub.Keys() {
		ne, err := copyFiltered(sub, dsub, subName, path, excluded)
		if err != nil {
			return false, err
		}
		nonEmpty = nonEmpty || ne
	}
	if nonEmpty {
		if err := dst.Set(batch.K(name), batch.Sub(dsub)); err != nil {
			return false, err
		}
	}
	return nonEmpty, nil
}

// copyKey copies a single path from src to dst, materializing missing
// intermediate nodes. Ragged stacked leaves fall back to element-wise
// copies.
func copyKey(src, dst batch.Container, key batch.Key) error {
	for i, seg := range key {
		e, err := src.Get(batch.K(seg))
		if err != nil {
			if errors.Is(err, batch.ErrHeterogeneousShapes) {
				ss, okSrc := src.(*batch.Stacked)
				dd, okDst := dst.(*batch.Stacked)
				if okSrc && okDst && len(ss.Elements()) == len(dd.Elements()) {
					for j, sel := range ss.Elements() {
						if err := copyKey(sel, dd.Elements()[j], key[i:]); err != nil {
							return err
						}
					}
					return nil
				}
			}
			return err
		}
		if e.IsLeaf() {
			return dst.Set(batch.K(seg), e)
		}
		sub := e.Container()
		var dsub batch.Container
		if de, err := dst.Get(batch.K(seg)); err == nil && !de.IsLeaf() {
			dsub = de.Container()
		} else {
			dsub = sub.Empty()
			if err := dst.Set(batch.K(seg), batch.Sub(dsub)); err != nil {
				return err
			}
		}
		src, dst = sub, dsub
	}
	return nil
}
