package mdp

import (
	"fmt"
	"log"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/env"
)

type validation int

const (
	validationUnchecked validation = iota
	validationValid
	validationFallback
)

// Stepper precomputes the key routing of a transition for a fixed
// environment and flag configuration. The first batch it transforms is
// checked against the environment's declared keys: on an exact match all
// later calls take a fast tree-walk, otherwise the stepper logs once and
// permanently serves the generic path. Key lists come from the
// environment, the cfg key lists are ignored.
//
// A Stepper is not safe for concurrent use.
type Stepper struct {
	cfg          Config
	keysFromRoot *batch.KeyTree
	keysFromNext *batch.KeyTree
	expected     batch.KeySet
	state        validation
}

// ConfigFor returns cfg with its key lists replaced by the ones the
// environment declares.
func ConfigFor(e env.Env, cfg Config) Config {
	cfg.ActionKeys = e.ActionKeys()
	cfg.DoneKeys = e.DoneKeys()
	cfg.RewardKeys = e.RewardKeys()
	return cfg
}

// NewStepper builds a stepper for e with the given transition flags.
func NewStepper(e env.Env, cfg Config) *Stepper {
	cfg = ConfigFor(e, cfg)
	obsKeys := e.ObservationKeys()
	stateKeys := e.StateKeys()

	var fromNext []batch.Key
	fromNext = append(fromNext, obsKeys...)
	if !cfg.ExcludeReward {
		fromNext = append(fromNext, cfg.RewardKeys...)
	}
	if !cfg.ExcludeDone {
		fromNext = append(fromNext, cfg.DoneKeys...)
	}
	var fromRoot []batch.Key
	if !cfg.ExcludeAction {
		fromRoot = append(fromRoot, cfg.ActionKeys...)
	}
	if cfg.KeepOther {
		fromRoot = append(fromRoot, stateKeys...)
	}

	expected := batch.NewKeySet()
	for _, k := range stateKeys {
		expected.Add(k)
	}
	for _, k := range cfg.ActionKeys {
		expected.Add(k)
	}
	for _, k := range cfg.DoneKeys {
		expected.Add(k)
	}
	for _, k := range obsKeys {
		expected.Add(k)
	}
	var nextLeaves []batch.Key
	nextLeaves = append(nextLeaves, obsKeys...)
	nextLeaves = append(nextLeaves, cfg.DoneKeys...)
	nextLeaves = append(nextLeaves, cfg.RewardKeys...)
	for _, k := range nextLeaves {
		full := make(batch.Key, 0, len(k)+1)
		full = append(full, NextKey)
		full = append(full, k...)
		expected.Add(full)
	}

	return &Stepper{
		cfg:          cfg,
		keysFromRoot: batch.NewKeyTree(fromRoot),
		keysFromNext: batch.NewKeyTree(fromNext),
		expected:     expected,
	}
}

// Validated reports whether the stepper has settled on the fast path. It
// returns false both before the first call and after falling back.
func (s *Stepper) Validated() bool {
	return s.state == validationValid
}

// validate checks the batch's leaf paths against the expected set once and
// caches the verdict for the lifetime of the stepper.
func (s *Stepper) validate(b batch.Container) bool {
	switch s.state {
	case validationValid:
		return true
	case validationFallback:
		return false
	}
	actual := batch.NewKeySet(b.LeafPaths()...)
	if s.expected.EqualSet(actual) {
		s.state = validationValid
		return true
	}
	s.state = validationFallback
	log.Printf(
		"mdp: batch keys differ from the declared environment keys, falling back to the generic transition (slower). missing=%v unexpected=%v",
		s.expected.Diff(actual), actual.Diff(s.expected),
	)
	return false
}

// Step transforms a stepped batch into the root batch of the following
// step. The input is not modified.
func (s *Stepper) Step(b batch.Container) (batch.Container, error) {
	if st, ok := b.(*batch.Stacked); ok {
		elems := st.Elements()
		outs := make([]batch.Container, len(elems))
		for i, el := range elems {
			out, err := s.Step(el)
			if err != nil {
				return nil, err
			}
			outs[i] = out
		}
		return batch.NewStacked(st.StackDim(), outs...)
	}
	nextE, err := b.Get(batch.K(NextKey))
	if err != nil {
		return nil, fmt.Errorf("mdp: batch has no %q sub-batch: %w", NextKey, err)
	}
	if nextE.IsLeaf() {
		return nil, fmt.Errorf("mdp: %q entry is a leaf, expected a sub-batch", NextKey)
	}
	if !s.validate(b) {
		return Step(b, nil, s.cfg)
	}
	next := nextE.Container()
	out := next.Empty()
	if err := grabAndPlace(s.keysFromRoot, b, out); err != nil {
		return nil, err
	}
	if err := grabAndPlace(s.keysFromNext, next, out); err != nil {
		return nil, err
	}
	return out, nil
}

// grabAndPlace copies the leaves named by the tree from in to out,
// reusing existing out nodes and unbinding stacked sub-batches so leaf
// reads never cross a stack.
func grabAndPlace(tree *batch.KeyTree, in, out batch.Container) error {
	for _, name := range tree.Names() {
		sub := tree.Child(name)
		e, err := in.Get(batch.K(name))
		if err != nil {
			return fmt.Errorf("mdp: routing key %q: %w", name, err)
		}
		if sub == nil {
			if err := out.Set(batch.K(name), e); err != nil {
				return err
			}
			continue
		}
		if e.IsLeaf() {
			return fmt.Errorf("mdp: routing key %q expects a sub-batch, found a leaf", name)
		}
		val := e.Container()
		var valOut batch.Container
		if oe, err := out.Get(batch.K(name)); err == nil && !oe.IsLeaf() {
			valOut = oe.Container()
		} else {
			valOut = val.Empty()
		}
		if vs, ok := val.(*batch.Stacked); ok {
			vo, ok := valOut.(*batch.Stacked)
			if !ok || len(vo.Elements()) != len(vs.Elements()) {
				valOut = val.Empty()
				vo = valOut.(*batch.Stacked)
			}
			for i, vel := range vs.Elements() {
				if err := grabAndPlace(sub, vel, vo.Elements()[i]); err != nil {
					return err
				}
			}
			if err := out.Set(batch.K(name), batch.Sub(vo)); err != nil {
				return err
			}
			continue
		}
		if err := grabAndPlace(sub, val, valOut); err != nil {
			return err
		}
		if err := out.Set(batch.K(name), batch.Sub(valOut)); err != nil {
			return err
		}
	}
	return nil
}
