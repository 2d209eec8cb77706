// Package rollout drives environments through episodes, collecting
// traces of the produced batches. It strings together the transition
// engine, the episode-boundary aggregation and the reset merge into
// the loop an experiment runs.
package rollout

import (
	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/env"
)

// Environment is the stepping contract of an environment. Reset begins
// an episode, Step consumes the actions in the batch and writes the
// next sub-batch in place. Implementations are stateful and single
// owner.
type Environment interface {
	env.Env

	// ActionSpec declares the action layout, used to sample random
	// actions.
	ActionSpec() *env.Spec
	// DoneSpec declares the done-flag layout, used as the aggregation
	// schema at episode boundaries.
	DoneSpec() *env.Spec

	Reset() (batch.Container, error)
	Step(batch.Container) (batch.Container, error)
}

// Policy picks the actions for each step of an episode.
type Policy interface {
	// NextAction writes action entries into b for the coming step.
	NextAction(step int, b batch.Container) error
	// Update observes one transition: the stepped batch and the root
	// batch of the following step.
	Update(step int, b, next batch.Container)
	// UpdateEpisode observes a finished episode.
	UpdateEpisode(episode int, trace *Trace)
	Reset()
}

// RandomPolicy samples every action uniformly from the action spec.
type RandomPolicy struct {
	sampler *env.Sampler
}

var _ Policy = &RandomPolicy{}

func NewRandomPolicy(spec *env.Spec, seed uint64) *RandomPolicy {
	return &RandomPolicy{sampler: env.NewSampler(spec, seed)}
}

func (r *RandomPolicy) NextAction(step int, b batch.Container) error {
	return r.sampler.Sample(b)
}

func (r *RandomPolicy) Update(_ int, _, _ batch.Container) {}

func (r *RandomPolicy) UpdateEpisode(_ int, _ *Trace) {}

func (r *RandomPolicy) Reset() {}
