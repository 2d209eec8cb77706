package rollout

import (
	"fmt"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/env"
	"github.com/zeu5/rl-env-utils/mdp"
	"github.com/zeu5/rl-env-utils/reset"
)

type AgentConfig struct {
	Episodes    int
	Horizon     int
	Policy      Policy
	Environment Environment
	// BreakOnDone ends an episode at the first terminal step instead
	// of merging a fresh reset and playing on to the horizon.
	BreakOnDone bool
	// Generic skips the precomputed key routing and serves every
	// transition through the generically-keyed path.
	Generic bool
}

// Agent runs episodes of an environment under a policy, advancing the
// batch with the transition engine and splicing reset batches in at
// episode boundaries.
type Agent struct {
	config    *AgentConfig
	stepper   *mdp.Stepper
	cfg       mdp.Config
	doneSpec  *env.Spec
	resetKeys []batch.Key
	traces    []*Trace
}

// NewAgent instantiates an agent. The reset keys are derived from the
// environment's done keys by name substitution.
func NewAgent(config *AgentConfig) *Agent {
	doneKeys := config.Environment.DoneKeys()
	derived := make([]batch.Key, 0, len(doneKeys))
	for _, k := range doneKeys {
		derived = append(derived, k.ReplaceLast(reset.DefaultKey))
	}
	resetKeys := batch.DedupKeys(derived)
	batch.SortByDepth(resetKeys)

	return &Agent{
		config:    config,
		stepper:   mdp.NewStepper(config.Environment, mdp.DefaultConfig()),
		cfg:       mdp.ConfigFor(config.Environment, mdp.DefaultConfig()),
		doneSpec:  config.Environment.DoneSpec(),
		resetKeys: resetKeys,
		traces:    make([]*Trace, 0, config.Episodes),
	}
}

// Traces lists the traces collected by Run, one per episode.
func (a *Agent) Traces() []*Trace {
	return a.traces
}

// Run plays the configured number of episodes.
func (a *Agent) Run() error {
	for episode := 0; episode < a.config.Episodes; episode++ {
		trace, err := a.RunEpisode(episode)
		if err != nil {
			return fmt.Errorf("rollout: episode %d: %w", episode, err)
		}
		a.traces = append(a.traces, trace)
	}
	return nil
}

// RunEpisode plays one episode up to the horizon and returns its trace.
// Terminal steps inside the horizon merge a freshly reset batch and
// play on, unless BreakOnDone is set.
func (a *Agent) RunEpisode(episode int) (*Trace, error) {
	environment := a.config.Environment
	b, err := environment.Reset()
	if err != nil {
		return nil, err
	}
	trace := NewTrace()
	for step := 0; step < a.config.Horizon; step++ {
		if err := a.config.Policy.NextAction(step, b); err != nil {
			return nil, err
		}
		if b, err = environment.Step(b); err != nil {
			return nil, err
		}
		trace.Append(b)

		var out batch.Container
		if a.config.Generic {
			out, err = mdp.Step(b, nil, a.cfg)
		} else {
			out, err = a.stepper.Step(b)
		}
		if err != nil {
			return nil, err
		}
		a.config.Policy.Update(step, b, out)

		any, err := reset.TerminatedOrTruncated(out, a.doneSpec, reset.DefaultKey, false)
		if err != nil {
			return nil, err
		}
		if any {
			if a.config.BreakOnDone {
				break
			}
			resetBatch, err := environment.Reset()
			if err != nil {
				return nil, err
			}
			if err := reset.Merge(resetBatch, out, a.resetKeys); err != nil {
				return nil, err
			}
		}
		b = out
	}
	a.config.Policy.UpdateEpisode(episode, trace)
	return trace, nil
}
