// Package grid implements a batched multi-agent gridworld. Agents move
// on a stack of Height x Width grids, connected by doors and a shared
// "next grid" cell, chasing a goal position sampled at reset. Agents
// are laid out in batches per group, so the environment doubles as a
// workout for the transition and reset machinery.
package grid

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/env"
	"github.com/zeu5/rl-env-utils/marl"
	"github.com/zeu5/rl-env-utils/mdp"
	"github.com/zeu5/rl-env-utils/tensor"
)

// Movement encoding of the categorical action.
const (
	MoveNothing int64 = iota
	MoveUp
	MoveDown
	MoveLeft
	MoveRight
	MoveNext

	moveCount
)

type Position struct {
	I int
	J int
	K int
}

func (p Position) Eq(other Position) bool {
	return p.I == other.I && p.J == other.J && p.K == other.K
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.I, p.J, p.K)
}

// Door teleports an agent standing on From to To when it plays
// MoveNext.
type Door struct {
	From Position
	To   Position
}

type Config struct {
	Height int
	Width  int
	// Grids stacks copies of the grid, entered in order through the
	// shared next-grid cell. Defaults to 1.
	Grids  int
	Agents []string
	// GroupMap overrides Grouping when set.
	GroupMap *marl.GroupMap
	Grouping marl.GroupStrategy
	Doors    []Door
	Device   string
	Seed     uint64
}

// GridEnvironment is a stateful single-owner environment. Concurrent
// callers must each construct their own instance.
type GridEnvironment struct {
	cfg       Config
	groups    *marl.GroupMap
	positions map[string]Position
	reached   map[string]bool
	goal      Position
	rng       *rand.Rand
}

var _ env.Env = &GridEnvironment{}

func NewGridEnvironment(cfg Config) (*GridEnvironment, error) {
	if cfg.Height <= 0 || cfg.Width <= 0 {
		return nil, fmt.Errorf("grid: invalid dimensions %dx%d", cfg.Height, cfg.Width)
	}
	if cfg.Grids <= 0 {
		cfg.Grids = 1
	}
	groups := cfg.GroupMap
	if groups == nil {
		groups = cfg.Grouping.GroupMap(cfg.Agents)
	}
	if err := marl.Check(groups, cfg.Agents); err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	g := &GridEnvironment{
		cfg:       cfg,
		groups:    groups,
		positions: make(map[string]Position, len(cfg.Agents)),
		reached:   make(map[string]bool, len(cfg.Agents)),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
	g.resetState()
	return g, nil
}

func (g *GridEnvironment) Groups() *marl.GroupMap { return g.groups }

func (g *GridEnvironment) resetState() {
	for _, agent := range g.cfg.Agents {
		g.positions[agent] = Position{0, 0, 0}
		g.reached[agent] = false
	}
	g.goal = Position{
		I: g.rng.Intn(g.cfg.Height),
		J: g.rng.Intn(g.cfg.Width),
		K: g.cfg.Grids - 1,
	}
}

// Reset reinitializes every agent and samples a fresh goal. The
// returned batch holds the goal, the per-group observations and
// all-false done flags.
func (g *GridEnvironment) Reset() (batch.Container, error) {
	g.resetState()
	b := batch.New(nil, g.cfg.Device)
	if err := b.Set(batch.K("goal"), batch.Leaf(g.goalTensor())); err != nil {
		return nil, err
	}
	for _, group := range g.groups.Groups() {
		members := g.groups.Agents(group)
		sub := batch.New([]int{len(members)}, g.cfg.Device)
		if err := sub.Set(batch.K("obs"), batch.Leaf(g.observe(members))); err != nil {
			return nil, err
		}
		if err := sub.Set(batch.K("done"), boolLeaf(members, func(string) bool { return false })); err != nil {
			return nil, err
		}
		if err := sub.Set(batch.K("terminated"), boolLeaf(members, func(string) bool { return false })); err != nil {
			return nil, err
		}
		if err := b.Set(batch.K(group), batch.Sub(sub)); err != nil {
			return nil, err
		}
	}
	falseFlag := func() *tensor.Dense { return tensor.FromBools([]bool{false}, []int{1}) }
	if err := b.Set(batch.K("done"), batch.Leaf(falseFlag())); err != nil {
		return nil, err
	}
	if err := b.Set(batch.K("terminated"), batch.Leaf(falseFlag())); err != nil {
		return nil, err
	}
	return b, nil
}

// Step consumes the per-group actions from b, advances every agent
// still in play and writes the next sub-batch in place. The episode
// terminates when every agent has reached the goal.
func (g *GridEnvironment) Step(b batch.Container) (batch.Container, error) {
	next := batch.New(nil, g.cfg.Device)
	allReached := true
	for _, group := range g.groups.Groups() {
		members := g.groups.Agents(group)
		e, err := b.Get(batch.K(group, "action"))
		if err != nil {
			return nil, fmt.Errorf("grid: group %q has no action: %w", group, err)
		}
		if !e.IsLeaf() {
			return nil, fmt.Errorf("grid: action of group %q is not a leaf", group)
		}
		actions := e.Tensor().Int64s()
		if len(actions) != len(members) {
			return nil, fmt.Errorf("grid: group %q has %d actions for %d agents", group, len(actions), len(members))
		}

		rewards := make([]float64, len(members))
		for i, agent := range members {
			if g.reached[agent] {
				continue
			}
			g.positions[agent] = g.move(g.positions[agent], actions[i])
			if g.positions[agent].Eq(g.goal) {
				g.reached[agent] = true
				rewards[i] = 1.0
			}
			if !g.reached[agent] {
				allReached = false
			}
		}

		sub := batch.New([]int{len(members)}, g.cfg.Device)
		if err := sub.Set(batch.K("obs"), batch.Leaf(g.observe(members))); err != nil {
			return nil, err
		}
		if err := sub.Set(batch.K("reward"), batch.Leaf(tensor.FromFloat64s(rewards, []int{len(members), 1}))); err != nil {
			return nil, err
		}
		reached := func(agent string) bool { return g.reached[agent] }
		if err := sub.Set(batch.K("done"), boolLeaf(members, reached)); err != nil {
			return nil, err
		}
		if err := sub.Set(batch.K("terminated"), boolLeaf(members, reached)); err != nil {
			return nil, err
		}
		if err := next.Set(batch.K(group), batch.Sub(sub)); err != nil {
			return nil, err
		}
	}
	flag := func() *tensor.Dense { return tensor.FromBools([]bool{allReached}, []int{1}) }
	if err := next.Set(batch.K("done"), batch.Leaf(flag())); err != nil {
		return nil, err
	}
	if err := next.Set(batch.K("terminated"), batch.Leaf(flag())); err != nil {
		return nil, err
	}
	if err := b.Set(batch.K(mdp.NextKey), batch.Sub(next)); err != nil {
		return nil, err
	}
	return b, nil
}

// move resolves a single agent action. Cardinal moves clamp at the grid
// edges; MoveNext goes through a door on the agent's cell, or from the
// shared corner cell into the next grid.
func (g *GridEnvironment) move(pos Position, action int64) Position {
	next := pos
	if action == MoveNext {
		for _, d := range g.cfg.Doors {
			if d.From.Eq(pos) {
				return d.To
			}
		}
	}
	switch action {
	case MoveNothing:
	case MoveUp:
		next.I = min(g.cfg.Height-1, pos.I+1)
	case MoveDown:
		next.I = max(0, pos.I-1)
	case MoveLeft:
		next.J = max(0, pos.J-1)
	case MoveRight:
		next.J = min(g.cfg.Width-1, pos.J+1)
	case MoveNext:
		if pos.I == min(10, g.cfg.Height-1) && pos.J == min(10, g.cfg.Width-1) && pos.K < g.cfg.Grids-1 {
			next = Position{0, 0, pos.K + 1}
		}
	}
	return next
}

func (g *GridEnvironment) observe(members []string) *tensor.Dense {
	obs := make([]float64, 0, 3*len(members))
	for _, agent := range members {
		pos := g.positions[agent]
		obs = append(obs, float64(pos.I), float64(pos.J), float64(pos.K))
	}
	return tensor.FromFloat64s(obs, []int{len(members), 3})
}

func (g *GridEnvironment) goalTensor() *tensor.Dense {
	return tensor.FromFloat64s([]float64{float64(g.goal.I), float64(g.goal.J), float64(g.goal.K)}, []int{3})
}

func boolLeaf(members []string, flag func(string) bool) batch.Entry {
	vals := make([]bool, len(members))
	for i, agent := range members {
		vals[i] = flag(agent)
	}
	return batch.Leaf(tensor.FromBools(vals, []int{len(members), 1}))
}

func (g *GridEnvironment) ActionKeys() []batch.Key {
	keys := make([]batch.Key, 0, g.groups.Len())
	for _, group := range g.groups.Groups() {
		keys = append(keys, batch.K(group, "action"))
	}
	return keys
}

func (g *GridEnvironment) RewardKeys() []batch.Key {
	keys := make([]batch.Key, 0, g.groups.Len())
	for _, group := range g.groups.Groups() {
		keys = append(keys, batch.K(group, "reward"))
	}
	return keys
}

func (g *GridEnvironment) DoneKeys() []batch.Key {
	keys := []batch.Key{batch.K("done"), batch.K("terminated")}
	for _, group := range g.groups.Groups() {
		keys = append(keys, batch.K(group, "done"), batch.K(group, "terminated"))
	}
	return keys
}

func (g *GridEnvironment) ObservationKeys() []batch.Key {
	keys := make([]batch.Key, 0, g.groups.Len())
	for _, group := range g.groups.Groups() {
		keys = append(keys, batch.K(group, "obs"))
	}
	return keys
}

func (g *GridEnvironment) StateKeys() []batch.Key {
	return []batch.Key{batch.K("goal")}
}

// ActionSpec declares one categorical movement per agent, grouped the
// way the batches are.
func (g *GridEnvironment) ActionSpec() *env.Spec {
	spec := env.NewComposite(nil)
	for _, group := range g.groups.Groups() {
		n := len(g.groups.Agents(group))
		sub := env.NewComposite([]int{n})
		sub.Set(batch.K("action"), env.Categorical(moveCount, []int{n}))
		spec.Set(batch.K(group), sub)
	}
	return spec
}

// DoneSpec mirrors the done-flag layout of the batches, usable as the
// schema for episode-boundary aggregation.
func (g *GridEnvironment) DoneSpec() *env.Spec {
	spec := env.NewComposite(nil)
	spec.Set(batch.K("done"), env.Binary([]int{1}))
	spec.Set(batch.K("terminated"), env.Binary([]int{1}))
	for _, group := range g.groups.Groups() {
		n := len(g.groups.Agents(group))
		sub := env.NewComposite([]int{n})
		sub.Set(batch.K("done"), env.Binary([]int{n, 1}))
		sub.Set(batch.K("terminated"), env.Binary([]int{n, 1}))
		spec.Set(batch.K(group), sub)
	}
	return spec
}

func (g *GridEnvironment) observationSpec() *env.Spec {
	spec := env.NewComposite(nil)
	for _, group := range g.groups.Groups() {
		n := len(g.groups.Agents(group))
		sub := env.NewComposite([]int{n})
		sub.Set(batch.K("obs"), env.Bounded(0, float64(max(g.cfg.Height, max(g.cfg.Width, g.cfg.Grids))-1), []int{n, 3}))
		spec.Set(batch.K(group), sub)
	}
	return spec
}

func (g *GridEnvironment) rewardSpec() *env.Spec {
	spec := env.NewComposite(nil)
	for _, group := range g.groups.Groups() {
		n := len(g.groups.Agents(group))
		sub := env.NewComposite([]int{n})
		sub.Set(batch.K("reward"), env.Unbounded(tensor.Float64, []int{n, 1}))
		spec.Set(batch.K(group), sub)
	}
	return spec
}

// FakeBatch assembles a zero batch with the exact key layout of a
// stepped batch: state and actions at the root, observations and done
// flags on both sides, rewards under next.
func (g *GridEnvironment) FakeBatch() batch.Container {
	b := batch.New(nil, g.cfg.Device)
	goal := env.NewComposite(nil)
	goal.Set(batch.K("goal"), env.Bounded(0, float64(max(g.cfg.Height, g.cfg.Width)-1), []int{3}))
	next := batch.New(nil, g.cfg.Device)
	for _, spec := range []*env.Spec{goal, g.ActionSpec(), g.observationSpec(), g.DoneSpec()} {
		filled, err := spec.Zero(g.cfg.Device)
		if err != nil {
			panic(err)
		}
		if err := b.Update(filled); err != nil {
			panic(err)
		}
	}
	for _, spec := range []*env.Spec{g.observationSpec(), g.DoneSpec(), g.rewardSpec()} {
		filled, err := spec.Zero(g.cfg.Device)
		if err != nil {
			panic(err)
		}
		if err := next.Update(filled); err != nil {
			panic(err)
		}
	}
	if err := b.Set(batch.K(mdp.NextKey), batch.Sub(next)); err != nil {
		panic(err)
	}
	return b
}
