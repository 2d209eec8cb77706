// Package marl maps agents of a multi-agent environment into named
// groups. Agents in one group share a nesting node in the batches the
// environment produces, so grouping decides the batch layout.
package marl

import (
	"errors"
	"fmt"
)

var (
	ErrNoAgents       = errors.New("no agents passed")
	ErrDuplicateAgent = errors.New("agents with the same name")
	ErrTooManyGroups  = errors.New("more groups than agents")
	ErrEmptyGroup     = errors.New("empty group")
	ErrUnknownAgent   = errors.New("agent not present in the environment")
	ErrAgentRegrouped = errors.New("agent present in more than one group")
	ErrUngroupedAgent = errors.New("agent not found in any group")
)

// GroupMap assigns agents to named groups. Group order and member
// order within a group are preserved.
type GroupMap struct {
	names   []string
	members map[string][]string
}

func NewGroupMap() *GroupMap {
	return &GroupMap{
		names:   make([]string, 0),
		members: make(map[string][]string),
	}
}

// Add appends agents to the named group, creating the group on first
// use. It returns the map for chaining.
func (g *GroupMap) Add(group string, agents ...string) *GroupMap {
	if _, ok := g.members[group]; !ok {
		g.names = append(g.names, group)
		g.members[group] = make([]string, 0, len(agents))
	}
	g.members[group] = append(g.members[group], agents...)
	return g
}

// Groups lists the group names in insertion order.
func (g *GroupMap) Groups() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Agents lists the members of a group, nil when the group does not
// exist.
func (g *GroupMap) Agents(group string) []string {
	members, ok := g.members[group]
	if !ok {
		return nil
	}
	out := make([]string, len(members))
	copy(out, members)
	return out
}

func (g *GroupMap) Len() int { return len(g.names) }

// GroupStrategy is a canned recipe for deriving a GroupMap from a
// flat list of agent names.
type GroupStrategy string

const (
	// AllInOneGroup puts every agent into a single group named
	// "agents".
	AllInOneGroup GroupStrategy = "AllInOneGroup"
	// OneGroupPerAgent gives every agent its own group, named after
	// the agent.
	OneGroupPerAgent GroupStrategy = "OneGroupPerAgent"
)

// GroupMap builds the group map the strategy prescribes for agents.
func (s GroupStrategy) GroupMap(agents []string) *GroupMap {
	gm := NewGroupMap()
	switch s {
	case OneGroupPerAgent:
		for _, agent := range agents {
			gm.Add(agent, agent)
		}
	default:
		gm.Add("agents", agents...)
	}
	return gm
}

// Check validates a group map against the agents of an environment.
// Every agent must appear in exactly one group, no group may be empty
// and there cannot be more groups than agents. The first violation
// found is returned, wrapped around the matching sentinel error.
func Check(gm *GroupMap, agents []string) error {
	if len(agents) == 0 {
		return ErrNoAgents
	}
	found := make(map[string]bool, len(agents))
	for _, agent := range agents {
		if _, ok := found[agent]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateAgent, agent)
		}
		found[agent] = false
	}
	if gm.Len() > len(agents) {
		return fmt.Errorf("%w: %d groups for %d agents", ErrTooManyGroups, gm.Len(), len(agents))
	}
	for _, group := range gm.names {
		members := gm.members[group]
		if len(members) == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyGroup, group)
		}
		for _, agent := range members {
			grouped, ok := found[agent]
			if !ok {
				return fmt.Errorf("%w: %q in group %q", ErrUnknownAgent, agent, group)
			}
			if grouped {
				return fmt.Errorf("%w: %q", ErrAgentRegrouped, agent)
			}
			found[agent] = true
		}
	}
	for _, agent := range agents {
		if !found[agent] {
			return fmt.Errorf("%w: %q", ErrUngroupedAgent, agent)
		}
	}
	return nil
}
