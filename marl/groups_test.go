package marl

import (
	"errors"
	"testing"

	"github.com/zeu5/rl-env-utils/util"
)

func TestAllInOneGroup(t *testing.T) {
	agents := []string{"a0", "a1", "a2"}
	gm := AllInOneGroup.GroupMap(agents)
	if gm.Len() != 1 {
		t.Fatalf("expected one group, got %d", gm.Len())
	}
	if groups := gm.Groups(); groups[0] != "agents" {
		t.Errorf("unexpected group name %q", groups[0])
	}
	members := gm.Agents("agents")
	if len(members) != 3 {
		t.Fatalf("expected three members, got %d", len(members))
	}
	for i, agent := range agents {
		if members[i] != agent {
			t.Errorf("member %d: expected %q, got %q", i, agent, members[i])
		}
	}
	if err := Check(gm, agents); err != nil {
		t.Errorf("check: %v", err)
	}
}

func TestOneGroupPerAgent(t *testing.T) {
	agents := []string{"a0", "a1"}
	gm := OneGroupPerAgent.GroupMap(agents)
	if gm.Len() != 2 {
		t.Fatalf("expected two groups, got %d", gm.Len())
	}
	for _, agent := range agents {
		members := gm.Agents(agent)
		if len(members) != 1 || members[0] != agent {
			t.Errorf("group %q: unexpected members %v", agent, members)
		}
	}
	if err := Check(gm, agents); err != nil {
		t.Errorf("check: %v", err)
	}
}

func TestCheckNoAgents(t *testing.T) {
	if err := Check(NewGroupMap(), nil); !errors.Is(err, ErrNoAgents) {
		t.Errorf("expected ErrNoAgents, got %v", err)
	}
}

func TestCheckDuplicateAgent(t *testing.T) {
	gm := NewGroupMap().Add("g", "a0")
	err := Check(gm, []string{"a0", "a0"})
	if !errors.Is(err, ErrDuplicateAgent) {
		t.Errorf("expected ErrDuplicateAgent, got %v", err)
	}
}

func TestCheckTooManyGroups(t *testing.T) {
	gm := NewGroupMap().Add("g0", "a0").Add("g1", "a0").Add("g2", "a0")
	err := Check(gm, []string{"a0", "a1"})
	if !errors.Is(err, ErrTooManyGroups) {
		t.Errorf("expected ErrTooManyGroups, got %v", err)
	}
}

func TestCheckEmptyGroup(t *testing.T) {
	gm := NewGroupMap().Add("g")
	err := Check(gm, []string{"a0"})
	if !errors.Is(err, ErrEmptyGroup) {
		t.Errorf("expected ErrEmptyGroup, got %v", err)
	}
}

func TestCheckUnknownAgent(t *testing.T) {
	gm := NewGroupMap().Add("g", "a0", "intruder")
	err := Check(gm, []string{"a0", "a1"})
	if !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestCheckAgentRegrouped(t *testing.T) {
	gm := NewGroupMap().Add("g0", "a0").Add("g1", "a0")
	err := Check(gm, []string{"a0", "a1"})
	if !errors.Is(err, ErrAgentRegrouped) {
		t.Errorf("expected ErrAgentRegrouped, got %v", err)
	}

	// same failure when the duplicate sits inside one group
	gm = NewGroupMap().Add("g", "a0", "a0")
	err = Check(gm, []string{"a0", "a1"})
	if !errors.Is(err, ErrAgentRegrouped) {
		t.Errorf("expected ErrAgentRegrouped, got %v", err)
	}
}

func TestCheckUngroupedAgent(t *testing.T) {
	gm := NewGroupMap().Add("g", "a0")
	err := Check(gm, []string{"a0", "a1"})
	if !errors.Is(err, ErrUngroupedAgent) {
		t.Errorf("expected ErrUngroupedAgent, got %v", err)
	}
}

func TestCheckEveryPartition(t *testing.T) {
	// any partition of the agent set into named groups is a valid
	// grouping
	agents := []string{"a0", "a1", "a2", "a3"}
	partitions := util.Partitions(agents)
	if len(partitions) != 15 {
		t.Fatalf("expected 15 partitions of four agents, got %d", len(partitions))
	}
	for _, partition := range partitions {
		gm := NewGroupMap()
		for i, part := range partition {
			gm.Add(partition[i][0], part...)
		}
		if err := Check(gm, agents); err != nil {
			t.Errorf("partition %v: %v", partition, err)
		}
	}
}

func TestGroupMapCopies(t *testing.T) {
	gm := NewGroupMap().Add("g", "a0")
	groups := gm.Groups()
	groups[0] = "changed"
	members := gm.Agents("g")
	members[0] = "changed"
	if gm.Groups()[0] != "g" || gm.Agents("g")[0] != "a0" {
		t.Error("expected accessors to return copies")
	}
	if gm.Agents("missing") != nil {
		t.Error("expected nil for a missing group")
	}
}
