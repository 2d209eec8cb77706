package util

import (
	"sort"
	"strings"
	"testing"
)

func TestPartitionsCounts(t *testing.T) {
	// Bell numbers for 1..4 distinct names
	cases := []struct {
		names []string
		count int
	}{
		{[]string{"a"}, 1},
		{[]string{"a", "b"}, 2},
		{[]string{"a", "b", "c"}, 5},
		{[]string{"a", "b", "c", "d"}, 15},
	}
	for _, c := range cases {
		got := Partitions(c.names)
		if len(got) != c.count {
			t.Errorf("%d names: expected %d partitions, got %d", len(c.names), c.count, len(got))
		}
	}
}

func TestPartitionsCoverEveryName(t *testing.T) {
	names := []string{"a", "b", "c"}
	for _, partition := range Partitions(names) {
		flat := make([]string, 0, len(names))
		for _, part := range partition {
			if len(part) == 0 {
				t.Fatal("empty part in a partition")
			}
			flat = append(flat, part...)
		}
		sort.Strings(flat)
		if strings.Join(flat, ",") != "a,b,c" {
			t.Errorf("partition does not cover the names exactly once: %v", partition)
		}
	}
}

func TestPartitionsDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, partition := range Partitions([]string{"a", "b", "c"}) {
		parts := make([]string, 0, len(partition))
		for _, part := range partition {
			sorted := append([]string(nil), part...)
			sort.Strings(sorted)
			parts = append(parts, strings.Join(sorted, ","))
		}
		sort.Strings(parts)
		key := strings.Join(parts, "|")
		if seen[key] {
			t.Errorf("duplicate partition %s", key)
		}
		seen[key] = true
	}
}

func TestPartitionsDedup(t *testing.T) {
	if got := Partitions([]string{"a", "a"}); len(got) != 1 {
		t.Errorf("expected a single partition of one name, got %d", len(got))
	}
	if got := Partitions(nil); got != nil {
		t.Errorf("expected nil for no names, got %v", got)
	}
}
