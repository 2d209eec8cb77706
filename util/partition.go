package util

import "sort"

type stack struct {
	c int
	u int
	v int
}

type visitorFunc func([][]string)

func enumeratePartitions(multiplicities []int, keys []string, visitor visitorFunc) {
	m := len(multiplicities)
	n := 0
	for _, count := range multiplicities {
		n += count
	}

	// M1. Initialize
	stacks := make([]stack, m*n+1)
	for i := 0; i < m*n+1; i++ {
		if i < m {
			stacks[i] = stack{
				c: i + 1,
				u: multiplicities[i],
				v: multiplicities[i],
			}
		} else {
			stacks[i] = stack{}
		}
	}
	f := make([]int, n+1)
	f[0] = 0
	a := 0
	l := 0
	f[1] = m
	b := m

	for {
		var j int
		for {
			// M2. Subtract u from v
			j = a
			k := b
			x := false
			for j < b {
				stacks[k].u = stacks[j].u - stacks[j].v
				if stacks[k].u == 0 {
					x = true
				} else if !x {
					stacks[k].c = stacks[j].c
					stacks[k].v = stacks[j].v
					if stacks[k].u < stacks[j].v {
						stacks[k].v = stacks[k].u
						x = true
					}
					k = k + 1
				} else {
					stacks[k].c = stacks[j].c
					stacks[k].v = stacks[k].u
					k = k + 1
				}
				j = j + 1
			}

			// M3. Push if non zero
			if k > b {
				a = b
				b = k
				l = l + 1
				f[l+1] = b
				// Return to M2
			} else {
				break
			}
		}

		// M4. Visit a partition
		parts := make([][]string, 0)
		for p := 0; p < l+1; p++ {
			part := make([]string, 0)
			for q := f[p]; q < f[p+1]; q++ {
				key := keys[stacks[q].c-1]
				for r := 0; r < stacks[q].v; r++ {
					part = append(part, key)
				}
			}
			parts = append(parts, part)
		}
		visitor(parts)

		for {
			// M5. Decrease v
			j = b - 1
			for stacks[j].v == 0 {
				j = j - 1
			}
			if j == a && stacks[j].v == 1 {
				// M6. Backtrack
				if l == 0 {
					return
				}
				l = l - 1
				b = a
				a = f[l]
				// Return to M5
			} else {
				stacks[j].v = stacks[j].v - 1
				for k := j + 1; k < b; k++ {
					stacks[k].v = stacks[k].u
				}
				// Go back to M2
				break
			}
		}
	}
}

// Partitions lists every way to split names into non-empty unordered
// groups. Names are deduplicated and sorted before enumeration, so the
// result covers each distinct name exactly once per partition.
// The algorithm is drawn from "The Art of Computer Programming"
// Section 7.2.1.5, Algorithm M
func Partitions(names []string) [][][]string {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	multiplicities := make([]int, len(keys))
	for i := range multiplicities {
		multiplicities[i] = 1
	}
	partitions := make([][][]string, 0)
	enumeratePartitions(multiplicities, keys, func(parts [][]string) {
		partitions = append(partitions, parts)
	})
	return partitions
}
