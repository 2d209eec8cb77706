package batch

import (
	"sort"
	"strings"
)

// Key addresses an entry inside a Batch as a path of segment names from the
// root. The dot-joined form returned by String is the canonical identity
// used for set membership and deduplication.
type Key []string

// K builds a Key from path segments.
func K(segments ...string) Key {
	return Key(segments)
}

func (k Key) String() string {
	return strings.Join(k, ".")
}

func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy safe to extend without aliasing.
func (k Key) Clone() Key {
	if len(k) == 0 {
		return nil
	}
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// Child returns the key extended with one more segment.
func (k Key) Child(name string) Key {
	out := make(Key, 0, len(k)+1)
	out = append(out, k...)
	out = append(out, name)
	return out
}

// Parent returns the key with its last segment removed, nil for a
// single-segment key.
func (k Key) Parent() Key {
	if len(k) <= 1 {
		return nil
	}
	return k[:len(k)-1].Clone()
}

// Leaf returns the last segment.
func (k Key) Leaf() string {
	if len(k) == 0 {
		return ""
	}
	return k[len(k)-1]
}

// ReplaceLast returns a key with its last segment swapped for name.
func (k Key) ReplaceLast(name string) Key {
	if len(k) == 0 {
		return K(name)
	}
	out := k.Clone()
	out[len(out)-1] = name
	return out
}

// HasPrefix reports whether prefix is a leading sub-path of k. Every key has
// the empty prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// SortByDepth orders keys by path depth first and dotted form second, so
// shallow keys come before deep ones deterministically.
func SortByDepth(keys []Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i].String() < keys[j].String()
	})
}

// DedupKeys drops later duplicates, preserving first-seen order.
func DedupKeys(keys []Key) []Key {
	seen := make(map[string]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		s := k.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, k)
	}
	return out
}

// KeySet is a set of keys keyed by their canonical dotted form.
type KeySet map[string]struct{}

func NewKeySet(keys ...Key) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s KeySet) Add(k Key) {
	s[k.String()] = struct{}{}
}

func (s KeySet) Has(k Key) bool {
	_, ok := s[k.String()]
	return ok
}

// EqualSet reports whether two key sets contain exactly the same keys.
func (s KeySet) EqualSet(o KeySet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// Diff returns the dotted keys present in s but not in o, sorted.
func (s KeySet) Diff(o KeySet) []string {
	var out []string
	for k := range s {
		if _, ok := o[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
