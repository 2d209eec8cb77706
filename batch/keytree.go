package batch

// KeyTree is an ordered prefix tree over key paths. A node with a nil
// subtree is a leaf. Children keep insertion order so traversal is
// deterministic.
type KeyTree struct {
	names    []string
	children map[string]*KeyTree
}

// NewKeyTree builds a tree from the given leaf paths.
func NewKeyTree(keys []Key) *KeyTree {
	t := &KeyTree{children: make(map[string]*KeyTree)}
	for _, k := range keys {
		t.Insert(k)
	}
	return t
}

// Insert adds a leaf path. Inserting a path under an existing leaf turns
// that leaf into an interior node. Inserting a strict prefix of an existing
// subtree leaves the subtree in place.
func (t *KeyTree) Insert(k Key) {
	if len(k) == 0 {
		return
	}
	name := k[0]
	sub, ok := t.children[name]
	if !ok {
		t.names = append(t.names, name)
		if len(k) == 1 {
			t.children[name] = nil
			return
		}
		sub = &KeyTree{children: make(map[string]*KeyTree)}
		t.children[name] = sub
	}
	if len(k) == 1 {
		return
	}
	if sub == nil {
		sub = &KeyTree{children: make(map[string]*KeyTree)}
		t.children[name] = sub
	}
	sub.Insert(k[1:])
}

// Names returns the child names in insertion order.
func (t *KeyTree) Names() []string {
	return t.names
}

// Child returns the subtree under name, nil when name is a leaf.
func (t *KeyTree) Child(name string) *KeyTree {
	return t.children[name]
}

// Has reports whether name is a direct child.
func (t *KeyTree) Has(name string) bool {
	_, ok := t.children[name]
	return ok
}

// Len returns the number of direct children.
func (t *KeyTree) Len() int {
	return len(t.names)
}

// Leaves returns the full paths of all leaves in traversal order.
func (t *KeyTree) Leaves() []Key {
	var out []Key
	t.appendLeaves(nil, &out)
	return out
}

func (t *KeyTree) appendLeaves(prefix Key, out *[]Key) {
	for _, name := range t.names {
		path := prefix.Child(name)
		if sub := t.children[name]; sub != nil {
			sub.appendLeaves(path, out)
		} else {
			*out = append(*out, path)
		}
	}
}
