package reset

import (
	"errors"
	"fmt"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/env"
	"github.com/zeu5/rl-env-utils/tensor"
)

// DefaultKey is the conventional name under which reset markers are
// written next to the done leaves they aggregate.
const DefaultKey = "_reset"

// doneNames are the leaf names treated as end-of-trajectory flags when no
// done spec is given.
var doneNames = map[string]struct{}{
	"done":       {},
	"terminated": {},
	"truncated":  {},
}

// TerminatedOrTruncated aggregates done-style flags into one marker per
// batch node and reports whether any flag is set anywhere.
//
// With a done spec, the spec tree is walked: leaves name the done entries
// of each node (missing ones count as all false) and composite children
// are recursed into. Without a spec, the data itself is skimmed for leaves
// named done, terminated or truncated. Each node holding such leaves gets
// their OR written under key, squeezed of its trailing unit dimension when
// it extends the node's batch shape. A node with its own done leaves
// decides its verdict alone, children only speak for nodes without them.
//
// When nothing is set and writeFullFalse is false, the written markers are
// removed again so a negative call leaves data as it was. An empty key
// skips writing entirely.
func TerminatedOrTruncated(data batch.Container, doneSpec *env.Spec, key string, writeFullFalse bool) (bool, error) {
	var written []batch.Key
	anyEOT, err := aggregateNode(data, doneSpec, key, nil, &written)
	if err != nil {
		return false, err
	}
	if !anyEOT && !writeFullFalse && key != "" {
		data.Exclude(written...)
	}
	return anyEOT, nil
}

func aggregateNode(data batch.Container, doneSpec *env.Spec, key string, prefix batch.Key, written *[]batch.Key) (bool, error) {
	var aggregate *tensor.Dense
	foundLeaf := 0
	type namedSub struct {
		name string
		sub  batch.Container
		spec *env.Spec
	}
	var subs []namedSub

	if doneSpec == nil {
		for _, name := range data.Keys() {
			e, err := data.Get(batch.K(name))
			if err != nil {
				return false, err
			}
			if _, ok := doneNames[name]; ok && e.IsLeaf() {
				foundLeaf++
				aggregate = orInto(aggregate, e.Tensor())
				continue
			}
			if !e.IsLeaf() {
				subs = append(subs, namedSub{name: name, sub: e.Container()})
			}
		}
	} else {
		if !doneSpec.IsComposite() {
			return false, fmt.Errorf("reset: done spec at %q must be composite", prefix.String())
		}
		for _, name := range doneSpec.Keys() {
			child := doneSpec.Child(name)
			if child.IsComposite() {
				e, err := data.Get(batch.K(name))
				if err != nil {
					return false, fmt.Errorf("reset: done spec names %q but the batch has no such node: %w", prefix.Child(name).String(), err)
				}
				if e.IsLeaf() {
					return false, fmt.Errorf("reset: done spec names %q as a node but the batch holds a leaf", prefix.Child(name).String())
				}
				subs = append(subs, namedSub{name: name, sub: e.Container(), spec: child})
				continue
			}
			foundLeaf++
			flag, err := data.GetLeaf(batch.K(name))
			if err != nil {
				// only an absent leaf counts as all false
				if !errors.Is(err, batch.ErrKeyNotFound) {
					return false, err
				}
				shape := append(data.BatchShape(), 1)
				flag = tensor.ZerosOn(data.Device(), tensor.Bool, shape)
			}
			aggregate = orInto(aggregate, flag)
		}
	}

	anyEOT := false
	if aggregate != nil {
		if aggregate.Rank() > len(data.BatchShape()) {
			aggregate = aggregate.SqueezeTrailing()
		}
		if key != "" {
			if err := data.Set(batch.K(key), batch.Leaf(aggregate)); err != nil {
				return false, err
			}
			*written = append(*written, prefix.Child(key))
		}
		anyEOT = aggregate.Any()
	}
	for _, s := range subs {
		childAny, err := aggregateNode(s.sub, s.spec, key, prefix.Child(s.name), written)
		if err != nil {
			return false, err
		}
		if foundLeaf == 0 {
			anyEOT = anyEOT || childAny
		}
	}
	return anyEOT, nil
}

func orInto(aggregate, flag *tensor.Dense) *tensor.Dense {
	if aggregate == nil {
		return flag.Clone()
	}
	return aggregate.Or(flag)
}
