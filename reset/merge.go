package reset

import (
	"fmt"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/tensor"
)

// Merge folds freshly reinitialized values into a working batch under the
// control of per-node reset markers.
//
// For each reset key, the marker is popped from b whether or not it ends
// up used. The node owning the key is then updated from the matching node
// of resetBatch: wholesale when the marker is absent or all true, or
// element-wise where the marker holds, with leaves missing from resetBatch
// zero-filled. Keys at or below an already processed node are skipped
// after their marker is popped, that merge already covered them; once a
// root-level key was processed every later key is covered. With no reset
// keys at all, b is left as it is.
//
// Reset keys must be ordered root-first (see batch.SortByDepth) for the
// ancestor rule to apply, and the nodes they name must exist in both
// batches.
func Merge(resetBatch, b batch.Container, resetKeys []batch.Key) error {
	var processed []batch.Key
	for _, rk := range resetKeys {
		nodeKey := rk.Parent()
		node, nodeReset := b, resetBatch
		if len(nodeKey) > 0 {
			e, err := b.Get(nodeKey)
			if err != nil {
				return fmt.Errorf("reset: merge target node %q: %w", nodeKey.String(), err)
			}
			if e.IsLeaf() {
				return fmt.Errorf("reset: merge target %q is a leaf", nodeKey.String())
			}
			er, err := resetBatch.Get(nodeKey)
			if err != nil {
				return fmt.Errorf("reset: reset batch node %q: %w", nodeKey.String(), err)
			}
			if er.IsLeaf() {
				return fmt.Errorf("reset: reset batch node %q is a leaf", nodeKey.String())
			}
			node, nodeReset = e.Container(), er.Container()
		}

		sig, found := b.Pop(rk)

		skip := false
		for _, root := range processed {
			if rk.HasPrefix(root) {
				skip = true
				break
			}
		}
		processed = append(processed, nodeKey)
		if skip {
			continue
		}

		var mask *tensor.Dense
		if found {
			if !sig.IsLeaf() {
				return fmt.Errorf("reset: marker %q is a sub-batch", rk.String())
			}
			mask = sig.Tensor()
		}
		if mask == nil || mask.All() {
			if err := node.Update(nodeReset); err != nil {
				return err
			}
			continue
		}
		nodeRank := len(node.BatchShape())
		if mask.Rank() > nodeRank {
			mask = mask.ReduceTrailingAny(nodeRank)
		}
		mask = mask.Reshape(node.BatchShape())
		if err := node.MergeWhere(mask, nodeReset); err != nil {
			return err
		}
	}
	return nil
}
