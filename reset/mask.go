package reset

import (
	"errors"
	"fmt"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/tensor"
)

// ErrPartialResetKeys reports that only some of the expected reset markers
// were present in a batch, the callers cannot tell which sub-trees to
// reinitialize in that state.
var ErrPartialResetKeys = errors.New("reset keys must either all be present or all be absent")

// AggregateMask folds reset markers into one batch-shaped mask.
//
// With explicit resetKeys, those entries are read, reduced over their
// trailing dimensions and ORed together. Mixing present and missing keys
// fails with ErrPartialResetKeys, all missing yields an all-true mask.
// With nil resetKeys and non-nil doneKeys, the reset keys are derived by
// replacing each done key's last segment with DefaultKey. With neither,
// the batch is skimmed for DefaultKey leaves at any depth and absence
// yields an all-false mask.
func AggregateMask(data batch.Container, resetKeys, doneKeys []batch.Key) (*tensor.Dense, error) {
	shape := data.BatchShape()
	n := len(shape)
	if resetKeys == nil && doneKeys != nil {
		derived := make([]batch.Key, 0, len(doneKeys))
		for _, k := range doneKeys {
			derived = append(derived, k.ReplaceLast(DefaultKey))
		}
		resetKeys = batch.DedupKeys(derived)
	}
	if resetKeys != nil {
		var mask *tensor.Dense
		sawPresent, sawMissing := false, false
		for _, k := range resetKeys {
			e, err := data.Get(k)
			if err != nil {
				if !errors.Is(err, batch.ErrKeyNotFound) {
					return nil, err
				}
				if sawPresent {
					return nil, fmt.Errorf("%w: %q is missing", ErrPartialResetKeys, k.String())
				}
				sawMissing = true
				continue
			}
			if sawMissing {
				return nil, fmt.Errorf("%w: %q is present", ErrPartialResetKeys, k.String())
			}
			sawPresent = true
			if !e.IsLeaf() {
				return nil, fmt.Errorf("reset: %q is a sub-batch, expected a reset marker", k.String())
			}
			local := e.Tensor()
			if local.Rank() > n {
				local = local.ReduceTrailingAny(n)
			}
			mask = orInto(mask, local)
		}
		if sawMissing {
			return tensor.OnesOn(data.Device(), tensor.Bool, shape), nil
		}
		if mask == nil {
			return tensor.ZerosOn(data.Device(), tensor.Bool, shape), nil
		}
		return mask, nil
	}
	mask := tensor.ZerosOn(data.Device(), tensor.Bool, shape)
	if err := skimResets(data, n, &mask); err != nil {
		return nil, err
	}
	return mask, nil
}

func skimResets(data batch.Container, n int, mask **tensor.Dense) error {
	for _, name := range data.Keys() {
		e, err := data.Get(batch.K(name))
		if err != nil {
			return err
		}
		if e.IsLeaf() {
			if name != DefaultKey {
				continue
			}
			local := e.Tensor()
			if local.Rank() > n {
				local = local.ReduceTrailingAny(n)
			}
			*mask = (*mask).Or(local)
			continue
		}
		if err := skimResets(e.Container(), n, mask); err != nil {
			return err
		}
	}
	return nil
}
