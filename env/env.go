package env

import (
	"github.com/zeu5/rl-env-utils/batch"
)

// Env declares the key contract of an environment: which paths in its
// batches carry actions, rewards, done flags, observations and carried
// state. The transition engine precomputes its routing from these lists.
type Env interface {
	// ActionKeys returns the paths of action entries.
	ActionKeys() []batch.Key
	// RewardKeys returns the paths of reward entries, written under the
	// next sub-batch by a step.
	RewardKeys() []batch.Key
	// DoneKeys returns the paths of done-flag entries, including
	// terminated and truncated variants.
	DoneKeys() []batch.Key
	// ObservationKeys returns the paths of observation entries.
	ObservationKeys() []batch.Key
	// StateKeys returns the paths of entries carried across steps at the
	// root without appearing under next.
	StateKeys() []batch.Key
	// FakeBatch returns a zero-filled batch with the exact structure of a
	// post-step batch, usable to probe key layouts without stepping.
	FakeBatch() batch.Container
}
