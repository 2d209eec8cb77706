package rollout

import (
	"encoding/json"

	"github.com/zeu5/rl-env-utils/batch"
)

// Trace of an episode as a sequence of stepped batches, each holding
// the root entries, the chosen actions and the next sub-batch.
type Trace struct {
	steps []batch.Container
}

func NewTrace() *Trace {
	return &Trace{
		steps: make([]batch.Container, 0),
	}
}

func (t *Trace) Append(b batch.Container) {
	t.steps = append(t.steps, b)
}

func (t *Trace) Len() int {
	return len(t.steps)
}

func (t *Trace) Get(i int) (batch.Container, bool) {
	if i < 0 || i >= len(t.steps) {
		return nil, false
	}
	return t.steps[i], true
}

func (t *Trace) Last() (batch.Container, bool) {
	if len(t.steps) == 0 {
		return nil, false
	}
	return t.steps[len(t.steps)-1], true
}

func (t *Trace) Slice(from, to int) *Trace {
	sliced := NewTrace()
	for i := from; i < to && i < len(t.steps); i++ {
		sliced.Append(t.steps[i])
	}
	return sliced
}

func (t *Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.steps)
}
