package env

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/tensor"
)

// Sampler draws random values for the leaves of a spec, typically to fill
// action entries during a rollout.
type Sampler struct {
	spec *Spec
	src  rand.Source
	rng  *rand.Rand
}

// NewSampler returns a sampler over the spec's leaves seeded with seed.
func NewSampler(spec *Spec, seed uint64) *Sampler {
	src := rand.NewSource(seed)
	return &Sampler{
		spec: spec,
		src:  src,
		rng:  rand.New(src),
	}
}

// Sample writes one drawn value per spec leaf into dst.
func (s *Sampler) Sample(dst batch.Container) error {
	if !s.spec.IsComposite() {
		return fmt.Errorf("env: sampling needs a composite spec")
	}
	for _, path := range s.spec.LeafPaths() {
		leaf, ok := s.spec.Get(path)
		if !ok {
			return fmt.Errorf("env: spec leaf %q vanished", path.String())
		}
		if err := dst.Set(path, batch.Leaf(s.sampleLeaf(leaf, dst.Device()))); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sampler) sampleLeaf(sp *Spec, device string) *tensor.Dense {
	n := 1
	for _, d := range sp.shape {
		n *= d
	}
	switch sp.dtype {
	case tensor.Float64:
		u := distuv.Uniform{Min: sp.low, Max: sp.high, Src: s.src}
		data := make([]float64, n)
		for i := range data {
			data[i] = u.Rand()
		}
		return tensor.FromFloat64s(data, sp.shape).To(device)
	case tensor.Int64:
		data := make([]int64, n)
		if sp.n <= 0 {
			for i := range data {
				data[i] = s.rng.Int63()
			}
			return tensor.FromInt64s(data, sp.shape).To(device)
		}
		weights := make([]float64, sp.n)
		for i := range weights {
			weights[i] = 1
		}
		for i := range data {
			idx, ok := sampleuv.NewWeighted(weights, s.src).Take()
			if !ok {
				idx = 0
			}
			data[i] = int64(idx)
		}
		return tensor.FromInt64s(data, sp.shape).To(device)
	case tensor.Bool:
		bern := distuv.Bernoulli{P: 0.5, Src: s.src}
		data := make([]bool, n)
		for i := range data {
			data[i] = bern.Rand() == 1
		}
		return tensor.FromBools(data, sp.shape).To(device)
	}
	return tensor.ZerosOn(device, sp.dtype, sp.shape)
}
