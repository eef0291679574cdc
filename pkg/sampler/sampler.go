// Package sampler provides batching strategies over dataset splits.
package sampler

import (
	"fmt"
	"io"
	"math/rand" // shuffling order only

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// Batched yields consecutive batches of indices over a dataset split.
type Batched struct {
	ds        component.DatasetHandle
	batchSize int
	dropLast  bool
	order     []int
	pos       int
	shuffle   *rand.Rand
}

// Sequential walks the dataset in order.
//
// kwargs: drop_last (bool) skips a trailing partial batch.
var Sequential component.SamplerFactory = component.SamplerFunc(
	func(ds component.DatasetHandle, batchSize int, _ recipe.Args, kwargs recipe.Kwargs) (component.Sampler, error) {
		return newBatched(ds, batchSize, kwargs, nil)
	},
)

// Shuffle draws a fresh permutation on every Reset.
//
// kwargs: seed (int), drop_last (bool).
var Shuffle component.SamplerFactory = component.SamplerFunc(
	func(ds component.DatasetHandle, batchSize int, _ recipe.Args, kwargs recipe.Kwargs) (component.Sampler, error) {
		seed := int64(kwargs.Int("seed", 0))
		return newBatched(ds, batchSize, kwargs, rand.New(rand.NewSource(seed))) //nolint:gosec // not security sensitive
	},
)

func newBatched(ds component.DatasetHandle, batchSize int, kwargs recipe.Kwargs, rng *rand.Rand) (*Batched, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	dropLast, _ := kwargs["drop_last"].(bool)
	s := &Batched{
		ds:        ds,
		batchSize: batchSize,
		dropLast:  dropLast,
		order:     make([]int, ds.Len()),
		shuffle:   rng,
	}
	for i := range s.order {
		s.order[i] = i
	}
	s.Reset()
	return s, nil
}

func (s *Batched) Reset() {
	s.pos = 0
	if s.shuffle != nil {
		s.shuffle.Shuffle(len(s.order), func(i, j int) { s.order[i], s.order[j] = s.order[j], s.order[i] })
	}
}

func (s *Batched) Next() (component.Batch, error) {
	remaining := len(s.order) - s.pos
	if remaining <= 0 || (s.dropLast && remaining < s.batchSize) {
		return nil, io.EOF
	}
	end := min(s.pos+s.batchSize, len(s.order))
	indices := s.order[s.pos:end]
	s.pos = end
	return s.ds.Batch(indices)
}

// Len returns the number of batches per pass.
func (s *Batched) Len() int {
	n := len(s.order) / s.batchSize
	if !s.dropLast && len(s.order)%s.batchSize != 0 {
		n++
	}
	return n
}
