package dataset

import (
	"math/rand"

	"github.com/dunamismax/augflow/internal/augment"
)

// Augment wraps ds so every example's image is passed through pipe.
// Each example gets its own generator seeded from the base seed and
// the example's index, so the output for a given (seed, index) pair is
// identical no matter how many workers pull the dataset or in what
// order. Reset does not advance the seed; re-reading the epoch
// reproduces the same augmentations.
func Augment(ds Dataset, pipe *augment.Pipeline, seed int64) Dataset {
	return Map(ds, ds.Name()+" (augmented)", func(ex Example) (Example, error) {
		rng := rand.New(rand.NewSource(mixSeed(seed, ex.Index)))
		ex.Image = pipe.Apply(ex.Image, rng)
		return ex, nil
	})
}

// mixSeed spreads (seed, index) pairs across the full 64-bit range
// using the splitmix64 finalizer, so neighboring indices do not
// produce correlated generator states.
func mixSeed(seed int64, index int) int64 {
	z := uint64(seed) + uint64(index+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
