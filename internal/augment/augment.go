// Package augment implements the randomized image transforms applied by
// augmentation jobs: flips, quarter rotations, color jitter, and zoom,
// composed into an ordered pipeline with a final range clamp.
//
// Transforms never mutate their input. Randomized transforms draw from
// the *rand.Rand they are handed, fresh on every call, so two calls on
// the same image are expected to differ and a caller that seeds the
// generator gets reproducible output.
package augment

import (
	"math/rand"

	"github.com/dunamismax/augflow/internal/tensor"
)

// Transform maps one image to a new one. Implementations must not
// mutate the input and must re-draw any random parameters on every
// Apply call.
type Transform interface {
	// Name identifies the transform in job specs and logs.
	Name() string
	// Apply returns the transformed image as a fresh allocation.
	Apply(img *tensor.Image, rng *rand.Rand) *tensor.Image
}

// Pipeline applies an ordered sequence of transforms and then clamps
// every sample of the result into [0, 1].
type Pipeline struct {
	transforms []Transform
}

// NewPipeline builds a pipeline over the given transforms, applied in
// argument order.
func NewPipeline(transforms ...Transform) *Pipeline {
	return &Pipeline{transforms: transforms}
}

// Transforms returns the pipeline's transforms in application order.
func (p *Pipeline) Transforms() []Transform { return p.transforms }

// Apply folds every transform over img left to right and clamps the
// result. The input image is never mutated, even by the clamp.
func (p *Pipeline) Apply(img *tensor.Image, rng *rand.Rand) *tensor.Image {
	out := img
	for _, t := range p.transforms {
		out = t.Apply(out, rng)
	}
	if out == img {
		out = img.Clone()
	}
	return out.Clamp01()
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
