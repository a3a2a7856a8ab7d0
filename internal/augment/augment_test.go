package augment

import (
	"math/rand"
	"testing"

	"github.com/dunamismax/augflow/internal/tensor"
)

func defaultPipeline() *Pipeline {
	return NewPipeline(NewRandomFlip(), NewRandomRotate(), NewColorJitter())
}

func TestPipelineOutputStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pipe := NewPipeline(NewRandomFlip(), NewRandomRotate(), NewColorJitter(), NewRandomZoom())
	for trial := 0; trial < 50; trial++ {
		img := randomImage(rng, 32, 32)
		out := pipe.Apply(img, rng)
		for i, v := range out.Floats() {
			if v < 0 || v > 1 {
				t.Fatalf("trial %d: sample %d = %v outside [0,1]", trial, i, v)
			}
		}
	}
}

func TestPipelineDoesNotMutateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	img := randomImage(rng, 8, 8)
	snapshot := img.Clone()
	defaultPipeline().Apply(img, rng)
	if !img.EqualWithin(snapshot, 0) {
		t.Fatal("pipeline mutated its input image")
	}
}

func TestPipelinePreservesShape(t *testing.T) {
	rng := rand.New(rand.NewSource(44))
	img := randomImage(rng, 32, 32)
	for trial := 0; trial < 20; trial++ {
		out := defaultPipeline().Apply(img, rng)
		if out.Height() != 32 || out.Width() != 32 || out.Channels() != 3 {
			t.Fatalf("output shape %dx%dx%d, want 32x32x3",
				out.Height(), out.Width(), out.Channels())
		}
	}
}

func TestEmptyPipelineClampsAndCopies(t *testing.T) {
	img, _ := tensor.FromFloats(1, 1, 3, []float32{-0.5, 0.5, 1.5})
	rng := rand.New(rand.NewSource(45))
	out := NewPipeline().Apply(img, rng)
	if out == img {
		t.Fatal("empty pipeline returned the input image")
	}
	want, _ := tensor.FromFloats(1, 1, 3, []float32{0, 0.5, 1})
	if !out.EqualWithin(want, 0) {
		t.Fatalf("clamped output = %v, want %v", out.Floats(), want.Floats())
	}
	if img.At(0, 0, 0) != -0.5 {
		t.Fatal("clamp leaked into the input image")
	}
}

// Independent draws should virtually always produce different outputs
// for the same input; identical outputs would mean a transform is
// reusing random parameters across calls.
func TestPipelineResamplesPerCall(t *testing.T) {
	rng := rand.New(rand.NewSource(46))
	// Keep samples away from 0 and 1 so the clamp cannot collapse two
	// different jitter outcomes onto the same saturated value.
	img := tensor.New(16, 16, 3)
	data := img.Floats()
	for i := range data {
		data[i] = 0.25 + rng.Float32()*0.5
	}

	pipe := defaultPipeline()
	for trial := 0; trial < 10; trial++ {
		a := pipe.Apply(img, rng)
		b := pipe.Apply(img, rng)
		if a.EqualWithin(b, 0) {
			t.Fatalf("trial %d: two independent applications produced identical output", trial)
		}
	}
}

func BenchmarkPipelineApply(b *testing.B) {
	rng := rand.New(rand.NewSource(47))
	img := randomImage(rng, 32, 32)
	pipe := NewPipeline(NewRandomFlip(), NewRandomRotate(), NewColorJitter(), NewRandomZoom())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pipe.Apply(img, rng)
	}
}
