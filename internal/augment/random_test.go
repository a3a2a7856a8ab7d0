package augment

import (
	"math/rand"
	"testing"

	"github.com/dunamismax/augflow/internal/tensor"
)

func TestRandomFlipForcedAxes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	img := fixture22(t)

	both := &RandomFlip{HorizontalProb: 1, VerticalProb: 1}
	got := both.Apply(img, rng)
	want := FlipTopBottom(FlipLeftRight(img))
	if !got.EqualWithin(want, 0) {
		t.Fatalf("forced double flip = %v, want %v", got.Floats(), want.Floats())
	}

	horizontal := &RandomFlip{HorizontalProb: 1, VerticalProb: 0}
	if got := horizontal.Apply(img, rng); !got.EqualWithin(FlipLeftRight(img), 0) {
		t.Fatal("forced horizontal flip did not mirror left-right")
	}

	neither := &RandomFlip{}
	got = neither.Apply(img, rng)
	if !got.EqualWithin(img, 0) {
		t.Fatal("zero-probability flip changed the image")
	}
	if got == img {
		t.Fatal("zero-probability flip returned the input instead of a copy")
	}
}

func TestRandomFlipCoversAllOutcomes(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	img := fixture22(t)
	flip := NewRandomFlip()

	variants := []*tensor.Image{
		img,
		FlipLeftRight(img),
		FlipTopBottom(img),
		FlipTopBottom(FlipLeftRight(img)),
	}
	seen := make([]bool, len(variants))
	for i := 0; i < 200; i++ {
		got := flip.Apply(img, rng)
		matched := false
		for v, variant := range variants {
			if got.EqualWithin(variant, 0) {
				seen[v] = true
				matched = true
				break
			}
		}
		if !matched {
			t.Fatalf("flip produced an image matching no axis combination: %v", got.Floats())
		}
	}
	for v, ok := range seen {
		if !ok {
			t.Fatalf("variant %d never produced in 200 draws", v)
		}
	}
}

func TestRandomRotateDrawsAllTurnCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	img := fixture22(t)
	rotate := NewRandomRotate()

	variants := []*tensor.Image{
		Rotate90(img, 0),
		Rotate90(img, 1),
		Rotate90(img, 2),
		Rotate90(img, 3),
	}
	seen := make([]bool, len(variants))
	for i := 0; i < 200; i++ {
		got := rotate.Apply(img, rng)
		matched := false
		for v, variant := range variants {
			if got.EqualWithin(variant, 0) {
				seen[v] = true
				matched = true
				break
			}
		}
		if !matched {
			t.Fatalf("rotate produced an image matching no turn count: %v", got.Floats())
		}
	}
	for k, ok := range seen {
		if !ok {
			t.Fatalf("turn count %d never drawn in 200 applications", k)
		}
	}
}

func TestColorJitterDegenerateRangesAreIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	img := randomImage(rng, 4, 4)
	jitter := &ColorJitter{
		HueDelta:        0,
		SaturationLow:   1,
		SaturationHigh:  1,
		BrightnessDelta: 0,
		ContrastLow:     1,
		ContrastHigh:    1,
	}
	got := jitter.Apply(img, rng)
	if !got.EqualWithin(img, 1e-5) {
		t.Fatal("jitter with collapsed ranges changed the image")
	}
}

func TestColorJitterDrawsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	jitter := NewColorJitter()
	for i := 0; i < 100; i++ {
		if d := uniform(rng, -jitter.HueDelta, jitter.HueDelta); d < -0.08 || d > 0.08 {
			t.Fatalf("hue delta %v outside [-0.08, 0.08]", d)
		}
		if f := uniform(rng, jitter.SaturationLow, jitter.SaturationHigh); f < 0.6 || f > 1.6 {
			t.Fatalf("saturation factor %v outside [0.6, 1.6]", f)
		}
		if d := uniform(rng, -jitter.BrightnessDelta, jitter.BrightnessDelta); d < -0.05 || d > 0.05 {
			t.Fatalf("brightness delta %v outside [-0.05, 0.05]", d)
		}
		if f := uniform(rng, jitter.ContrastLow, jitter.ContrastHigh); f < 0.7 || f > 1.3 {
			t.Fatalf("contrast factor %v outside [0.7, 1.3]", f)
		}
	}
}

func TestRandomZoomDefaultBoxes(t *testing.T) {
	zoom := NewRandomZoom()
	boxes := zoom.Boxes()
	if len(boxes) != 20 {
		t.Fatalf("default zoom has %d boxes, want 20 (scales 0.80..0.99)", len(boxes))
	}
	for i, box := range boxes {
		scale := 0.80 + 0.01*float64(i)
		wantLo := 0.5 - 0.5*scale
		wantHi := 0.5 + 0.5*scale
		if !close64(box.X1, wantLo) || !close64(box.Y1, wantLo) ||
			!close64(box.X2, wantHi) || !close64(box.Y2, wantHi) {
			t.Fatalf("box %d = %+v, want centered box for scale %v", i, box, scale)
		}
	}
}

func TestRandomZoomSkipAndForce(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	img := randomImage(rng, 32, 32)

	skip := NewRandomZoomScales(DefaultZoomMinScale, DefaultZoomMaxScale, DefaultZoomStep, 1)
	got := skip.Apply(img, rng)
	if !got.EqualWithin(img, 0) {
		t.Fatal("zoom with skip probability 1 changed the image")
	}
	if got == img {
		t.Fatal("skipped zoom returned the input instead of a copy")
	}

	force := NewRandomZoomScales(0.5, 0.5, 0.01, 0)
	got = force.Apply(img, rng)
	want := CropAndResize(img, CenteredBox(0.5), 32, 32)
	if !got.EqualWithin(want, 0) {
		t.Fatal("forced single-scale zoom did not match the direct crop")
	}
	if got.Height() != 32 || got.Width() != 32 {
		t.Fatalf("zoom output shape %dx%d, want 32x32", got.Height(), got.Width())
	}
}
