package augment

import (
	"math/rand"

	"github.com/dunamismax/augflow/internal/tensor"
)

// Default jitter and zoom parameters, matching the ranges the service
// advertises for its stock transforms.
const (
	DefaultHueDelta        = 0.08
	DefaultSaturationLow   = 0.6
	DefaultSaturationHigh  = 1.6
	DefaultBrightnessDelta = 0.05
	DefaultContrastLow     = 0.7
	DefaultContrastHigh    = 1.3

	DefaultZoomMinScale = 0.80
	DefaultZoomMaxScale = 0.99
	DefaultZoomStep     = 0.01
	DefaultZoomSkipProb = 0.5
)

// RandomFlip mirrors the image left-right and then top-bottom, each
// independently with its own probability.
type RandomFlip struct {
	// HorizontalProb is the chance of a left-right mirror.
	HorizontalProb float64
	// VerticalProb is the chance of a top-bottom mirror.
	VerticalProb float64
}

// NewRandomFlip returns a flip transform with both axes at probability 0.5.
func NewRandomFlip() *RandomFlip {
	return &RandomFlip{HorizontalProb: 0.5, VerticalProb: 0.5}
}

func (t *RandomFlip) Name() string { return "flip" }

func (t *RandomFlip) Apply(img *tensor.Image, rng *rand.Rand) *tensor.Image {
	out := img
	if rng.Float64() < t.HorizontalProb {
		out = FlipLeftRight(out)
	}
	if rng.Float64() < t.VerticalProb {
		out = FlipTopBottom(out)
	}
	if out == img {
		out = img.Clone()
	}
	return out
}

// RandomRotate rotates by a quarter-turn count drawn uniformly from
// {0, 1, 2, 3}.
type RandomRotate struct{}

// NewRandomRotate returns a uniform quarter-turn rotation transform.
func NewRandomRotate() *RandomRotate { return &RandomRotate{} }

func (t *RandomRotate) Name() string { return "rotate" }

func (t *RandomRotate) Apply(img *tensor.Image, rng *rand.Rand) *tensor.Image {
	return Rotate90(img, rng.Intn(4))
}

// ColorJitter perturbs hue, saturation, brightness, and contrast in
// that order, each parameter drawn uniformly and independently from its
// range on every call.
type ColorJitter struct {
	// HueDelta bounds the hue shift to [-HueDelta, HueDelta].
	HueDelta float64
	// SaturationLow and SaturationHigh bound the saturation scale.
	SaturationLow  float64
	SaturationHigh float64
	// BrightnessDelta bounds the brightness offset to
	// [-BrightnessDelta, BrightnessDelta].
	BrightnessDelta float64
	// ContrastLow and ContrastHigh bound the contrast scale.
	ContrastLow  float64
	ContrastHigh float64
}

// NewColorJitter returns a jitter transform with the default ranges.
func NewColorJitter() *ColorJitter {
	return &ColorJitter{
		HueDelta:        DefaultHueDelta,
		SaturationLow:   DefaultSaturationLow,
		SaturationHigh:  DefaultSaturationHigh,
		BrightnessDelta: DefaultBrightnessDelta,
		ContrastLow:     DefaultContrastLow,
		ContrastHigh:    DefaultContrastHigh,
	}
}

func (t *ColorJitter) Name() string { return "color_jitter" }

func (t *ColorJitter) Apply(img *tensor.Image, rng *rand.Rand) *tensor.Image {
	out := AdjustHue(img, uniform(rng, -t.HueDelta, t.HueDelta))
	out = AdjustSaturation(out, uniform(rng, t.SaturationLow, t.SaturationHigh))
	out = AdjustBrightness(out, uniform(rng, -t.BrightnessDelta, t.BrightnessDelta))
	return AdjustContrast(out, uniform(rng, t.ContrastLow, t.ContrastHigh))
}

// RandomZoom crops a centered square at a randomly chosen scale and
// resizes it back to the source resolution with bilinear interpolation.
// With SkipProb the image passes through unchanged.
type RandomZoom struct {
	// SkipProb is the chance of leaving the image unzoomed.
	SkipProb float64
	boxes    []Box
}

// NewRandomZoom returns a zoom transform over centered crops at scales
// 0.80 through 0.99 in steps of 0.01, skipped half the time.
func NewRandomZoom() *RandomZoom {
	return NewRandomZoomScales(DefaultZoomMinScale, DefaultZoomMaxScale, DefaultZoomStep, DefaultZoomSkipProb)
}

// NewRandomZoomScales builds the crop box set for scales from min to
// max inclusive in the given step.
func NewRandomZoomScales(min, max, step, skipProb float64) *RandomZoom {
	var boxes []Box
	for i := 0; ; i++ {
		scale := min + float64(i)*step
		if scale > max+step/2 {
			break
		}
		boxes = append(boxes, CenteredBox(scale))
	}
	return &RandomZoom{SkipProb: skipProb, boxes: boxes}
}

// Boxes returns the candidate crop boxes in ascending scale order.
func (t *RandomZoom) Boxes() []Box { return t.boxes }

func (t *RandomZoom) Name() string { return "zoom" }

func (t *RandomZoom) Apply(img *tensor.Image, rng *rand.Rand) *tensor.Image {
	if len(t.boxes) == 0 || rng.Float64() < t.SkipProb {
		return img.Clone()
	}
	box := t.boxes[rng.Intn(len(t.boxes))]
	return CropAndResize(img, box, img.Height(), img.Width())
}
