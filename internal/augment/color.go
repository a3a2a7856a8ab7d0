package augment

import (
	"math"

	"github.com/dunamismax/augflow/internal/tensor"
)

// AdjustBrightness adds delta to every sample. The result is not
// clamped; the pipeline's final clamp handles overflow.
func AdjustBrightness(img *tensor.Image, delta float64) *tensor.Image {
	out := img.Clone()
	d := float32(delta)
	data := out.Floats()
	for i := range data {
		data[i] += d
	}
	return out
}

// AdjustContrast scales each channel's spread around its own spatial
// mean: out = (in - mean) * factor + mean, where mean is taken per
// channel over all pixels.
func AdjustContrast(img *tensor.Image, factor float64) *tensor.Image {
	h, w, ch := img.Height(), img.Width(), img.Channels()
	out := img.Clone()
	n := h * w
	if n == 0 {
		return out
	}
	f := float32(factor)
	for c := 0; c < ch; c++ {
		var sum float64
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sum += float64(img.At(y, x, c))
			}
		}
		mean := float32(sum / float64(n))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(y, x, c, (img.At(y, x, c)-mean)*f+mean)
			}
		}
	}
	return out
}

// AdjustSaturation scales saturation in HSV space by factor, clamping
// the scaled saturation into [0, 1]. Only the first three channels are
// touched; images with fewer channels are returned unchanged.
func AdjustSaturation(img *tensor.Image, factor float64) *tensor.Image {
	out := img.Clone()
	if img.Channels() < 3 {
		return out
	}
	mapHSV(out, func(h, s, v float64) (float64, float64, float64) {
		s *= factor
		if s < 0 {
			s = 0
		} else if s > 1 {
			s = 1
		}
		return h, s, v
	})
	return out
}

// AdjustHue rotates hue in HSV space by delta, where a full hue cycle
// is 1.0; the shifted hue wraps around. Only the first three channels
// are touched; images with fewer channels are returned unchanged.
func AdjustHue(img *tensor.Image, delta float64) *tensor.Image {
	out := img.Clone()
	if img.Channels() < 3 {
		return out
	}
	mapHSV(out, func(h, s, v float64) (float64, float64, float64) {
		h += delta
		h -= math.Floor(h)
		return h, s, v
	})
	return out
}

// mapHSV rewrites the first three channels of every pixel through f in
// HSV space. Channels beyond the third pass through untouched.
func mapHSV(img *tensor.Image, f func(h, s, v float64) (float64, float64, float64)) {
	height, width := img.Height(), img.Width()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := float64(img.At(y, x, 0))
			g := float64(img.At(y, x, 1))
			b := float64(img.At(y, x, 2))
			h, s, v := rgbToHSV(r, g, b)
			h, s, v = f(h, s, v)
			r, g, b = hsvToRGB(h, s, v)
			img.Set(y, x, 0, float32(r))
			img.Set(y, x, 1, float32(g))
			img.Set(y, x, 2, float32(b))
		}
	}
}

// rgbToHSV converts [0,1] RGB samples into hue, saturation, and value,
// each in [0,1]. Gray pixels report hue 0.
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	v = maxC
	spread := maxC - minC
	if spread == 0 {
		return 0, 0, v
	}
	if maxC > 0 {
		s = spread / maxC
	}
	switch maxC {
	case r:
		h = (g - b) / spread
	case g:
		h = 2 + (b-r)/spread
	default:
		h = 4 + (r-g)/spread
	}
	h /= 6
	h -= math.Floor(h)
	return h, s, v
}

// hsvToRGB is the inverse of rgbToHSV for in-range inputs.
func hsvToRGB(h, s, v float64) (r, g, b float64) {
	if s == 0 {
		return v, v, v
	}
	h -= math.Floor(h)
	sector := h * 6
	i := int(sector) % 6
	f := sector - math.Floor(sector)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch i {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
