package augment

import (
	"math"

	"github.com/dunamismax/augflow/internal/tensor"
)

// FlipLeftRight mirrors the image across its vertical axis.
func FlipLeftRight(img *tensor.Image) *tensor.Image {
	h, w, ch := img.Height(), img.Width(), img.Channels()
	out := tensor.New(h, w, ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				out.Set(y, w-1-x, c, img.At(y, x, c))
			}
		}
	}
	return out
}

// FlipTopBottom mirrors the image across its horizontal axis.
func FlipTopBottom(img *tensor.Image) *tensor.Image {
	h, w, ch := img.Height(), img.Width(), img.Channels()
	out := tensor.New(h, w, ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				out.Set(h-1-y, x, c, img.At(y, x, c))
			}
		}
	}
	return out
}

// Rotate90 rotates the image counter-clockwise by k quarter turns.
// k is taken modulo 4; k=0 returns an unrotated copy. Non-square
// images swap height and width on odd k.
func Rotate90(img *tensor.Image, k int) *tensor.Image {
	k = ((k % 4) + 4) % 4
	h, w, ch := img.Height(), img.Width(), img.Channels()
	var out *tensor.Image
	switch k {
	case 0:
		return img.Clone()
	case 1:
		out = tensor.New(w, h, ch)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for c := 0; c < ch; c++ {
					out.Set(w-1-x, y, c, img.At(y, x, c))
				}
			}
		}
	case 2:
		out = tensor.New(h, w, ch)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for c := 0; c < ch; c++ {
					out.Set(h-1-y, w-1-x, c, img.At(y, x, c))
				}
			}
		}
	case 3:
		out = tensor.New(w, h, ch)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for c := 0; c < ch; c++ {
					out.Set(x, h-1-y, c, img.At(y, x, c))
				}
			}
		}
	}
	return out
}

// Box is a crop region in normalized image coordinates, where (0,0) is
// the top-left corner and (1,1) the bottom-right.
type Box struct {
	Y1, X1, Y2, X2 float64
}

// CenteredBox returns the square box of the given side scale centered
// on the image: all four edges sit at 0.5 ± scale/2.
func CenteredBox(scale float64) Box {
	lo := 0.5 - 0.5*scale
	hi := 0.5 + 0.5*scale
	return Box{Y1: lo, X1: lo, Y2: hi, X2: hi}
}

// CropAndResize samples the normalized box out of img and scales it to
// outHeight × outWidth with bilinear interpolation. Box corners map
// onto pixel centers, so Box{0,0,1,1} resampled at the source size
// reproduces the source exactly. Samples taken outside the image are 0.
func CropAndResize(img *tensor.Image, box Box, outHeight, outWidth int) *tensor.Image {
	h, w, ch := img.Height(), img.Width(), img.Channels()
	out := tensor.New(outHeight, outWidth, ch)
	if h == 0 || w == 0 {
		return out
	}
	for y := 0; y < outHeight; y++ {
		inY := cropCoord(box.Y1, box.Y2, y, outHeight, h)
		for x := 0; x < outWidth; x++ {
			inX := cropCoord(box.X1, box.X2, x, outWidth, w)
			for c := 0; c < ch; c++ {
				out.Set(y, x, c, sampleBilinear(img, inY, inX, c))
			}
		}
	}
	return out
}

// cropCoord maps output index i of n samples onto the source axis of
// size in pixels, stretching [lo, hi] across the output so that the
// first and last samples land exactly on the box edges.
func cropCoord(lo, hi float64, i, n, size int) float64 {
	if n > 1 {
		scale := (hi - lo) * float64(size-1) / float64(n-1)
		return lo*float64(size-1) + float64(i)*scale
	}
	return 0.5 * (lo + hi) * float64(size-1)
}

func sampleBilinear(img *tensor.Image, y, x float64, c int) float32 {
	h, w := img.Height(), img.Width()
	if y < 0 || y > float64(h-1) || x < 0 || x > float64(w-1) {
		return 0
	}
	top := int(math.Floor(y))
	bottom := int(math.Ceil(y))
	left := int(math.Floor(x))
	right := int(math.Ceil(x))
	yLerp := float32(y - float64(top))
	xLerp := float32(x - float64(left))

	tl := img.At(top, left, c)
	tr := img.At(top, right, c)
	bl := img.At(bottom, left, c)
	br := img.At(bottom, right, c)
	upper := tl + (tr-tl)*xLerp
	lower := bl + (br-bl)*xLerp
	return upper + (lower-upper)*yLerp
}
