// Package tensor holds the float image representation shared by the
// augmentation pipeline: height × width × channel float32 samples,
// nominally in [0, 1].
package tensor

import (
	"fmt"
	"image"
	"math"
)

// Image is a dense float32 array shaped height × width × channel.
// Samples are stored row-major with the channel axis last, so the
// sample at (y, x, c) lives at data[(y*width+x)*channels+c].
type Image struct {
	height   int
	width    int
	channels int
	data     []float32
}

// New allocates a zero-filled Image with the given dimensions.
func New(height, width, channels int) *Image {
	if height <= 0 || width <= 0 || channels <= 0 {
		return &Image{}
	}
	return &Image{
		height:   height,
		width:    width,
		channels: channels,
		data:     make([]float32, height*width*channels),
	}
}

// FromFloats wraps a flat HWC sample slice into an Image. The slice is
// used directly, not copied.
func FromFloats(height, width, channels int, data []float32) (*Image, error) {
	want := height * width * channels
	if len(data) != want {
		return nil, fmt.Errorf("tensor: %d samples given for %dx%dx%d image, want %d",
			len(data), height, width, channels, want)
	}
	return &Image{height: height, width: width, channels: channels, data: data}, nil
}

// FromNRGBA converts an 8-bit image into a 3-channel float Image with
// samples scaled into [0, 1]. The alpha channel is dropped.
func FromNRGBA(src *image.NRGBA) *Image {
	bounds := src.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	out := New(h, w, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := src.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			base := out.index(y, x, 0)
			out.data[base+0] = float32(px.R) / 255
			out.data[base+1] = float32(px.G) / 255
			out.data[base+2] = float32(px.B) / 255
		}
	}
	return out
}

// Height returns the number of rows.
func (m *Image) Height() int { return m.height }

// Width returns the number of columns.
func (m *Image) Width() int { return m.width }

// Channels returns the number of samples per pixel.
func (m *Image) Channels() int { return m.channels }

// Floats returns the backing sample slice. Mutating it mutates the image.
func (m *Image) Floats() []float32 { return m.data }

func (m *Image) index(y, x, c int) int {
	return (y*m.width+x)*m.channels + c
}

// At returns the sample at (y, x, c). No bounds checking beyond the
// slice's own.
func (m *Image) At(y, x, c int) float32 {
	return m.data[m.index(y, x, c)]
}

// Set stores a sample at (y, x, c).
func (m *Image) Set(y, x, c int, v float32) {
	m.data[m.index(y, x, c)] = v
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	out := &Image{height: m.height, width: m.width, channels: m.channels}
	out.data = make([]float32, len(m.data))
	copy(out.data, m.data)
	return out
}

// Clamp01 clamps every sample into [0, 1] in place and returns the image.
// NaN samples are forced to 0.
func (m *Image) Clamp01() *Image {
	for i, v := range m.data {
		switch {
		case v < 0 || math.IsNaN(float64(v)):
			m.data[i] = 0
		case v > 1:
			m.data[i] = 1
		}
	}
	return m
}

// EqualWithin reports whether both images share a shape and every pair of
// samples differs by at most eps.
func (m *Image) EqualWithin(other *Image, eps float32) bool {
	if other == nil || m.height != other.height || m.width != other.width || m.channels != other.channels {
		return false
	}
	for i, v := range m.data {
		d := v - other.data[i]
		if d < 0 {
			d = -d
		}
		if d > eps {
			return false
		}
	}
	return true
}

// ToNRGBA renders the first three channels into an 8-bit image, clamping
// and scaling samples by 255. Single-channel images are rendered as gray.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, m.width, m.height))
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			var r, g, b float32
			switch {
			case m.channels >= 3:
				base := m.index(y, x, 0)
				r, g, b = m.data[base], m.data[base+1], m.data[base+2]
			case m.channels >= 1:
				v := m.data[m.index(y, x, 0)]
				r, g, b = v, v, v
			}
			pos := y*out.Stride + x*4
			out.Pix[pos+0] = quantize(r)
			out.Pix[pos+1] = quantize(g)
			out.Pix[pos+2] = quantize(b)
			out.Pix[pos+3] = 0xFF
		}
	}
	return out
}

func quantize(v float32) uint8 {
	scaled := math.Round(float64(v) * 255)
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}
