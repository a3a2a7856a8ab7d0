// Package cifar reads and writes image shards in the CIFAR-10 binary
// layout: records of one label byte followed by 3072 pixel bytes in
// channel-planar order (1024 red, 1024 green, 1024 blue), each plane a
// row-major 32x32 grid. Pixel bytes map to float samples by dividing
// by 255.
package cifar

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dunamismax/augflow/internal/dataset"
	"github.com/dunamismax/augflow/internal/tensor"
)

const (
	// Width and Height are the fixed shard image resolution.
	Width  = 32
	Height = 32
	// Channels is the number of color planes per record.
	Channels = 3

	pixelBytes = Width * Height * Channels
	recordSize = 1 + pixelBytes
)

// ErrTruncated reports a shard whose byte length is not a whole number
// of records.
var ErrTruncated = errors.New("cifar: truncated record")

// classNames are the ten CIFAR-10 categories in label order.
var classNames = [...]string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}

// ClassName returns the human-readable name for a label, or the label
// number itself for values outside the standard ten classes.
func ClassName(label int) string {
	if label >= 0 && label < len(classNames) {
		return classNames[label]
	}
	return fmt.Sprintf("class %d", label)
}

// ReadShard decodes every record from r. Examples are indexed by their
// record position. A shard ending mid-record returns the examples read
// so far alongside an ErrTruncated error.
func ReadShard(r io.Reader) ([]dataset.Example, error) {
	var examples []dataset.Example
	buf := make([]byte, recordSize)
	for index := 0; ; index++ {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return examples, nil
		}
		if err == io.ErrUnexpectedEOF {
			return examples, fmt.Errorf("%w: record %d cut short", ErrTruncated, index)
		}
		if err != nil {
			return examples, fmt.Errorf("read record %d: %w", index, err)
		}
		examples = append(examples, dataset.Example{
			Index: index,
			Label: int(buf[0]),
			Image: decodePixels(buf[1:]),
		})
	}
}

func decodePixels(pix []byte) *tensor.Image {
	img := tensor.New(Height, Width, Channels)
	for c := 0; c < Channels; c++ {
		plane := pix[c*Width*Height:]
		for y := 0; y < Height; y++ {
			for x := 0; x < Width; x++ {
				img.Set(y, x, c, float32(plane[y*Width+x])/255)
			}
		}
	}
	return img
}

// WriteShard encodes examples to w in record order. Every image must
// be exactly 32x32x3 and every label must fit in a byte; float samples
// are clamped into [0, 1] and quantized to 255 levels.
func WriteShard(w io.Writer, examples []dataset.Example) error {
	buf := make([]byte, recordSize)
	for i, ex := range examples {
		if ex.Label < 0 || ex.Label > math.MaxUint8 {
			return fmt.Errorf("cifar: record %d label %d does not fit in a byte", i, ex.Label)
		}
		img := ex.Image
		if img == nil || img.Height() != Height || img.Width() != Width || img.Channels() != Channels {
			return fmt.Errorf("cifar: record %d image is not %dx%dx%d", i, Height, Width, Channels)
		}
		buf[0] = byte(ex.Label)
		encodePixels(buf[1:], img)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return nil
}

func encodePixels(pix []byte, img *tensor.Image) {
	for c := 0; c < Channels; c++ {
		plane := pix[c*Width*Height:]
		for y := 0; y < Height; y++ {
			for x := 0; x < Width; x++ {
				plane[y*Width+x] = quantizeByte(img.At(y, x, c))
			}
		}
	}
}

func quantizeByte(v float32) byte {
	scaled := math.Round(float64(v) * 255)
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return byte(scaled)
}
