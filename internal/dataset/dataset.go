// Package dataset provides a lazy, pull-based pipeline over labeled
// images. A Dataset yields one example per Next call until io.EOF;
// wrappers such as Map, Augment, and Parallel compose over any Dataset
// without materializing the sequence.
package dataset

import (
	"io"
	"sync"

	"github.com/dunamismax/augflow/internal/tensor"
)

// Example is one element of a dataset: an image plus its class label
// and its position in the originating source. Index is stable across
// transformations, so downstream consumers can re-order parallel
// output or tie an augmented image back to its source.
type Example struct {
	Index int
	Label int
	Image *tensor.Image
}

// Dataset is a restartable sequence of examples. Next returns io.EOF
// once the sequence is exhausted and keeps returning it until Reset.
//
// Implementations in this package are safe for concurrent Next calls,
// which is what allows Parallel to fan out over any of them.
type Dataset interface {
	// Name identifies the dataset in logs.
	Name() string
	// Next returns the next example, io.EOF at the end of the
	// sequence, or the first underlying error.
	Next() (Example, error)
	// Reset rewinds the dataset so the sequence can be read again.
	Reset() error
}

type sliceDataset struct {
	name     string
	examples []Example

	mu   sync.Mutex
	next int
}

// FromExamples builds an in-memory dataset over the given examples,
// yielded in slice order. The slice is not copied.
func FromExamples(name string, examples []Example) Dataset {
	return &sliceDataset{name: name, examples: examples}
}

func (d *sliceDataset) Name() string { return d.name }

func (d *sliceDataset) Next() (Example, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.examples) {
		return Example{}, io.EOF
	}
	ex := d.examples[d.next]
	d.next++
	return ex, nil
}

func (d *sliceDataset) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next = 0
	return nil
}

// Collect drains ds into a slice. A nil error means the dataset ended
// with io.EOF; any other error aborts the drain and is returned
// alongside the examples read so far.
func Collect(ds Dataset) ([]Example, error) {
	var out []Example
	for {
		ex, err := ds.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ex)
	}
}
