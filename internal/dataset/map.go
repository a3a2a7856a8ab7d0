package dataset

import (
	"io"
	"sync"
)

type mapDataset struct {
	name string
	ds   Dataset
	fn   func(Example) (Example, error)
}

// Map wraps ds so that every example is passed through fn as it is
// pulled. fn must be pure: it is called concurrently when the mapped
// dataset sits under Parallel.
func Map(ds Dataset, name string, fn func(Example) (Example, error)) Dataset {
	if name == "" {
		name = ds.Name()
	}
	return &mapDataset{name: name, ds: ds, fn: fn}
}

func (d *mapDataset) Name() string { return d.name }

func (d *mapDataset) Next() (Example, error) {
	ex, err := d.ds.Next()
	if err != nil {
		return Example{}, err
	}
	return d.fn(ex)
}

func (d *mapDataset) Reset() error { return d.ds.Reset() }

type takeDataset struct {
	ds Dataset
	n  int

	mu    sync.Mutex
	taken int
}

// Take limits ds to its first n examples per epoch. Reset restores the
// full allowance.
func Take(ds Dataset, n int) Dataset {
	return &takeDataset{ds: ds, n: n}
}

func (d *takeDataset) Name() string { return d.ds.Name() }

func (d *takeDataset) Next() (Example, error) {
	d.mu.Lock()
	if d.taken >= d.n {
		d.mu.Unlock()
		return Example{}, io.EOF
	}
	d.taken++
	d.mu.Unlock()
	return d.ds.Next()
}

func (d *takeDataset) Reset() error {
	d.mu.Lock()
	d.taken = 0
	d.mu.Unlock()
	return d.ds.Reset()
}
