package dataset

import (
	"errors"
	"io"
	"sync"
)

// ParallelDataset pulls from a wrapped dataset with a pool of worker
// goroutines, buffering ready examples in a channel. Ordering between
// examples is not preserved; every example of the wrapped dataset is
// still delivered exactly once per epoch.
//
// The wrapped dataset must be safe for concurrent Next calls, which
// holds for every dataset in this package.
type ParallelDataset struct {
	ds      Dataset
	workers int
	buffer  int

	mu     sync.Mutex
	epoch  *parallelEpoch
	closed bool
}

type parallelEpoch struct {
	out  chan Example
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
	errOnce  sync.Once
	err      error
}

// Parallel wraps ds with the given number of pull workers and a ready
// buffer of the given capacity. Workers start lazily on the first Next
// call of each epoch. workers and buffer are clamped to at least 1.
func Parallel(ds Dataset, workers, buffer int) *ParallelDataset {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	return &ParallelDataset{ds: ds, workers: workers, buffer: buffer}
}

func (p *ParallelDataset) Name() string { return p.ds.Name() }

// Next returns a ready example from any worker. When all workers have
// drained the wrapped dataset, Next hands out whatever is left in the
// buffer and then returns io.EOF, or the first non-EOF error a worker
// hit.
func (p *ParallelDataset) Next() (Example, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Example{}, errors.New("dataset: parallel dataset is closed")
	}
	if p.epoch == nil {
		p.epoch = p.startEpoch()
	}
	e := p.epoch
	p.mu.Unlock()

	select {
	case ex := <-e.out:
		return ex, nil
	case <-e.done:
		// Workers are gone; the buffer may still hold examples.
		select {
		case ex := <-e.out:
			return ex, nil
		default:
		}
		if e.err != nil {
			return Example{}, e.err
		}
		return Example{}, io.EOF
	}
}

// Reset aborts any in-flight workers, rewinds the wrapped dataset, and
// arms a fresh epoch.
func (p *ParallelDataset) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epoch != nil {
		p.epoch.abort()
		p.epoch = nil
	}
	return p.ds.Reset()
}

// Close stops the worker pool for good. Next returns an error after
// Close; Reset will not restart the pool.
func (p *ParallelDataset) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.epoch != nil {
		p.epoch.abort()
		p.epoch = nil
	}
	return nil
}

func (p *ParallelDataset) startEpoch() *parallelEpoch {
	e := &parallelEpoch{
		out:  make(chan Example, p.buffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			for {
				ex, err := p.ds.Next()
				if err != nil {
					if !errors.Is(err, io.EOF) {
						e.fail(err)
					}
					return
				}
				select {
				case e.out <- ex:
				case <-e.stop:
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(e.done)
	}()
	return e
}

// fail records the first worker error and tells the other workers to
// stand down.
func (e *parallelEpoch) fail(err error) {
	e.errOnce.Do(func() { e.err = err })
	e.stopOnce.Do(func() { close(e.stop) })
}

// abort unblocks all workers and waits for them to exit, so the caller
// can safely reset the wrapped dataset.
func (e *parallelEpoch) abort() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}
