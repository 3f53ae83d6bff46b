// Package workerpool runs tasks on a fixed set of goroutines fed by a
// bounded queue. When the queue is full the submitting goroutine runs the
// task itself, so saturation slows callers down instead of dropping work.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Defaults sized for object-store I/O.
const (
	DefaultWorkers   = 8
	DefaultQueueSize = 1024
)

type Pool struct {
	mu     sync.RWMutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup

	inline atomic.Int64
}

// New starts workers goroutines. Non-positive arguments fall back to the
// defaults.
func New(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &Pool{tasks: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for range workers {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Go schedules task. It runs task on the calling goroutine if the queue
// is full or the pool is closed.
func (p *Pool) Go(task func()) {
	p.mu.RLock()
	if !p.closed {
		select {
		case p.tasks <- task:
			p.mu.RUnlock()
			return
		default:
		}
	}
	p.mu.RUnlock()
	p.inline.Add(1)
	task()
}

// InlineRuns reports how many tasks ran on their submitter.
func (p *Pool) InlineRuns() int64 { return p.inline.Load() }

// Close stops accepting queued work and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Future is the pending result of a submitted function.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Submit schedules fn on p and returns its future.
func Submit[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.Go(func() {
		defer close(f.done)
		f.val, f.err = fn()
	})
	return f
}

// Wait blocks until the result is ready or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitAll waits for every future, returning all errors joined. It always
// waits for the full set unless ctx ends.
func WaitAll[T any](ctx context.Context, futures []*Future[T]) error {
	var errs []error
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}
