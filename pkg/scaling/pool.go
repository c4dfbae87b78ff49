// Package scaling implements the fixed-size worker pools that decouple the
// transport server's I/O concurrency from the storage service's execution
// time.
//
// A pool owns its workers exclusively: they are spawned by Start, pull items
// one at a time from a shared unbounded intake queue, and are joined by
// Shutdown, so no worker outlives its pool. Items are delivered exactly once
// but in no particular order across workers.
package scaling

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blobfront/blobfront/pkg/metrics"
)

// ErrQueueClosed is returned by Submit once shutdown has begun. The item is
// not delivered.
var ErrQueueClosed = errors.New("scaling: queue closed")

// DrainPolicy decides what happens to items still queued when shutdown
// begins.
type DrainPolicy int

const (
	// DrainAll delivers every queued item before workers exit.
	DrainAll DrainPolicy = iota
	// Discard drops queued items; workers finish only their current item.
	Discard
)

// ParseDrainPolicy converts the configuration string form.
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch s {
	case "", "drain":
		return DrainAll, nil
	case "discard":
		return Discard, nil
	default:
		return DrainAll, fmt.Errorf("scaling: unknown drain policy %q", s)
	}
}

// pool is the generic worker pool behind both scaling units.
type pool[T any] struct {
	name    string
	workers int
	drain   DrainPolicy
	deliver func(T)
	// drop is invoked for items discarded at shutdown so their waiters
	// are not left hanging. May be nil.
	drop func(T)
	sink *metrics.HostMetrics

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []T
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func newPool[T any](name string, workers int, drain DrainPolicy, sink *metrics.HostMetrics, deliver, drop func(T)) (*pool[T], error) {
	if workers < 1 {
		return nil, fmt.Errorf("scaling: pool %q needs at least one worker, got %d", name, workers)
	}
	if deliver == nil {
		return nil, fmt.Errorf("scaling: pool %q needs a downstream target", name)
	}
	p := &pool[T]{
		name:    name,
		workers: workers,
		drain:   drain,
		deliver: deliver,
		drop:    drop,
		sink:    sink,
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Start spawns the workers and returns once every worker is confirmed
// running. A pool starts at most once.
func (p *pool[T]) Start() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("scaling: pool %q already shut down", p.name)
	}
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("scaling: pool %q already started", p.name)
	}
	p.started = true
	p.mu.Unlock()

	var ready sync.WaitGroup
	ready.Add(p.workers)
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			ready.Done()
			p.work()
		}()
	}
	ready.Wait()
	return nil
}

// Submit enqueues one item. It never blocks: the intake queue is unbounded.
// Fails with ErrQueueClosed once Shutdown has begun.
func (p *pool[T]) Submit(item T) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sink.ItemRejected(p.name)
		return ErrQueueClosed
	}
	p.queue = append(p.queue, item)
	depth := len(p.queue)
	p.cond.Signal()
	p.mu.Unlock()

	p.sink.ItemAccepted(p.name)
	p.sink.SetQueueDepth(p.name, depth)
	return nil
}

// Shutdown stops accepting submissions, applies the drain policy to queued
// items, signals every worker to exit after its current item, and joins
// them. Idempotent: the second call is a no-op that still waits for the
// first to finish draining.
func (p *pool[T]) Shutdown() error {
	var dropped []T
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		if p.drain == Discard {
			dropped = p.queue
			p.queue = nil
		}
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	if len(dropped) > 0 {
		p.sink.ItemsDropped(p.name, len(dropped))
		if p.drop != nil {
			for _, item := range dropped {
				p.drop(item)
			}
		}
	}

	p.wg.Wait()
	p.sink.SetQueueDepth(p.name, 0)
	return nil
}

// work is one worker's loop: pull, deliver, repeat until the queue is empty
// and the pool is closed.
func (p *pool[T]) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// closed and drained
			p.mu.Unlock()
			return
		}
		item := p.queue[0]
		p.queue = p.queue[1:]
		depth := len(p.queue)
		p.mu.Unlock()

		p.sink.SetQueueDepth(p.name, depth)
		p.deliver(item)
		p.sink.ItemDelivered(p.name)
	}
}
