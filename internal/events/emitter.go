// Package events carries engine events to their consumers in the order the
// underlying state actually changed.
package events

import "sync"

// Emitter delivers values to a single consumer in emission order, never
// dropping and never blocking the producer. The backlog is unbounded; the
// consumer is expected to keep up over time.
type Emitter[T any] struct {
	mu     sync.Mutex
	queue  []T
	wake   chan struct{}
	out    chan T
	closed bool
}

// NewEmitter creates an emitter and starts its delivery loop.
func NewEmitter[T any]() *Emitter[T] {
	e := &Emitter[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go e.deliver()
	return e
}

// Emit enqueues a value for delivery. Calling Emit after Close is a no-op.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, v)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Events returns the delivery channel. It is closed after Close once the
// backlog has drained.
func (e *Emitter[T]) Events() <-chan T {
	return e.out
}

// Close stops the emitter after the remaining backlog is delivered.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Emitter[T]) deliver() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			if e.closed {
				e.mu.Unlock()
				close(e.out)
				return
			}
			e.mu.Unlock()
			<-e.wake
			continue
		}
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.out <- next
	}
}
