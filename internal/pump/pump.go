// Package pump bridges display client libraries that read their socket on
// a goroutine of their own into a poll(2) driven loop.
//
// A reader goroutine pushes decoded values into a FIFO. The transition from
// empty to non-empty makes a descriptor readable, and the loop pops values
// without blocking until the FIFO is empty again.
package pump

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-displayloop/internal/wakefd"
)

// ErrClosed is returned by Pop once the pump has been closed.
var ErrClosed = errors.New("pump: closed")

// Pump is a goroutine-fed FIFO with a pollable readiness descriptor. Push,
// Fail and Close are safe for concurrent use; Pop is meant for the single
// consuming goroutine.
type Pump[T any] struct {
	items  *queue.Queue
	err    error
	fd     *wakefd.FD
	mu     sync.Mutex
	closed bool
}

// New allocates the FIFO and its descriptor.
func New[T any]() (*Pump[T], error) {
	fd, err := wakefd.New()
	if err != nil {
		return nil, err
	}
	return &Pump[T]{items: queue.New(), fd: fd}, nil
}

// Fd returns the descriptor that is readable while Pop has something to
// return.
func (p *Pump[T]) Fd() int {
	return p.fd.Fd()
}

// Push appends v, reporting false if the pump is closed or has failed.
func (p *Pump[T]) Push(v T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.err != nil {
		return false
	}
	if p.items.Length() == 0 {
		p.fd.Signal()
	}
	p.items.Add(v)
	return true
}

// Fail records a terminal error, returned by Pop once every value pushed
// before it has been consumed. Only the first error is kept.
func (p *Pump[T]) Fail(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.err != nil {
		return
	}
	if p.items.Length() == 0 {
		p.fd.Signal()
	}
	p.err = err
}

// Pop removes the oldest value without blocking. It returns ok false when
// nothing is buffered, along with the terminal error if one was recorded.
// The descriptor is cleared once the FIFO is empty, unless the pump has
// failed, in which case it stays readable.
func (p *Pump[T]) Pop() (v T, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return v, false, ErrClosed
	}
	if p.items.Length() != 0 {
		return p.items.Remove().(T), true, nil
	}
	if p.err != nil {
		return v, false, p.err
	}
	_ = p.fd.Drain()
	return v, false, nil
}

// Len returns the number of buffered values.
func (p *Pump[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items.Length()
}

// Go starts a reader goroutine calling next until it fails or the pump is
// closed.
func (p *Pump[T]) Go(next func() (T, error)) {
	go func() {
		for {
			v, err := next()
			if err != nil {
				p.Fail(err)
				return
			}
			if !p.Push(v) {
				return
			}
		}
	}()
}

// Close discards buffered values and releases the descriptor. It is safe
// to call more than once.
func (p *Pump[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.items = queue.New()
	return p.fd.Close()
}
