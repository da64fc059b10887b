//go:build linux || darwin

// Package wakefd provides a descriptor that another goroutine can make
// readable, for waking a thread blocked in poll(2). Linux uses an eventfd,
// other platforms a self-pipe.
package wakefd

import (
	"encoding/binary"
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// FD is a non-blocking wake descriptor. Signal is safe for concurrent use
// with every other method; Drain is meant for the polling goroutine.
type FD struct {
	readFd  int
	writeFd int
	mu      sync.RWMutex
	closed  bool
}

// New creates the descriptor.
func New() (*FD, error) {
	r, w, err := create()
	if err != nil {
		return nil, err
	}
	return &FD{readFd: r, writeFd: w}, nil
}

// Fd returns the read end, the descriptor to poll.
func (w *FD) Fd() int {
	return w.readFd
}

// Signal makes the read end readable. It reports false, and does nothing,
// once the descriptor is closed.
func (w *FD) Signal() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		// EAGAIN means the counter or pipe is saturated, which still
		// leaves the read end readable
		if _, err := unix.Write(w.writeFd, buf[:]); err != unix.EINTR {
			return true
		}
	}
}

// Drain consumes pending signals until the read end would block.
func (w *FD) Drain() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil
	}
	var buf [64]byte
	for {
		_, err := unix.Read(w.readFd, buf[:])
		switch {
		case err == nil:
			if w.readFd == w.writeFd {
				// an eventfd read resets the counter
				return nil
			}
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			return nil
		default:
			return err
		}
	}
}

// Close releases the descriptors. It is safe to call more than once.
func (w *FD) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := unix.Close(w.readFd)
	if w.writeFd != w.readFd {
		if e := unix.Close(w.writeFd); err == nil {
			err = e
		}
	}
	return err
}

// Closed reports whether Close has been called.
func (w *FD) Closed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}
