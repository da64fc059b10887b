//go:build linux || darwin

package displayloop

import (
	"sync/atomic"

	"github.com/joeycumines/go-displayloop/internal/wakefd"
)

// waker is the cross-thread wake primitive shared by every idle queue of
// an application. Signal may be called from any goroutine; drain and close
// belong to the loop goroutine.
type waker struct {
	efd     *wakefd.FD
	signals atomic.Uint64
}

func newWaker() (*waker, error) {
	efd, err := wakefd.New()
	if err != nil {
		return nil, err
	}
	return &waker{efd: efd}, nil
}

func (w *waker) fd() int {
	return w.efd.Fd()
}

// signal makes the descriptor readable and counts the wakeup. Signals after
// close are dropped.
func (w *waker) signal() {
	if w.efd.Signal() {
		w.signals.Add(1)
	}
}

func (w *waker) drain() error {
	return w.efd.Drain()
}

func (w *waker) close() error {
	return w.efd.Close()
}

func (w *waker) isClosed() bool {
	return w.efd.Closed()
}
