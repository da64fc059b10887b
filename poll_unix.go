//go:build linux || darwin

package displayloop

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// wait blocks until the transport is readable or a deadline passes.
//
// The wake fd is only drained at the idle cadence tick, so once it fires
// it is dropped from the poll set, and the wait continues on the transport
// alone until the earlier of the timer and idle deadlines.
func (a *Application) wait(timerDeadline time.Time, hasTimer bool, idleDeadline time.Time) error {
	fds := [2]unix.PollFd{
		{Fd: int32(a.conn.transport.Fd()), Events: unix.POLLIN},
		{Fd: int32(a.waker.fd()), Events: unix.POLLIN},
	}
	n := len(fds)
	deadline, hasDeadline := timerDeadline, hasTimer

	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		a.metrics.add(pollCalls, 1)
		if _, err := unix.Poll(fds[:n], pollTimeout(deadline, hasDeadline, a.now())); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		if fds[0].Revents != 0 {
			return nil
		}
		if n == 2 && fds[1].Revents != 0 {
			n = 1
			if !hasDeadline || idleDeadline.Before(deadline) {
				deadline, hasDeadline = idleDeadline, true
			}
		}
		if hasDeadline && !a.now().Before(deadline) {
			return nil
		}
	}
}

// pollTimeout converts a deadline to a poll(2) timeout in milliseconds,
// rounding up so the loop never wakes just before a deadline. No deadline
// means block indefinitely.
func pollTimeout(deadline time.Time, hasDeadline bool, now time.Time) int {
	if !hasDeadline {
		return -1
	}
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
