package displayloop

import (
	"sync"
)

// IdleToken is an application-chosen value delivered to [Handler.Idle].
type IdleToken uint64

type idleKind uint8

const (
	idleCallback idleKind = iota
	idleToken
	idleRedraw
	idleApp
)

type idleTask struct {
	fn    func(Handler)
	appFn func(*Application)
	token IdleToken
	kind  idleKind
}

// idleQueue is the cross-thread list of deferred work for one window (or
// the application). Any goroutine may push; only the loop goroutine drains.
type idleQueue struct {
	waker  *waker
	tasks  []idleTask
	spare  []idleTask
	mu     sync.Mutex
	closed bool
}

func newIdleQueue(w *waker) *idleQueue {
	return &idleQueue{waker: w}
}

// push appends a task, signalling the waker only on the empty to non-empty
// transition. Returns false if the queue has been closed.
func (q *idleQueue) push(task idleTask) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	wasEmpty := len(q.tasks) == 0
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	if wasEmpty {
		q.waker.signal()
	}
	return true
}

// take swaps the pending tasks out for an empty slice. The returned slice
// must be handed back via recycle once run.
func (q *idleQueue) take() []idleTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	tasks := q.tasks
	q.tasks = q.spare[:0]
	q.spare = nil
	return tasks
}

func (q *idleQueue) recycle(tasks []idleTask) {
	clear(tasks)
	q.mu.Lock()
	if q.spare == nil {
		q.spare = tasks[:0]
	}
	q.mu.Unlock()
}

func (q *idleQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// close rejects further pushes and discards anything pending.
func (q *idleQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.spare = nil
	q.mu.Unlock()
}

// IdleHandle schedules work onto a window's loop goroutine. It is safe to
// copy and to use from any goroutine, and stays valid after the window is
// gone, at which point scheduling is a no-op that reports false.
type IdleHandle struct {
	q *idleQueue
}

// Schedule queues fn to run on the loop goroutine with the window's handler.
func (h IdleHandle) Schedule(fn func(Handler)) bool {
	if h.q == nil || fn == nil {
		return false
	}
	return h.q.push(idleTask{kind: idleCallback, fn: fn})
}

// ScheduleToken queues a call to [Handler.Idle] with token.
func (h IdleHandle) ScheduleToken(token IdleToken) bool {
	if h.q == nil {
		return false
	}
	return h.q.push(idleTask{kind: idleToken, token: token})
}

// ScheduleRedraw requests a [Redrawer.Redraw] call. Requests made before
// the next idle drain coalesce into one call.
func (h IdleHandle) ScheduleRedraw() bool {
	if h.q == nil {
		return false
	}
	return h.q.push(idleTask{kind: idleRedraw})
}

// AppIdleHandle schedules application-scope work onto the loop goroutine.
// It is safe to copy and to use from any goroutine.
type AppIdleHandle struct {
	q *idleQueue
}

// Schedule queues fn to run on the loop goroutine. It reports false once
// the application has been finalized.
func (h AppIdleHandle) Schedule(fn func(*Application)) bool {
	if h.q == nil || fn == nil {
		return false
	}
	return h.q.push(idleTask{kind: idleApp, appFn: fn})
}
