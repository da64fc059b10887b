package displayloop

import (
	"container/heap"
	"sync/atomic"
	"time"
)

// TimerToken identifies a scheduled one-shot timer. Tokens are unique for
// the life of the process and never zero.
type TimerToken uint64

var timerTokenCounter atomic.Uint64

func nextTimerToken() TimerToken {
	return TimerToken(timerTokenCounter.Add(1))
}

// timer represents a scheduled deadline
type timer struct {
	when  time.Time
	seq   uint64
	token TimerToken
}

// timerHeap is a min-heap of timers, ties broken by insertion order
type timerHeap []timer

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = timer{}
	*h = old[:n-1]
	return x
}

// Timers is the per-window timer registry. It is owned by the loop
// goroutine.
type Timers struct {
	heap timerHeap
	seq  uint64
}

// Schedule adds a timer firing at deadline.
func (t *Timers) Schedule(deadline time.Time) TimerToken {
	t.seq++
	token := nextTimerToken()
	heap.Push(&t.heap, timer{when: deadline, seq: t.seq, token: token})
	return token
}

// CancelAll drops every pending timer.
func (t *Timers) CancelAll() {
	clear(t.heap)
	t.heap = t.heap[:0]
}

// NextDeadline returns the earliest pending deadline.
func (t *Timers) NextDeadline() (time.Time, bool) {
	if len(t.heap) == 0 {
		return time.Time{}, false
	}
	return t.heap[0].when, true
}

// DueBefore pops every timer whose deadline is not after now, in deadline
// order.
func (t *Timers) DueBefore(now time.Time) []TimerToken {
	var due []TimerToken
	for len(t.heap) > 0 && !t.heap[0].when.After(now) {
		due = append(due, heap.Pop(&t.heap).(timer).token)
	}
	return due
}

// Len returns the number of pending timers.
func (t *Timers) Len() int {
	return len(t.heap)
}
