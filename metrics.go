package displayloop

import (
	"sync/atomic"
)

// Metrics is a point-in-time snapshot of loop counters. All fields are
// zero unless the application was created with WithMetrics(true).
type Metrics struct {
	// EventsDispatched counts events taken from the connection.
	EventsDispatched uint64
	// RoutingMisses counts window-addressed events for unknown windows.
	RoutingMisses uint64
	// HandlerErrors counts handler failures and recovered panics.
	HandlerErrors uint64
	// TimersFired counts Handler.Timer invocations.
	TimersFired uint64
	// IdleTasksRun counts idle tasks executed, with a coalesced redraw
	// counted once.
	IdleTasksRun uint64
	// Wakeups counts wake signals sent by idle handles.
	Wakeups uint64
	// PollCalls counts blocking poll(2) calls.
	PollCalls uint64
}

// counters is safe to read from any goroutine; a nil receiver is a no-op.
type counters struct {
	eventsDispatched atomic.Uint64
	routingMisses    atomic.Uint64
	handlerErrors    atomic.Uint64
	timersFired      atomic.Uint64
	idleTasksRun     atomic.Uint64
	pollCalls        atomic.Uint64
}

func (c *counters) add(field func(*counters) *atomic.Uint64, n uint64) {
	if c != nil {
		field(c).Add(n)
	}
}

func eventsDispatched(c *counters) *atomic.Uint64 { return &c.eventsDispatched }
func routingMisses(c *counters) *atomic.Uint64    { return &c.routingMisses }
func handlerErrors(c *counters) *atomic.Uint64    { return &c.handlerErrors }
func timersFired(c *counters) *atomic.Uint64      { return &c.timersFired }
func idleTasksRun(c *counters) *atomic.Uint64     { return &c.idleTasksRun }
func pollCalls(c *counters) *atomic.Uint64        { return &c.pollCalls }

func (c *counters) snapshot(w *waker) Metrics {
	if c == nil {
		return Metrics{}
	}
	m := Metrics{
		EventsDispatched: c.eventsDispatched.Load(),
		RoutingMisses:    c.routingMisses.Load(),
		HandlerErrors:    c.handlerErrors.Load(),
		TimersFired:      c.timersFired.Load(),
		IdleTasksRun:     c.idleTasksRun.Load(),
		PollCalls:        c.pollCalls.Load(),
	}
	if w != nil {
		m.Wakeups = w.signals.Load()
	}
	return m
}
