package displayloop

import (
	"time"
)

// Handler is the application side of a window. Every method is invoked on
// the loop goroutine, and is expected to return promptly.
type Handler interface {
	// Connect is called once, after the window has been registered.
	Connect(w *Window)
	// HandleEvent receives window-addressed input and lifecycle events. An
	// error is logged and does not affect later events.
	HandleEvent(ev Event) error
	// Timer is called when a timer scheduled on the window fires.
	Timer(token TimerToken)
	// Idle is called for tokens scheduled via [IdleHandle.ScheduleToken].
	Idle(token IdleToken)
	// Destroyed is called once the server has confirmed destruction, just
	// before the window is removed from the registry.
	Destroyed()
}

// Redrawer may be implemented by a [Handler] to receive coalesced redraw
// requests from [IdleHandle.ScheduleRedraw].
type Redrawer interface {
	Redraw() error
}

// Window is the loop's record of one live on-screen window. Unless noted,
// its methods must only be called on the loop goroutine.
type Window struct {
	app              *Application
	handler          Handler
	idle             *idleQueue
	timers           Timers
	ref              WindowRef
	id               WindowID
	destroyRequested bool
	removed          bool
	keyboardFocus    bool
	pointerFocus     bool
}

// ID returns the server-assigned id.
func (w *Window) ID() WindowID { return w.id }

// Ref returns a back-reference that stops resolving once the window is
// removed.
func (w *Window) Ref() WindowRef { return w.ref }

// Handler returns the window's handler.
func (w *Window) Handler() Handler { return w.handler }

// Destroy asks the server to destroy the window. The window stays
// registered until the destruction is confirmed. Repeated calls are no-ops.
func (w *Window) Destroy() error {
	if w.destroyRequested || w.removed {
		return nil
	}
	w.destroyRequested = true
	if err := w.app.conn.transport.DestroyWindow(w.id); err != nil {
		return &HandlerError{Kind: "DESTROY_WINDOW", Window: w.id, Err: err}
	}
	return nil
}

// Destroyed reports whether the window has been removed from the registry.
func (w *Window) Destroyed() bool { return w.removed }

// DestroyRequested reports whether Destroy has been called.
func (w *Window) DestroyRequested() bool { return w.destroyRequested }

// ScheduleTimer arms a one-shot timer for the absolute deadline.
func (w *Window) ScheduleTimer(deadline time.Time) TimerToken {
	return w.timers.Schedule(deadline)
}

// RequestTimer arms a one-shot timer d from now.
func (w *Window) RequestTimer(d time.Duration) TimerToken {
	return w.timers.Schedule(w.app.now().Add(d))
}

// CancelTimers drops every pending timer.
func (w *Window) CancelTimers() {
	w.timers.CancelAll()
}

// NextDeadline returns the earliest pending timer deadline.
func (w *Window) NextDeadline() (time.Time, bool) {
	return w.timers.NextDeadline()
}

// IdleHandle returns a handle for scheduling work on this window from any
// goroutine. It may be called from any goroutine.
func (w *Window) IdleHandle() IdleHandle {
	return IdleHandle{q: w.idle}
}

// HasKeyboardFocus reports whether the window has keyboard focus.
func (w *Window) HasKeyboardFocus() bool { return w.keyboardFocus }

// HasPointerFocus reports whether the pointer is inside the window.
func (w *Window) HasPointerFocus() bool { return w.pointerFocus }

// observeFocus tracks focus and crossing events.
func (w *Window) observeFocus(ev InputEvent) {
	switch ev.Type {
	case FocusIn:
		w.keyboardFocus = true
	case FocusOut:
		w.keyboardFocus = false
	case Enter:
		w.pointerFocus = true
	case Leave:
		w.pointerFocus = false
	}
}
