//go:build linux || darwin

package displayloop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-displayloop/internal/goroutineid"
	"github.com/joeycumines/logiface"
)

const (
	runIdle uint32 = iota
	runActive
	runDone
)

// Application composes a transport connection with the window registry,
// timers and idle queues into a single-goroutine event loop.
//
// Apart from Quit, IdleHandle, State and Metrics, every method must be
// called from the goroutine that calls Run, or before Run is called.
type Application struct {
	conn              *Connection
	registry          *Registry
	waker             *waker
	appIdle           *idleQueue
	logger            *logiface.Logger[logiface.Event]
	metrics           *counters
	missLimiter       *catrate.Limiter
	now               func() time.Time
	fatal             error
	lastIdle          time.Time
	selectionHandlers []SelectionHandler
	idleInterval      time.Duration
	loopGoroutine     atomic.Uint64
	runState          atomic.Uint32
	state             stateCell
}

// New creates an application driving transport. On failure the transport
// is left open and remains owned by the caller.
func New(transport Transport, opts ...Option) (*Application, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}

	options, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	w, err := newWaker()
	if err != nil {
		return nil, Startup(fmt.Errorf("create wake fd: %w", err))
	}

	a := &Application{
		conn:     newConnection(transport, options.disablePresentation),
		registry: NewRegistry(),
		waker:    w,
		appIdle:  newIdleQueue(w),
		logger:   options.logger,
		now:      options.now,
		// at most 5 logged routing misses per window per second
		missLimiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		}),
		selectionHandlers: options.selectionHandlers,
	}
	if options.metricsEnabled {
		a.metrics = new(counters)
	}

	rate := options.idleRate
	if rate <= 0 {
		rate = a.conn.caps.RefreshRate
	}
	if rate <= 0 {
		rate = defaultIdleRate
	}
	a.idleInterval = time.Duration(float64(time.Second) / rate)

	a.logger.Debug().
		Float64("idle_rate", rate).
		Bool("presentation", a.conn.caps.Presentation).
		Bool("fixes", a.conn.caps.Fixes).
		Log("application created")

	return a, nil
}

// Connection returns the loop-owned connection.
func (a *Application) Connection() *Connection {
	return a.conn
}

// State returns the current shutdown state. Safe to call from any
// goroutine.
func (a *Application) State() State {
	return a.state.Load()
}

// Metrics returns a snapshot of the loop counters. Safe to call from any
// goroutine.
func (a *Application) Metrics() Metrics {
	return a.metrics.snapshot(a.waker)
}

// IdleHandle returns a handle for scheduling application-scope work from
// any goroutine.
func (a *Application) IdleHandle() AppIdleHandle {
	return AppIdleHandle{q: a.appIdle}
}

// CreateWindow asks the transport for a new window and registers it once
// the server has acknowledged the creation. handler.Connect is called
// before CreateWindow returns.
func (a *Application) CreateWindow(opts WindowOptions, handler Handler) (*Window, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if a.state.Load() != StateRunning {
		return nil, ErrTerminated
	}

	id, err := a.conn.transport.CreateWindow(opts)
	if err != nil {
		return nil, fmt.Errorf("displayloop: create window: %w", err)
	}

	w := &Window{
		app:     a,
		handler: handler,
		idle:    newIdleQueue(a.waker),
		id:      id,
	}
	if old, ok := a.registry.Lookup(id); ok {
		a.logger.Warning().
			Uint64("window", uint64(id)).
			Log("window id reused while still registered")
		old.idle.close()
		old.timers.CancelAll()
		a.registry.Remove(id)
	}
	a.registry.Insert(w)

	a.logger.Debug().
		Uint64("window", uint64(id)).
		Int("windows", a.registry.Len()).
		Log("window created")

	handler.Connect(w)
	return w, nil
}

// Window returns the live window with the given id.
func (a *Application) Window(id WindowID) (*Window, bool) {
	return a.registry.Lookup(id)
}

// Resolve re-resolves a window back-reference.
func (a *Application) Resolve(ref WindowRef) (*Window, bool) {
	return a.registry.Resolve(ref)
}

// Windows returns a snapshot of the live windows, ordered by id.
func (a *Application) Windows() []*Window {
	return a.registry.Snapshot()
}

// Quit begins an orderly shutdown: every live window is asked to close,
// and the loop finalizes once the server has confirmed each destruction.
// Calls after the first are no-ops.
//
// Quit may be called from any goroutine. Off the loop goroutine, or
// before Run, the request is queued and handled at the next idle tick.
func (a *Application) Quit() {
	if !a.onLoop() {
		a.appIdle.push(idleTask{kind: idleApp, appFn: (*Application).quit})
		return
	}
	a.quit()
}

func (a *Application) quit() {
	if a.registry.Len() == 0 {
		if a.state.TryTransition(StateRunning, StateFinalizing) {
			a.logger.Info().Log("quit requested with no windows, finalizing")
		}
		return
	}

	if !a.state.TryTransition(StateRunning, StateQuitting) {
		return
	}

	windows := a.registry.Snapshot()
	a.logger.Info().
		Int("windows", len(windows)).
		Log("quit requested, destroying windows")

	for _, w := range windows {
		err := w.Destroy()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrTransportClosed) {
			a.fail(err)
			return
		}
		// no confirmation will follow a rejected request
		a.logger.Err().
			Err(err).
			Uint64("window", uint64(w.id)).
			Log("failed to request window destruction, dropping window")
		a.removeWindow(w)
	}
}

func (a *Application) onLoop() bool {
	id := a.loopGoroutine.Load()
	return id != 0 && id == goroutineid.Get()
}

// Run drives the loop on the calling goroutine, which is locked to its OS
// thread, until the application finalizes. It returns nil after an orderly
// shutdown, or a [*FatalError] if the connection failed, in which case
// resources are still released.
//
// Cancelling ctx is equivalent to calling Quit.
func (a *Application) Run(ctx context.Context) error {
	if a.onLoop() {
		return ErrReentrantRun
	}
	if !a.runState.CompareAndSwap(runIdle, runActive) {
		if a.runState.Load() == runDone {
			return ErrTerminated
		}
		return ErrAlreadyRunning
	}
	defer a.runState.Store(runDone)

	if a.state.Load() == StateFinalized {
		return ErrTerminated
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	a.loopGoroutine.Store(goroutineid.Get())
	defer a.loopGoroutine.Store(0)

	stop := context.AfterFunc(ctx, func() {
		a.appIdle.push(idleTask{kind: idleApp, appFn: (*Application).quit})
	})
	defer stop()

	a.logger.Info().Log("event loop started")

	for !a.state.shuttingDown() {
		if err := a.iterate(); err != nil {
			a.fail(err)
		}
	}

	a.finalize()

	if a.fatal != nil {
		return a.fatal
	}
	return nil
}

// Close releases the transport and wake descriptor of an application that
// is not running. It is a no-op once finalized.
func (a *Application) Close() error {
	if a.runState.Load() == runActive {
		return ErrAlreadyRunning
	}
	a.finalize()
	return nil
}

// iterate runs one pass: flush, wait, drain every available event, then
// fire due timers and, at the idle cadence, run idle work.
func (a *Application) iterate() error {
	timerDeadline, hasTimer := a.nextTimerDeadline()
	idleDeadline := a.lastIdle.Add(a.idleInterval)

	if err := a.conn.flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	ev, err := a.conn.next()
	if err != nil {
		return err
	}
	if ev == nil {
		if err := a.wait(timerDeadline, hasTimer, idleDeadline); err != nil {
			return err
		}
		if ev, err = a.conn.next(); err != nil {
			return err
		}
	}

	for ev != nil {
		a.dispatch(ev)
		if a.state.shuttingDown() {
			return nil
		}
		if ev, err = a.conn.next(); err != nil {
			return err
		}
	}

	now := a.now()
	if hasTimer && !now.Before(timerDeadline) {
		a.fireTimers(now)
	}
	if !now.Before(idleDeadline) {
		if err := a.waker.drain(); err != nil {
			return fmt.Errorf("drain wake fd: %w", err)
		}
		a.runIdle()
		a.lastIdle = now
	}
	return nil
}

// nextTimerDeadline is the minimum pending deadline across all windows.
func (a *Application) nextTimerDeadline() (time.Time, bool) {
	var (
		next time.Time
		ok   bool
	)
	for _, w := range a.registry.windows {
		if d, has := w.timers.NextDeadline(); has && (!ok || d.Before(next)) {
			next, ok = d, true
		}
	}
	return next, ok
}

// fireTimers pops and fires due timers for every window, in window id
// order, then deadline order.
func (a *Application) fireTimers(now time.Time) {
	for _, w := range a.registry.Snapshot() {
		for _, token := range w.timers.DueBefore(now) {
			if w.removed {
				break
			}
			a.metrics.add(timersFired, 1)
			a.invoke(w.id, "TIMER", func() error {
				w.handler.Timer(token)
				return nil
			})
		}
	}
}

// runIdle drains the application queue, then each window's queue.
func (a *Application) runIdle() {
	if tasks := a.appIdle.take(); tasks != nil {
		for _, task := range tasks {
			a.metrics.add(idleTasksRun, 1)
			a.invoke(0, "IDLE", func() error {
				task.appFn(a)
				return nil
			})
		}
		a.appIdle.recycle(tasks)
	}

	for _, w := range a.registry.Snapshot() {
		a.runWindowIdle(w)
	}
}

func (a *Application) runWindowIdle(w *Window) {
	tasks := w.idle.take()
	if tasks == nil {
		return
	}
	defer w.idle.recycle(tasks)

	var redraw bool
	for _, task := range tasks {
		if w.removed {
			return
		}
		switch task.kind {
		case idleCallback:
			a.metrics.add(idleTasksRun, 1)
			a.invoke(w.id, "IDLE", func() error {
				task.fn(w.handler)
				return nil
			})
		case idleToken:
			a.metrics.add(idleTasksRun, 1)
			a.invoke(w.id, "IDLE", func() error {
				w.handler.Idle(task.token)
				return nil
			})
		case idleRedraw:
			redraw = true
		}
	}

	if redraw && !w.removed {
		if r, ok := w.handler.(Redrawer); ok {
			a.metrics.add(idleTasksRun, 1)
			a.invoke(w.id, "REDRAW", r.Redraw)
		}
	}
}

// fail records the first fatal error and stops the loop.
func (a *Application) fail(err error) {
	if a.fatal == nil {
		a.fatal = &FatalError{Phase: PhaseRuntime, Err: err}
	}
	a.logger.Crit().
		Err(err).
		Log("fatal transport error, terminating")
	a.state.TransitionAny([]State{StateRunning, StateQuitting}, StateFinalizing)
}

// finalize releases resources exactly once.
func (a *Application) finalize() {
	a.state.TransitionAny([]State{StateRunning, StateQuitting}, StateFinalizing)
	if !a.state.TryTransition(StateFinalizing, StateFinalized) {
		return
	}

	a.appIdle.close()
	for _, w := range a.registry.windows {
		w.idle.close()
		w.timers.CancelAll()
	}

	if err := a.conn.close(); err != nil {
		a.logger.Warning().
			Err(err).
			Log("failed to close transport")
	}
	if err := a.waker.close(); err != nil {
		a.logger.Warning().
			Err(err).
			Log("failed to close wake fd")
	}

	a.logger.Info().
		Int("windows", a.registry.Len()).
		Log("event loop finalized")
}
