package wayland

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-displayloop"
	"github.com/joeycumines/go-displayloop/internal/pump"
	"github.com/joeycumines/logiface"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

const (
	compositorVersion = 4
	seatVersion       = 5
	outputVersion     = 2

	// outputModeCurrent is the wl_output.mode flag for the active mode.
	outputModeCurrent = 0x1

	syncTimeout = 5 * time.Second
)

// Config configures Dial.
type Config struct {
	Logger *logiface.Logger[logiface.Event]
	// Display is the socket name or path, empty for $WAYLAND_DISPLAY. A
	// name is resolved against $XDG_RUNTIME_DIR.
	Display string
	// DisablePresentation ignores a wp_presentation global.
	DisablePresentation bool
}

type seat struct {
	seat     *client.Seat
	pointer  *client.Pointer
	keyboard *client.Keyboard
}

// Transport is a [displayloop.Transport] backed by a Wayland connection.
// Windows are wl_surface objects, identified by their protocol object id.
//
// go-wayland dispatches from a blocking read, so a dispatch goroutine runs
// the event handlers, which push decoded events into a pump whose
// descriptor is what the loop polls. go-wayland proxies are not safe for
// concurrent use: handlers run with mu held, and so does every request the
// loop goroutine issues.
type Transport struct {
	display          *client.Display
	registry         *client.Registry
	compositor       *client.Compositor
	pump             *pump.Pump[displayloop.Event]
	logger           *logiface.Logger[logiface.Event]
	// surfaces and destroying are only touched by the loop goroutine
	surfaces         map[displayloop.WindowID]*client.Surface
	destroying       map[displayloop.WindowID]*client.Callback
	gone             chan struct{}
	dialErr          error
	router           router
	seats            []*seat
	caps             displayloop.Capabilities
	// presentationName is the registry name of wp_presentation, if seen
	presentationName uint32
	started          atomic.Bool
	cfg              Config
	mu               sync.Mutex
	closed           bool
	dead             bool
}

var _ displayloop.Transport = (*Transport)(nil)

// Dial connects to the compositor, binds the globals the loop uses and
// starts the dispatch goroutine. Failures are startup
// [displayloop.FatalError] values.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, displayloop.Startup(err)
	}

	addr, err := socketPath(cfg.Display, os.LookupEnv)
	if err != nil {
		return nil, displayloop.Startup(err)
	}
	display, err := client.Connect(addr)
	if err != nil {
		return nil, displayloop.Startup(fmt.Errorf("wayland: connect to %q: %w", addr, err))
	}

	t := &Transport{
		display:    display,
		logger:     cfg.Logger,
		surfaces:   make(map[displayloop.WindowID]*client.Surface),
		destroying: make(map[displayloop.WindowID]*client.Callback),
		gone:       make(chan struct{}),
		cfg:        cfg,
	}

	var success bool
	defer func() {
		if !success {
			if t.pump != nil {
				_ = t.pump.Close()
			}
			_ = display.Context().Close()
		}
	}()

	if t.pump, err = pump.New[displayloop.Event](); err != nil {
		return nil, displayloop.Startup(fmt.Errorf("wayland: create event pump: %w", err))
	}
	t.router.push = t.pump.Push

	display.SetErrorHandler(t.handleDisplayError)

	if t.registry, err = display.GetRegistry(); err != nil {
		return nil, displayloop.Startup(fmt.Errorf("wayland: get registry: %w", err))
	}
	t.registry.SetGlobalHandler(t.handleGlobal)
	t.registry.SetGlobalRemoveHandler(t.handleGlobalRemove)

	// the first round trip announces globals, the second delivers the
	// initial events of the objects bound in response
	for range 2 {
		if err := t.roundTrip(); err != nil {
			return nil, displayloop.Startup(fmt.Errorf("wayland: initial round trip: %w", err))
		}
	}
	if t.dialErr != nil {
		return nil, displayloop.Startup(t.dialErr)
	}
	if t.compositor == nil {
		return nil, displayloop.Startup(errors.New("wayland: compositor does not advertise wl_compositor"))
	}

	if err := ctx.Err(); err != nil {
		return nil, displayloop.Startup(err)
	}

	t.logger.Debug().
		Float64("refresh_rate", t.caps.RefreshRate).
		Bool("presentation", t.caps.Presentation).
		Int("seats", len(t.seats)).
		Log("wayland: capabilities negotiated")

	t.started.Store(true)
	go t.dispatch()

	success = true
	return t, nil
}

// socketPath resolves a display name the way libwayland does. An empty name
// is left for go-wayland to resolve from the environment.
func socketPath(display string, lookupEnv func(string) (string, bool)) (string, error) {
	if display == "" || filepath.IsAbs(display) {
		return display, nil
	}
	dir, _ := lookupEnv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", fmt.Errorf("wayland: connect to %q: XDG_RUNTIME_DIR is not set", display)
	}
	return filepath.Join(dir, display), nil
}

// roundTrip blocks until the compositor has processed every request sent so
// far. It must only be used before the dispatch goroutine is started.
func (t *Transport) roundTrip() error {
	cb, err := t.display.Sync()
	if err != nil {
		return err
	}
	defer func() { _ = cb.Destroy() }()

	var done bool
	cb.SetDoneHandler(func(client.CallbackDoneEvent) { done = true })
	for !done {
		if err := t.dispatchOne(); err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs event handlers until the connection fails or is closed.
func (t *Transport) dispatch() {
	defer close(t.gone)
	for {
		if err := t.dispatchOne(); err != nil {
			t.pump.Fail(fmt.Errorf("%w: %w", displayloop.ErrTransportClosed, err))
			return
		}
	}
}

// dispatchOne reads a single message outside mu, then runs its handler
// with mu held.
func (t *Transport) dispatchOne() error {
	ctx := t.display.Context()
	sender, opcode, fd, data, err := ctx.ReadMsg()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := ctx.GetProxy(sender).(client.Dispatcher)
	if !ok {
		// the object was destroyed on this side, the compositor has not
		// seen the request yet
		if fd != -1 {
			_ = unix.Close(fd)
		}
		return nil
	}
	d.Dispatch(opcode, fd, data)
	return nil
}

func (t *Transport) handleDisplayError(e client.DisplayErrorEvent) {
	var object uint32
	if e.ObjectId != nil {
		object = e.ObjectId.ID()
	}
	err := fmt.Errorf("wayland: protocol error on object %d: code %d: %s", object, e.Code, e.Message)
	if !t.started.Load() {
		if t.dialErr == nil {
			t.dialErr = err
		}
		return
	}
	t.pump.Push(displayloop.ProtocolErrorEvent{Err: err, Fatal: true})
}

func (t *Transport) handleGlobal(e client.RegistryGlobalEvent) {
	switch e.Interface {
	case "wl_compositor":
		if t.compositor != nil {
			return
		}
		compositor := client.NewCompositor(t.display.Context())
		if err := t.registry.Bind(e.Name, e.Interface, min(e.Version, compositorVersion), compositor); err != nil {
			t.logger.Warning().Err(err).Log("wayland: bind wl_compositor failed")
			return
		}
		t.compositor = compositor

	case "wl_seat":
		s := &seat{seat: client.NewSeat(t.display.Context())}
		if err := t.registry.Bind(e.Name, e.Interface, min(e.Version, seatVersion), s.seat); err != nil {
			t.logger.Warning().Err(err).Log("wayland: bind wl_seat failed")
			return
		}
		s.seat.SetCapabilitiesHandler(func(ev client.SeatCapabilitiesEvent) {
			t.seatCapabilities(s, uint32(ev.Capabilities))
		})
		t.seats = append(t.seats, s)

	case "wl_output":
		if t.started.Load() {
			return
		}
		output := client.NewOutput(t.display.Context())
		if err := t.registry.Bind(e.Name, e.Interface, min(e.Version, outputVersion), output); err != nil {
			t.logger.Info().Err(err).Log("wayland: bind wl_output failed")
			return
		}
		output.SetModeHandler(func(ev client.OutputModeEvent) {
			if t.started.Load() || uint32(ev.Flags)&outputModeCurrent == 0 || ev.Refresh <= 0 {
				return
			}
			t.caps.RefreshRate = max(t.caps.RefreshRate, float64(ev.Refresh)/1000)
		})

	case "wp_presentation":
		if t.started.Load() {
			return
		}
		t.presentationName = e.Name
		if t.cfg.DisablePresentation {
			t.logger.Info().Log("wayland: wp_presentation disabled by configuration")
			return
		}
		t.caps.Presentation = true
	}
}

func (t *Transport) handleGlobalRemove(e client.RegistryGlobalRemoveEvent) {
	if t.presentationName == 0 || e.Name != t.presentationName {
		return
	}
	t.presentationName = 0
	if t.started.Load() {
		t.pump.Push(displayloop.CapabilityEvent{
			Capability: displayloop.CapPresentation,
			Err:        errors.New("wayland: wp_presentation global removed"),
		})
	} else {
		t.caps.Presentation = false
	}
}

func (t *Transport) seatCapabilities(s *seat, caps uint32) {
	if caps&seatCapabilityPointer != 0 && s.pointer == nil {
		pointer, err := s.seat.GetPointer()
		if err != nil {
			t.logger.Warning().Err(err).Log("wayland: get pointer failed")
		} else {
			s.pointer = pointer
			t.bindPointer(pointer)
		}
	}
	if caps&seatCapabilityKeyboard != 0 && s.keyboard == nil {
		keyboard, err := s.seat.GetKeyboard()
		if err != nil {
			t.logger.Warning().Err(err).Log("wayland: get keyboard failed")
		} else {
			s.keyboard = keyboard
			t.bindKeyboard(keyboard)
		}
	}
}

func (t *Transport) bindPointer(p *client.Pointer) {
	r := &t.router
	p.SetEnterHandler(func(e client.PointerEnterEvent) {
		r.pointerEnter(surfaceID(e.Surface), e.SurfaceX, e.SurfaceY)
	})
	p.SetLeaveHandler(func(e client.PointerLeaveEvent) {
		r.pointerLeave(surfaceID(e.Surface))
	})
	p.SetMotionHandler(func(e client.PointerMotionEvent) {
		r.pointerMotion(e.Time, e.SurfaceX, e.SurfaceY)
	})
	p.SetButtonHandler(func(e client.PointerButtonEvent) {
		r.pointerButton(e.Time, e.Button, uint32(e.State))
	})
	p.SetAxisHandler(func(e client.PointerAxisEvent) {
		r.pointerAxis(e.Time, uint32(e.Axis), e.Value)
	})
}

func (t *Transport) bindKeyboard(k *client.Keyboard) {
	r := &t.router
	k.SetKeymapHandler(func(e client.KeyboardKeymapEvent) {
		// keymaps are not interpreted by the loop
		_ = unix.Close(e.Fd)
	})
	k.SetEnterHandler(func(e client.KeyboardEnterEvent) {
		r.keyboardEnter(surfaceID(e.Surface))
	})
	k.SetLeaveHandler(func(e client.KeyboardLeaveEvent) {
		r.keyboardLeave(surfaceID(e.Surface))
	})
	k.SetKeyHandler(func(e client.KeyboardKeyEvent) {
		r.key(e.Time, e.Key, uint32(e.State))
	})
	k.SetModifiersHandler(func(e client.KeyboardModifiersEvent) {
		r.modifiers(e.ModsDepressed, e.ModsLatched, e.ModsLocked)
	})
}

func surfaceID(s *client.Surface) displayloop.WindowID {
	if s == nil {
		return 0
	}
	return displayloop.WindowID(s.ID())
}

// PollEvent returns the next event pushed by the dispatch goroutine.
func (t *Transport) PollEvent() (displayloop.Event, error) {
	ev, ok, err := t.pump.Pop()
	if err != nil {
		t.dead = true
		if errors.Is(err, pump.ErrClosed) {
			return nil, displayloop.ErrTransportClosed
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if lc, isLifecycle := ev.(displayloop.LifecycleEvent); isLifecycle && lc.Type == displayloop.Destroyed {
		if cb, found := t.destroying[lc.Window]; found {
			delete(t.destroying, lc.Window)
			t.mu.Lock()
			_ = cb.Destroy()
			t.mu.Unlock()
		}
	}
	return ev, nil
}

// Flush reports a closed connection. Requests are written as they are
// issued.
func (t *Transport) Flush() error {
	if t.closed || t.dead {
		return displayloop.ErrTransportClosed
	}
	return nil
}

// Fd returns the pump descriptor.
func (t *Transport) Fd() int {
	return t.pump.Fd()
}

// Capabilities returns the capabilities negotiated by Dial.
func (t *Transport) Capabilities() displayloop.Capabilities {
	return t.caps
}

// HelperWindow returns zero; application-scope events are not addressed to
// a surface under Wayland.
func (t *Transport) HelperWindow() displayloop.WindowID {
	return 0
}

// CreateWindow creates a surface, returning once a sync round trip
// confirms the compositor has processed the request. Role assignment
// (xdg_toplevel and friends) is left to the caller, so opts only affects
// logging.
func (t *Transport) CreateWindow(opts displayloop.WindowOptions) (displayloop.WindowID, error) {
	if t.closed || t.dead {
		return 0, displayloop.ErrTransportClosed
	}

	t.mu.Lock()
	surface, cb, done, err := t.createSurface()
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}

	err = t.await(done)
	t.mu.Lock()
	_ = cb.Destroy()
	if err != nil {
		_ = surface.Destroy()
	}
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}

	id := displayloop.WindowID(surface.ID())
	t.surfaces[id] = surface

	t.logger.Debug().
		Uint64("window", uint64(id)).
		Str("title", opts.Title).
		Log("wayland: surface created")

	return id, nil
}

// createSurface issues the creation requests followed by a sync barrier.
// It must be called with mu held.
func (t *Transport) createSurface() (*client.Surface, *client.Callback, <-chan struct{}, error) {
	surface, err := t.compositor.CreateSurface()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wayland: create surface: %w", err)
	}
	if err := surface.Commit(); err != nil {
		_ = surface.Destroy()
		return nil, nil, nil, fmt.Errorf("wayland: commit surface: %w", err)
	}
	cb, done, err := t.barrier()
	if err != nil {
		_ = surface.Destroy()
		return nil, nil, nil, err
	}
	return surface, cb, done, nil
}

// barrier issues a sync whose done event closes the returned channel. It
// must be called with mu held.
func (t *Transport) barrier() (*client.Callback, <-chan struct{}, error) {
	cb, err := t.display.Sync()
	if err != nil {
		return nil, nil, fmt.Errorf("wayland: sync: %w", err)
	}
	done := make(chan struct{})
	cb.SetDoneHandler(func(client.CallbackDoneEvent) { close(done) })
	return cb, done, nil
}

// await waits for a barrier serviced by the dispatch goroutine.
func (t *Transport) await(done <-chan struct{}) error {
	timer := time.NewTimer(syncTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-t.gone:
		return displayloop.ErrTransportClosed
	case <-timer.C:
		return errors.New("wayland: sync timed out")
	}
}

// DestroyWindow destroys the surface. A sync issued right after it
// produces the [displayloop.Destroyed] confirmation.
func (t *Transport) DestroyWindow(id displayloop.WindowID) error {
	if t.closed || t.dead {
		return displayloop.ErrTransportClosed
	}
	surface, ok := t.surfaces[id]
	if !ok {
		return fmt.Errorf("wayland: destroy surface %d: %w", id, displayloop.ErrWindowGone)
	}
	delete(t.surfaces, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := surface.Destroy(); err != nil {
		return fmt.Errorf("wayland: destroy surface %d: %w", id, err)
	}

	cb, err := t.display.Sync()
	if err != nil {
		return fmt.Errorf("wayland: sync: %w", err)
	}
	t.destroying[id] = cb
	cb.SetDoneHandler(func(client.CallbackDoneEvent) {
		t.router.surfaceGone(id)
		t.pump.Push(displayloop.LifecycleEvent{Type: displayloop.Destroyed, Window: id})
	})
	return nil
}

// Close destroys any remaining surfaces and closes the connection.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	t.mu.Lock()
	if !t.dead {
		for id, surface := range t.surfaces {
			_ = surface.Destroy()
			delete(t.surfaces, id)
		}
	}
	for id, cb := range t.destroying {
		_ = cb.Destroy()
		delete(t.destroying, id)
	}
	t.mu.Unlock()

	err := t.pump.Close()
	if e := t.display.Context().Close(); e != nil && err == nil {
		err = fmt.Errorf("wayland: close connection: %w", e)
	}
	return err
}
