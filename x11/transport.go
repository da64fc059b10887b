package x11

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/joeycumines/go-displayloop"
	"github.com/joeycumines/go-displayloop/internal/pump"
	"github.com/joeycumines/logiface"
)

const (
	defaultWidth  = 640
	defaultHeight = 480

	windowEventMask = xproto.EventMaskKeyPress |
		xproto.EventMaskKeyRelease |
		xproto.EventMaskButtonPress |
		xproto.EventMaskButtonRelease |
		xproto.EventMaskPointerMotion |
		xproto.EventMaskEnterWindow |
		xproto.EventMaskLeaveWindow |
		xproto.EventMaskExposure |
		xproto.EventMaskFocusChange |
		xproto.EventMaskStructureNotify |
		xproto.EventMaskPropertyChange

	helperEventMask = xproto.EventMaskStructureNotify |
		xproto.EventMaskPropertyChange
)

// Config configures Dial.
type Config struct {
	Logger *logiface.Logger[logiface.Event]
	// Display is the X display name, empty for $DISPLAY.
	Display string
	// DisablePresent skips Present extension negotiation.
	DisablePresent bool
}

type item struct {
	ev  xgb.Event
	err xgb.Error
}

// Transport is a [displayloop.Transport] backed by an xgb connection.
//
// xgb reads the socket on its own goroutine, so a reader goroutine moves
// events into a pump whose descriptor is what the loop polls.
type Transport struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	pump   *pump.Pump[item]
	logger *logiface.Logger[logiface.Event]
	dec    decoder
	caps   displayloop.Capabilities
	helper xproto.Window
	closed bool
	dead   bool
}

var _ displayloop.Transport = (*Transport)(nil)

// Dial connects to the X server, negotiates optional extensions and creates
// the helper window. Failures are startup [displayloop.FatalError] values.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, displayloop.Startup(err)
	}

	conn, err := xgb.NewConnDisplay(cfg.Display)
	if err != nil {
		return nil, displayloop.Startup(fmt.Errorf("x11: connect to %q: %w", cfg.Display, err))
	}

	t := &Transport{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		logger: cfg.Logger,
	}

	var success bool
	defer func() {
		if !success {
			if t.pump != nil {
				_ = t.pump.Close()
			}
			conn.Close()
		}
	}()

	if err := t.internAtoms(); err != nil {
		return nil, displayloop.Startup(err)
	}

	t.negotiate(cfg)

	if err := t.createHelper(); err != nil {
		return nil, displayloop.Startup(err)
	}

	if t.pump, err = pump.New[item](); err != nil {
		return nil, displayloop.Startup(fmt.Errorf("x11: create event pump: %w", err))
	}
	t.pump.Go(t.waitForEvent)

	if err := ctx.Err(); err != nil {
		return nil, displayloop.Startup(err)
	}

	success = true
	return t, nil
}

func (t *Transport) internAtoms() error {
	for _, a := range [...]struct {
		atom *xproto.Atom
		name string
	}{
		{&t.dec.atoms.wmProtocols, "WM_PROTOCOLS"},
		{&t.dec.atoms.wmDeleteWindow, "WM_DELETE_WINDOW"},
		{&t.dec.atoms.netWmPid, "_NET_WM_PID"},
		{&t.dec.atoms.netWmName, "_NET_WM_NAME"},
		{&t.dec.atoms.utf8String, "UTF8_STRING"},
	} {
		reply, err := xproto.InternAtom(t.conn, false, uint16(len(a.name)), a.name).Reply()
		if err != nil {
			return fmt.Errorf("x11: intern atom %s: %w", a.name, err)
		}
		if reply == nil {
			return fmt.Errorf("x11: intern atom %s: no reply", a.name)
		}
		*a.atom = reply.Atom
	}
	return nil
}

// negotiate probes optional extensions. Every failure here only disables
// a capability.
func (t *Transport) negotiate(cfg Config) {
	if rate, err := refreshRate(t.conn, t.screen.Root); err != nil {
		t.logger.Info().
			Err(err).
			Log("x11: refresh rate unavailable, using default idle cadence")
	} else {
		t.caps.RefreshRate = rate
	}

	if cfg.DisablePresent {
		t.logger.Info().Log("x11: Present extension disabled by configuration")
	} else {
		const name = "Present"
		reply, err := xproto.QueryExtension(t.conn, uint16(len(name)), name).Reply()
		switch {
		case err != nil:
			t.logger.Info().Err(err).Log("x11: Present query failed")
		case reply == nil || !reply.Present:
			t.logger.Info().Log("x11: Present extension not available")
		default:
			t.caps.Presentation = true
			t.dec.presentOpcode = reply.MajorOpcode
		}
	}

	if err := xfixes.Init(t.conn); err != nil {
		t.logger.Info().Err(err).Log("x11: XFIXES extension not available")
	} else if _, err := xfixes.QueryVersion(t.conn, 5, 0).Reply(); err != nil {
		t.logger.Info().Err(err).Log("x11: XFIXES version negotiation failed")
	} else {
		t.caps.Fixes = true
		t.dec.fixesOpcode = t.conn.Extensions["XFIXES"]
	}

	t.logger.Debug().
		Float64("refresh_rate", t.caps.RefreshRate).
		Bool("present", t.caps.Presentation).
		Bool("xfixes", t.caps.Fixes).
		Log("x11: capabilities negotiated")
}

// createHelper creates the hidden input-only window that receives
// application-scope events.
func (t *Transport) createHelper() error {
	id, err := xproto.NewWindowId(t.conn)
	if err != nil {
		return fmt.Errorf("x11: allocate helper window id: %w", err)
	}
	if err := xproto.CreateWindowChecked(
		t.conn,
		0, // depth: CopyFromParent
		id,
		t.screen.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOnly,
		0, // visual: CopyFromParent
		xproto.CwEventMask,
		[]uint32{helperEventMask},
	).Check(); err != nil {
		return fmt.Errorf("x11: create helper window: %w", err)
	}
	t.helper = id
	return nil
}

// waitForEvent runs on the pump goroutine.
func (t *Transport) waitForEvent() (item, error) {
	ev, xerr := t.conn.WaitForEvent()
	if ev == nil && xerr == nil {
		return item{}, displayloop.ErrTransportClosed
	}
	return item{ev: ev, err: xerr}, nil
}

// PollEvent returns the next decoded event without blocking.
func (t *Transport) PollEvent() (displayloop.Event, error) {
	for {
		it, ok, err := t.pump.Pop()
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
		if ev := t.dec.decode(it.ev, it.err); ev != nil {
			return ev, nil
		}
	}
}

// Flush reports a closed connection. Requests are written by xgb as they
// are issued, so there is nothing to flush.
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

// HelperWindow returns the input-only helper window.
func (t *Transport) HelperWindow() displayloop.WindowID {
	return displayloop.WindowID(t.helper)
}

// CreateWindow creates and (unless hidden) maps a top-level window,
// returning after the server has acknowledged the creation.
func (t *Transport) CreateWindow(opts displayloop.WindowOptions) (displayloop.WindowID, error) {
	if t.closed || t.dead {
		return 0, displayloop.ErrTransportClosed
	}

	width, height := opts.Width, opts.Height
	if width == 0 {
		width = defaultWidth
	}
	if height == 0 {
		height = defaultHeight
	}

	id, err := xproto.NewWindowId(t.conn)
	if err != nil {
		return 0, fmt.Errorf("x11: allocate window id: %w", err)
	}
	if err := xproto.CreateWindowChecked(
		t.conn,
		t.screen.RootDepth,
		id,
		t.screen.Root,
		opts.X, opts.Y, width, height, 0,
		xproto.WindowClassInputOutput,
		t.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{t.screen.WhitePixel, windowEventMask},
	).Check(); err != nil {
		return 0, fmt.Errorf("x11: create window: %w", err)
	}

	atoms := &t.dec.atoms
	t.changeProperty32(id, atoms.wmProtocols, xproto.AtomAtom, uint32(atoms.wmDeleteWindow))
	t.changeProperty32(id, atoms.netWmPid, xproto.AtomCardinal, uint32(os.Getpid()))
	if opts.Title != "" {
		title := []byte(opts.Title)
		xproto.ChangeProperty(t.conn, xproto.PropModeReplace, id, xproto.AtomWmName, xproto.AtomString, 8, uint32(len(title)), title)
		xproto.ChangeProperty(t.conn, xproto.PropModeReplace, id, atoms.netWmName, atoms.utf8String, 8, uint32(len(title)), title)
	}
	if !opts.Hidden {
		xproto.MapWindow(t.conn, id)
	}

	t.logger.Debug().
		Uint64("window", uint64(id)).
		Log("x11: window created")

	return displayloop.WindowID(id), nil
}

func (t *Transport) changeProperty32(w xproto.Window, prop, typ xproto.Atom, values ...uint32) {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	xproto.ChangeProperty(t.conn, xproto.PropModeReplace, w, prop, typ, 32, uint32(len(values)), b)
}

// DestroyWindow requests destruction; the DestroyNotify arrives later.
func (t *Transport) DestroyWindow(id displayloop.WindowID) error {
	if t.closed || t.dead {
		return displayloop.ErrTransportClosed
	}
	xproto.DestroyWindow(t.conn, xproto.Window(id))
	return nil
}

// Close destroys the helper window and closes the connection.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	if !t.dead && t.helper != 0 {
		if e := xproto.DestroyWindowChecked(t.conn, t.helper).Check(); e != nil {
			err = fmt.Errorf("x11: destroy helper window: %w", e)
		}
	}
	if e := t.pump.Close(); e != nil && err == nil {
		err = e
	}
	t.conn.Close()
	return err
}
