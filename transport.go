package displayloop

// Transport is the live channel to the display server. Implementations are
// provided by the x11 and wayland packages.
//
// All methods except Fd are called from the loop goroutine only.
type Transport interface {
	// PollEvent returns the next decoded event without blocking, or
	// (nil, nil) if nothing is buffered. A non-nil error is fatal.
	PollEvent() (Event, error)

	// Flush writes any queued outgoing requests, blocking until done.
	Flush() error

	// Fd returns the descriptor that becomes readable when PollEvent may
	// return an event.
	Fd() int

	// Capabilities returns the capabilities negotiated at connect time.
	Capabilities() Capabilities

	// HelperWindow returns the hidden window that receives
	// application-scope events, or zero if the backend has none.
	HelperWindow() WindowID

	// CreateWindow creates a window, returning once the server has
	// acknowledged it.
	CreateWindow(opts WindowOptions) (WindowID, error)

	// DestroyWindow requests destruction. Confirmation arrives later as a
	// [LifecycleEvent] of type [Destroyed].
	DestroyWindow(id WindowID) error

	// Close destroys the helper window and releases the connection.
	// Calling it more than once is a no-op.
	Close() error
}

// Capabilities are the optional protocol features available on a connection.
type Capabilities struct {
	// RefreshRate of the primary output in Hz, zero if unknown.
	RefreshRate float64
	// Presentation is a vsync-aligned presentation extension
	// (X11 Present, wp_presentation).
	Presentation bool
	// Fixes is the X11 XFIXES extension.
	Fixes bool
}

// Has reports whether the capability is enabled.
func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapPresentation:
		return c.Presentation
	case CapFixes:
		return c.Fixes
	default:
		return false
	}
}

func (c *Capabilities) disable(capability Capability) bool {
	switch capability {
	case CapPresentation:
		was := c.Presentation
		c.Presentation = false
		return was
	case CapFixes:
		was := c.Fixes
		c.Fixes = false
		return was
	default:
		return false
	}
}

// WindowOptions are passed through to [Transport.CreateWindow].
type WindowOptions struct {
	Title  string
	X      int16
	Y      int16
	Width  uint16
	Height uint16
	// Hidden skips mapping the window after creation.
	Hidden bool
}

// SelectionHandler receives application-scope selection events, e.g. a
// clipboard or primary-selection implementation.
type SelectionHandler interface {
	HandleSelection(conn *Connection, ev SelectionEvent) error
}

// SelectionHandlerFunc adapts a function to [SelectionHandler].
type SelectionHandlerFunc func(conn *Connection, ev SelectionEvent) error

// HandleSelection calls f.
func (f SelectionHandlerFunc) HandleSelection(conn *Connection, ev SelectionEvent) error {
	return f(conn, ev)
}
