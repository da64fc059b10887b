package displayloop

import (
	"fmt"
)

// WindowID is the server-assigned window identifier. It is opaque, unique
// while the window is live, and may be reused after destruction. Zero is
// never a valid window.
type WindowID uint32

// Event is a decoded transport event. The set of implementations is closed:
// [InputEvent], [LifecycleEvent], [SelectionEvent], [CapabilityEvent],
// [RequestErrorEvent] and [ProtocolErrorEvent].
type Event interface {
	// Kind returns a short name used for logging.
	Kind() string
	isEvent()
}

// InputKind enumerates window-addressed input events.
type InputKind uint8

const (
	KeyPress InputKind = iota + 1
	KeyRelease
	ButtonPress
	ButtonRelease
	Wheel
	Motion
	Enter
	Leave
	Expose
	FocusIn
	FocusOut
	Configure
	CloseRequest
	ClientMessage
)

var inputKindNames = [...]string{
	KeyPress:        "KEY_PRESS",
	KeyRelease:      "KEY_RELEASE",
	ButtonPress:     "BUTTON_PRESS",
	ButtonRelease:   "BUTTON_RELEASE",
	Wheel:           "WHEEL",
	Motion:          "MOTION_NOTIFY",
	Enter:           "ENTER_NOTIFY",
	Leave:           "LEAVE_NOTIFY",
	Expose:          "EXPOSE",
	FocusIn:         "FOCUS_IN",
	FocusOut:        "FOCUS_OUT",
	Configure:       "CONFIGURE_NOTIFY",
	CloseRequest:    "CLOSE_REQUEST",
	ClientMessage:   "CLIENT_MESSAGE",
}

// String returns the wire-style name of the kind.
func (k InputKind) String() string {
	if int(k) < len(inputKindNames) && inputKindNames[k] != "" {
		return inputKindNames[k]
	}
	return fmt.Sprintf("INPUT(%d)", uint8(k))
}

// InputEvent is addressed to a single window. Only the fields relevant to
// the kind are populated; the loop never interprets them.
type InputEvent struct {
	Data   []byte
	Window WindowID
	// Time is the server timestamp, zero if the event carries none.
	Time uint32
	// Detail is the keycode, button, or client message type.
	Detail uint32
	State  uint32
	X      float64
	Y      float64
	Width  uint32
	Height uint32
	Type   InputKind
}

func (e InputEvent) Kind() string { return e.Type.String() }
func (InputEvent) isEvent()       {}

// LifecycleKind enumerates window lifecycle notifications.
type LifecycleKind uint8

const (
	Created LifecycleKind = iota + 1
	Destroyed
	Reparented
	Mapped
	Unmapped
)

// String returns the wire-style name of the kind.
func (k LifecycleKind) String() string {
	switch k {
	case Created:
		return "CREATE_NOTIFY"
	case Destroyed:
		return "DESTROY_NOTIFY"
	case Reparented:
		return "REPARENT_NOTIFY"
	case Mapped:
		return "MAP_NOTIFY"
	case Unmapped:
		return "UNMAP_NOTIFY"
	default:
		return fmt.Sprintf("LIFECYCLE(%d)", uint8(k))
	}
}

// LifecycleEvent acknowledges a change in the server-side existence of a
// window. Destroyed is the confirmation that removes a registry entry.
type LifecycleEvent struct {
	Window WindowID
	Parent WindowID
	Type   LifecycleKind
}

func (e LifecycleEvent) Kind() string { return e.Type.String() }
func (LifecycleEvent) isEvent()       {}

// SelectionKind enumerates application-scope selection events.
type SelectionKind uint8

const (
	SelectionRequest SelectionKind = iota + 1
	SelectionClear
	SelectionNotify
	PropertyNotify
)

// String returns the wire-style name of the kind.
func (k SelectionKind) String() string {
	switch k {
	case SelectionRequest:
		return "SELECTION_REQUEST"
	case SelectionClear:
		return "SELECTION_CLEAR"
	case SelectionNotify:
		return "SELECTION_NOTIFY"
	case PropertyNotify:
		return "PROPERTY_NOTIFY"
	default:
		return fmt.Sprintf("SELECTION(%d)", uint8(k))
	}
}

// SelectionEvent is not addressed to a single window; it is broadcast to
// every registered [SelectionHandler].
type SelectionEvent struct {
	Owner     WindowID
	Requestor WindowID
	Selection uint32
	Target    uint32
	Property  uint32
	Time      uint32
	Type      SelectionKind
}

func (e SelectionEvent) Kind() string { return e.Type.String() }
func (SelectionEvent) isEvent()       {}

// Capability names an optional protocol feature negotiated at connect time.
type Capability uint8

const (
	CapPresentation Capability = iota + 1
	CapFixes
)

// String returns a human-readable representation of the capability.
func (c Capability) String() string {
	switch c {
	case CapPresentation:
		return "presentation"
	case CapFixes:
		return "fixes"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

// CapabilityEvent reports that the server rejected use of an optional
// extension. The capability is disabled; this is not an error.
type CapabilityEvent struct {
	Err        error
	Capability Capability
}

func (e CapabilityEvent) Kind() string { return "CAPABILITY_DOWNGRADE" }
func (CapabilityEvent) isEvent()       {}

// RequestErrorEvent is a server-reported error for a core request, e.g. a
// request racing the destruction of its window. It is logged and dropped.
type RequestErrorEvent struct {
	Err    error
	Window WindowID
}

func (e RequestErrorEvent) Kind() string { return "REQUEST_ERROR" }
func (RequestErrorEvent) isEvent()       {}

// ProtocolErrorEvent reports a malformed or corrupted transport stream.
// When Fatal is set the loop terminates.
type ProtocolErrorEvent struct {
	Err   error
	Fatal bool
}

func (e ProtocolErrorEvent) Kind() string { return "PROTOCOL_ERROR" }
func (ProtocolErrorEvent) isEvent()       {}

// timestampOf returns the server timestamp carried by ev, if any.
func timestampOf(ev Event) (uint32, bool) {
	switch ev := ev.(type) {
	case InputEvent:
		return ev.Time, ev.Time != 0
	case SelectionEvent:
		if ev.Type == PropertyNotify {
			return ev.Time, ev.Time != 0
		}
	}
	return 0, false
}
