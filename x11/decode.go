package x11

import (
	"reflect"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/joeycumines/go-displayloop"
)

// atoms interned at connect time.
type atoms struct {
	wmProtocols    xproto.Atom
	wmDeleteWindow xproto.Atom
	netWmPid       xproto.Atom
	netWmName      xproto.Atom
	utf8String     xproto.Atom
}

// decoder converts xgb events into the displayloop event set. It only
// reads state fixed at connect time, so it is safe to use from any
// goroutine.
type decoder struct {
	atoms atoms
	// presentOpcode and fixesOpcode are extension major opcodes, zero if
	// the extension is unavailable or disabled.
	presentOpcode byte
	fixesOpcode   byte
}

// decode returns nil for events the loop has no use for.
func (d *decoder) decode(ev xgb.Event, xerr xgb.Error) displayloop.Event {
	if xerr != nil {
		return d.decodeError(xerr)
	}

	switch ev := ev.(type) {
	case xproto.KeyPressEvent:
		return keyEvent(displayloop.KeyPress, xproto.KeyPressEvent(ev))
	case xproto.KeyReleaseEvent:
		return keyEvent(displayloop.KeyRelease, xproto.KeyPressEvent(ev))

	case xproto.ButtonPressEvent:
		if isWheel(ev.Detail) {
			return buttonEvent(displayloop.Wheel, ev)
		}
		return buttonEvent(displayloop.ButtonPress, ev)
	case xproto.ButtonReleaseEvent:
		if isWheel(ev.Detail) {
			// wheel buttons report press and release back to back
			return nil
		}
		return buttonEvent(displayloop.ButtonRelease, xproto.ButtonPressEvent(ev))

	case xproto.MotionNotifyEvent:
		return displayloop.InputEvent{
			Type:   displayloop.Motion,
			Window: displayloop.WindowID(ev.Event),
			Time:   uint32(ev.Time),
			Detail: uint32(ev.Detail),
			State:  uint32(ev.State),
			X:      float64(ev.EventX),
			Y:      float64(ev.EventY),
		}

	case xproto.EnterNotifyEvent:
		return crossingEvent(displayloop.Enter, ev)
	case xproto.LeaveNotifyEvent:
		return crossingEvent(displayloop.Leave, xproto.EnterNotifyEvent(ev))

	case xproto.ExposeEvent:
		return displayloop.InputEvent{
			Type:   displayloop.Expose,
			Window: displayloop.WindowID(ev.Window),
			Detail: uint32(ev.Count),
			X:      float64(ev.X),
			Y:      float64(ev.Y),
			Width:  uint32(ev.Width),
			Height: uint32(ev.Height),
		}

	case xproto.FocusInEvent:
		return displayloop.InputEvent{
			Type:   displayloop.FocusIn,
			Window: displayloop.WindowID(ev.Event),
			Detail: uint32(ev.Detail),
			State:  uint32(ev.Mode),
		}
	case xproto.FocusOutEvent:
		return displayloop.InputEvent{
			Type:   displayloop.FocusOut,
			Window: displayloop.WindowID(ev.Event),
			Detail: uint32(ev.Detail),
			State:  uint32(ev.Mode),
		}

	case xproto.ConfigureNotifyEvent:
		return displayloop.InputEvent{
			Type:   displayloop.Configure,
			Window: displayloop.WindowID(ev.Window),
			X:      float64(ev.X),
			Y:      float64(ev.Y),
			Width:  uint32(ev.Width),
			Height: uint32(ev.Height),
		}

	case xproto.ClientMessageEvent:
		return d.clientMessage(ev)

	case xproto.CreateNotifyEvent:
		return displayloop.LifecycleEvent{
			Type:   displayloop.Created,
			Window: displayloop.WindowID(ev.Window),
			Parent: displayloop.WindowID(ev.Parent),
		}
	case xproto.DestroyNotifyEvent:
		return displayloop.LifecycleEvent{
			Type:   displayloop.Destroyed,
			Window: displayloop.WindowID(ev.Window),
			Parent: displayloop.WindowID(ev.Event),
		}
	case xproto.ReparentNotifyEvent:
		return displayloop.LifecycleEvent{
			Type:   displayloop.Reparented,
			Window: displayloop.WindowID(ev.Window),
			Parent: displayloop.WindowID(ev.Parent),
		}
	case xproto.MapNotifyEvent:
		return displayloop.LifecycleEvent{
			Type:   displayloop.Mapped,
			Window: displayloop.WindowID(ev.Window),
		}
	case xproto.UnmapNotifyEvent:
		return displayloop.LifecycleEvent{
			Type:   displayloop.Unmapped,
			Window: displayloop.WindowID(ev.Window),
		}

	case xproto.SelectionRequestEvent:
		return displayloop.SelectionEvent{
			Type:      displayloop.SelectionRequest,
			Owner:     displayloop.WindowID(ev.Owner),
			Requestor: displayloop.WindowID(ev.Requestor),
			Selection: uint32(ev.Selection),
			Target:    uint32(ev.Target),
			Property:  uint32(ev.Property),
			Time:      uint32(ev.Time),
		}
	case xproto.SelectionClearEvent:
		return displayloop.SelectionEvent{
			Type:      displayloop.SelectionClear,
			Owner:     displayloop.WindowID(ev.Owner),
			Selection: uint32(ev.Selection),
			Time:      uint32(ev.Time),
		}
	case xproto.SelectionNotifyEvent:
		return displayloop.SelectionEvent{
			Type:      displayloop.SelectionNotify,
			Requestor: displayloop.WindowID(ev.Requestor),
			Selection: uint32(ev.Selection),
			Target:    uint32(ev.Target),
			Property:  uint32(ev.Property),
			Time:      uint32(ev.Time),
		}
	case xproto.PropertyNotifyEvent:
		return displayloop.SelectionEvent{
			Type:     displayloop.PropertyNotify,
			Owner:    displayloop.WindowID(ev.Window),
			Property: uint32(ev.Atom),
			Time:     uint32(ev.Time),
		}

	default:
		return nil
	}
}

func (d *decoder) clientMessage(ev xproto.ClientMessageEvent) displayloop.Event {
	out := displayloop.InputEvent{
		Type:   displayloop.ClientMessage,
		Window: displayloop.WindowID(ev.Window),
		Detail: uint32(ev.Type),
		Data:   ev.Bytes(),
	}
	if ev.Format == 32 && ev.Type == d.atoms.wmProtocols && d.atoms.wmProtocols != 0 &&
		len(ev.Data.Data32) >= 2 && xproto.Atom(ev.Data.Data32[0]) == d.atoms.wmDeleteWindow {
		out.Type = displayloop.CloseRequest
		out.Time = ev.Data.Data32[1]
	}
	return out
}

// decodeError classifies a server error. Errors against the Present or
// XFIXES extensions downgrade the matching capability; length and
// implementation errors mean the stream can no longer be trusted.
func (d *decoder) decodeError(xerr xgb.Error) displayloop.Event {
	switch xerr.(type) {
	case xproto.LengthError, xproto.ImplementationError:
		return displayloop.ProtocolErrorEvent{Err: xerr, Fatal: true}
	}

	if op, ok := majorOpcode(xerr); ok && op != 0 {
		switch op {
		case d.presentOpcode:
			return displayloop.CapabilityEvent{Capability: displayloop.CapPresentation, Err: xerr}
		case d.fixesOpcode:
			return displayloop.CapabilityEvent{Capability: displayloop.CapFixes, Err: xerr}
		}
	}

	var window displayloop.WindowID
	if _, ok := xerr.(xproto.WindowError); ok {
		window = displayloop.WindowID(xerr.BadId())
	}
	return displayloop.RequestErrorEvent{Err: xerr, Window: window}
}

// majorOpcode extracts the MajorOpcode field common to every generated
// xgb error type.
func majorOpcode(xerr xgb.Error) (byte, bool) {
	v := reflect.ValueOf(xerr)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, false
	}
	f := v.FieldByName("MajorOpcode")
	if !f.IsValid() || f.Kind() != reflect.Uint8 {
		return 0, false
	}
	return byte(f.Uint()), true
}

func isWheel(button xproto.Button) bool {
	return button >= 4 && button <= 7
}

func keyEvent(kind displayloop.InputKind, ev xproto.KeyPressEvent) displayloop.Event {
	return displayloop.InputEvent{
		Type:   kind,
		Window: displayloop.WindowID(ev.Event),
		Time:   uint32(ev.Time),
		Detail: uint32(ev.Detail),
		State:  uint32(ev.State),
		X:      float64(ev.EventX),
		Y:      float64(ev.EventY),
	}
}

func buttonEvent(kind displayloop.InputKind, ev xproto.ButtonPressEvent) displayloop.Event {
	return displayloop.InputEvent{
		Type:   kind,
		Window: displayloop.WindowID(ev.Event),
		Time:   uint32(ev.Time),
		Detail: uint32(ev.Detail),
		State:  uint32(ev.State),
		X:      float64(ev.EventX),
		Y:      float64(ev.EventY),
	}
}

func crossingEvent(kind displayloop.InputKind, ev xproto.EnterNotifyEvent) displayloop.Event {
	return displayloop.InputEvent{
		Type:   kind,
		Window: displayloop.WindowID(ev.Event),
		Time:   uint32(ev.Time),
		Detail: uint32(ev.Detail),
		State:  uint32(ev.State),
		X:      float64(ev.EventX),
		Y:      float64(ev.EventY),
	}
}
