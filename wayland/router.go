package wayland

import (
	"github.com/joeycumines/go-displayloop"
)

const (
	seatCapabilityPointer  = 1
	seatCapabilityKeyboard = 2

	keyStatePressed    = 1
	buttonStatePressed = 1

	axisVerticalScroll   = 0
	axisHorizontalScroll = 1
)

// router turns seat events into window-addressed input events. Wayland only
// names the surface on enter and leave, so the focused surface is tracked
// here and used to address everything in between.
//
// It is only used from the dispatch goroutine.
type router struct {
	push          func(displayloop.Event) bool
	pointerFocus  displayloop.WindowID
	keyboardFocus displayloop.WindowID
	mods          uint32
	pointerX      float64
	pointerY      float64
}

func (r *router) emit(ev displayloop.InputEvent) {
	if ev.Window == 0 {
		return
	}
	r.push(ev)
}

func (r *router) pointerEnter(id displayloop.WindowID, x, y float64) {
	r.pointerFocus = id
	r.pointerX, r.pointerY = x, y
	r.emit(displayloop.InputEvent{
		Type:   displayloop.Enter,
		Window: id,
		X:      x,
		Y:      y,
	})
}

func (r *router) pointerLeave(id displayloop.WindowID) {
	if id == 0 {
		id = r.pointerFocus
	}
	if id == r.pointerFocus {
		r.pointerFocus = 0
	}
	r.emit(displayloop.InputEvent{
		Type:   displayloop.Leave,
		Window: id,
		X:      r.pointerX,
		Y:      r.pointerY,
	})
}

func (r *router) pointerMotion(time uint32, x, y float64) {
	r.pointerX, r.pointerY = x, y
	r.emit(displayloop.InputEvent{
		Type:   displayloop.Motion,
		Window: r.pointerFocus,
		Time:   time,
		State:  r.mods,
		X:      x,
		Y:      y,
	})
}

func (r *router) pointerButton(time, button, state uint32) {
	kind := displayloop.ButtonRelease
	if state == buttonStatePressed {
		kind = displayloop.ButtonPress
	}
	r.emit(displayloop.InputEvent{
		Type:   kind,
		Window: r.pointerFocus,
		Time:   time,
		Detail: button,
		State:  r.mods,
		X:      r.pointerX,
		Y:      r.pointerY,
	})
}

func (r *router) pointerAxis(time, axis uint32, value float64) {
	ev := displayloop.InputEvent{
		Type:   displayloop.Wheel,
		Window: r.pointerFocus,
		Time:   time,
		Detail: axis,
		State:  r.mods,
	}
	switch axis {
	case axisVerticalScroll:
		ev.Y = value
	case axisHorizontalScroll:
		ev.X = value
	default:
		return
	}
	r.emit(ev)
}

func (r *router) keyboardEnter(id displayloop.WindowID) {
	r.keyboardFocus = id
	r.emit(displayloop.InputEvent{
		Type:   displayloop.FocusIn,
		Window: id,
	})
}

func (r *router) keyboardLeave(id displayloop.WindowID) {
	if id == 0 {
		id = r.keyboardFocus
	}
	if id == r.keyboardFocus {
		r.keyboardFocus = 0
	}
	r.emit(displayloop.InputEvent{
		Type:   displayloop.FocusOut,
		Window: id,
	})
}

func (r *router) key(time, key, state uint32) {
	kind := displayloop.KeyRelease
	if state == keyStatePressed {
		kind = displayloop.KeyPress
	}
	r.emit(displayloop.InputEvent{
		Type:   kind,
		Window: r.keyboardFocus,
		Time:   time,
		Detail: key,
		State:  r.mods,
	})
}

func (r *router) modifiers(depressed, latched, locked uint32) {
	r.mods = depressed | latched | locked
}

// surfaceGone drops focus held by a destroyed surface.
func (r *router) surfaceGone(id displayloop.WindowID) {
	if r.pointerFocus == id {
		r.pointerFocus = 0
	}
	if r.keyboardFocus == id {
		r.keyboardFocus = 0
	}
}
