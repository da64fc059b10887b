//go:build linux || darwin

package displayloop

// dispatch routes one decoded event. Failures are isolated per event;
// only a fatal protocol error stops the loop.
func (a *Application) dispatch(ev Event) {
	a.metrics.add(eventsDispatched, 1)
	a.conn.observe(ev)

	switch ev := ev.(type) {
	case InputEvent:
		a.dispatchInput(ev)

	case LifecycleEvent:
		a.dispatchLifecycle(ev)

	case SelectionEvent:
		for _, h := range a.selectionHandlers {
			a.invoke(0, ev.Kind(), func() error {
				return h.HandleSelection(a.conn, ev)
			})
		}

	case CapabilityEvent:
		if a.conn.downgrade(ev.Capability) {
			b := a.logger.Info().Stringer("capability", ev.Capability)
			if ev.Err != nil {
				b = b.Err(ev.Err)
			}
			b.Log("server rejected optional extension, capability disabled")
		}

	case RequestErrorEvent:
		a.logger.Warning().
			Err(ev.Err).
			Uint64("window", uint64(ev.Window)).
			Log("server reported request error")

	case ProtocolErrorEvent:
		if ev.Fatal {
			a.fail(ev.Err)
			return
		}
		a.logger.Warning().
			Err(ev.Err).
			Log("non-fatal protocol error")

	default:
		a.logger.Debug().
			Str("kind", ev.Kind()).
			Log("unhandled event")
	}
}

func (a *Application) dispatchInput(ev InputEvent) {
	if helper := a.conn.transport.HelperWindow(); helper != 0 && ev.Window == helper {
		return
	}
	w, ok := a.registry.Lookup(ev.Window)
	if !ok {
		a.routingMiss(ev.Window, ev.Kind())
		return
	}
	w.observeFocus(ev)
	a.invoke(w.id, ev.Kind(), func() error {
		return w.handler.HandleEvent(ev)
	})
}

func (a *Application) dispatchLifecycle(ev LifecycleEvent) {
	helper := a.conn.transport.HelperWindow()
	if helper != 0 && ev.Window == helper {
		if ev.Type == Destroyed && a.state.TransitionAny([]State{StateRunning, StateQuitting}, StateFinalizing) {
			a.logger.Info().
				Uint64("window", uint64(helper)).
				Log("helper window destroyed, terminating")
		}
		return
	}

	w, ok := a.registry.Lookup(ev.Window)
	if !ok {
		if ev.Type == Destroyed {
			a.routingMiss(ev.Window, ev.Kind())
		}
		return
	}

	if ev.Type != Destroyed {
		a.invoke(w.id, ev.Kind(), func() error {
			return w.handler.HandleEvent(ev)
		})
		return
	}

	a.removeWindow(w)
}

// removeWindow tears down a window the server no longer knows about, and
// finalizes a quitting application once the last one is gone.
func (a *Application) removeWindow(w *Window) {
	a.invoke(w.id, Destroyed.String(), func() error {
		w.handler.Destroyed()
		return nil
	})
	w.idle.close()
	w.timers.CancelAll()
	remaining := a.registry.Remove(w.id)

	a.logger.Debug().
		Uint64("window", uint64(w.id)).
		Int("windows", remaining).
		Log("window destroyed")

	if remaining == 0 && a.state.TryTransition(StateQuitting, StateFinalizing) {
		a.logger.Info().Log("last window destroyed while quitting, finalizing")
	}
}

// routingMiss handles an event for a window that is not registered, which
// is expected when events race a destruction.
func (a *Application) routingMiss(id WindowID, kind string) {
	a.metrics.add(routingMisses, 1)
	if _, ok := a.missLimiter.Allow(id); !ok {
		return
	}
	a.logger.Debug().
		Uint64("window", uint64(id)).
		Str("kind", kind).
		Log("dropping event for unknown window")
}

// invoke calls fn, logging any error or recovered panic.
func (a *Application) invoke(id WindowID, kind string, fn func() error) {
	err := safeCall(fn)
	if err == nil {
		return
	}
	a.metrics.add(handlerErrors, 1)
	a.logger.Err().
		Err(&HandlerError{Kind: kind, Window: id, Err: err}).
		Str("kind", kind).
		Uint64("window", uint64(id)).
		Log("handler failed")
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn()
}
