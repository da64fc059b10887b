package displayloop

import (
	"sync"
	"testing"

	"github.com/joeycumines/go-displayloop/internal/pump"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport. Events injected from the test
// goroutine are delivered through a real pump, so the loop blocks in poll.
type fakeTransport struct {
	events     *pump.Pump[Event]
	createErr  error
	destroyErr error
	caps       Capabilities
	created    []WindowID
	destroyed  []WindowID
	ids        []WindowID
	mu         sync.Mutex
	nextID     WindowID
	helper     WindowID
	closeCalls int
	flushes    int
	// autoConfirm injects a Destroyed event for each DestroyWindow call
	autoConfirm bool
}

func newFakeTransport(t *testing.T) *fakeTransport {
	t.Helper()
	p, err := pump.New[Event]()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return &fakeTransport{
		events: p,
		nextID: 100,
		helper: 1,
	}
}

func (f *fakeTransport) inject(events ...Event) {
	for _, ev := range events {
		f.events.Push(ev)
	}
}

func (f *fakeTransport) PollEvent() (Event, error) {
	ev, ok, err := f.events.Pop()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return ev, nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeTransport) Fd() int { return f.events.Fd() }

func (f *fakeTransport) Capabilities() Capabilities { return f.caps }

func (f *fakeTransport) HelperWindow() WindowID { return f.helper }

func (f *fakeTransport) CreateWindow(WindowOptions) (WindowID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	var id WindowID
	if len(f.ids) != 0 {
		id, f.ids = f.ids[0], f.ids[1:]
	} else {
		id = f.nextID
		f.nextID++
	}
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeTransport) DestroyWindow(id WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	f.destroyed = append(f.destroyed, id)
	if f.autoConfirm {
		f.events.Push(LifecycleEvent{Type: Destroyed, Window: id})
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return f.events.Close()
}

func (f *fakeTransport) destroyRequests() []WindowID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WindowID(nil), f.destroyed...)
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// recordingHandler records every callback. It is only touched on the loop
// goroutine, or after Run has returned.
type recordingHandler struct {
	window    *Window
	onEvent   func(h *recordingHandler, ev Event) error
	onTimer   func(h *recordingHandler, token TimerToken)
	onIdle    func(h *recordingHandler, token IdleToken)
	events    []Event
	timers    []TimerToken
	idle      []IdleToken
	calls     []string
	destroyed int
	redraws   int
}

func (h *recordingHandler) Connect(w *Window) {
	h.window = w
	h.calls = append(h.calls, "connect")
}

func (h *recordingHandler) HandleEvent(ev Event) error {
	h.events = append(h.events, ev)
	h.calls = append(h.calls, ev.Kind())
	if h.onEvent != nil {
		return h.onEvent(h, ev)
	}
	return nil
}

func (h *recordingHandler) Timer(token TimerToken) {
	h.timers = append(h.timers, token)
	h.calls = append(h.calls, "timer")
	if h.onTimer != nil {
		h.onTimer(h, token)
	}
}

func (h *recordingHandler) Idle(token IdleToken) {
	h.idle = append(h.idle, token)
	h.calls = append(h.calls, "idle")
	if h.onIdle != nil {
		h.onIdle(h, token)
	}
}

func (h *recordingHandler) Destroyed() {
	h.destroyed++
	h.calls = append(h.calls, "destroyed")
}

func (h *recordingHandler) Redraw() error {
	h.redraws++
	h.calls = append(h.calls, "redraw")
	return nil
}
