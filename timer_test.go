package displayloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimers_dueBeforeOrdering(t *testing.T) {
	base := time.Unix(1000, 0)
	d1, d2, d3 := base.Add(10*time.Millisecond), base.Add(20*time.Millisecond), base.Add(30*time.Millisecond)

	var timers Timers
	t3 := timers.Schedule(d3)
	t1 := timers.Schedule(d1)
	t2 := timers.Schedule(d2)

	next, ok := timers.NextDeadline()
	require.True(t, ok)
	assert.True(t, next.Equal(d1))

	assert.Empty(t, timers.DueBefore(base))
	assert.Equal(t, []TimerToken{t1}, timers.DueBefore(d1))
	assert.Equal(t, 2, timers.Len())
	assert.Equal(t, []TimerToken{t2, t3}, timers.DueBefore(d3.Add(time.Hour)))
	assert.Zero(t, timers.Len())

	_, ok = timers.NextDeadline()
	assert.False(t, ok)
}

func TestTimers_tiesFireInInsertionOrder(t *testing.T) {
	at := time.Unix(50, 0)
	var timers Timers
	var want []TimerToken
	for i := 0; i < 10; i++ {
		want = append(want, timers.Schedule(at))
	}
	assert.Equal(t, want, timers.DueBefore(at))
}

func TestTimers_tokensAreUnique(t *testing.T) {
	var a, b Timers
	seen := make(map[TimerToken]bool)
	for i := 0; i < 100; i++ {
		for _, tok := range []TimerToken{a.Schedule(time.Time{}), b.Schedule(time.Time{})} {
			require.NotZero(t, tok)
			require.False(t, seen[tok])
			seen[tok] = true
		}
	}
}

func TestTimers_cancelAll(t *testing.T) {
	var timers Timers
	timers.Schedule(time.Unix(1, 0))
	timers.Schedule(time.Unix(2, 0))
	timers.CancelAll()
	assert.Zero(t, timers.Len())
	assert.Empty(t, timers.DueBefore(time.Unix(3, 0)))
}

func TestApplication_fireTimersAcrossWindows(t *testing.T) {
	base := time.Unix(2000, 0)
	f := newFakeTransport(t)
	f.ids = []WindowID{1000, 2000}
	a := newTestApp(t, f, WithClock(func() time.Time { return base }))

	ha, hb := &recordingHandler{}, &recordingHandler{}
	wa, err := a.CreateWindow(WindowOptions{}, ha)
	require.NoError(t, err)
	wb, err := a.CreateWindow(WindowOptions{}, hb)
	require.NoError(t, err)

	a10 := wa.RequestTimer(10 * time.Millisecond)
	a30 := wa.RequestTimer(30 * time.Millisecond)
	b20 := wb.ScheduleTimer(base.Add(20 * time.Millisecond))

	next, ok := a.nextTimerDeadline()
	require.True(t, ok)
	assert.True(t, next.Equal(base.Add(10*time.Millisecond)))

	a.fireTimers(base.Add(25 * time.Millisecond))
	assert.Equal(t, []TimerToken{a10}, ha.timers)
	assert.Equal(t, []TimerToken{b20}, hb.timers)

	next, ok = a.nextTimerDeadline()
	require.True(t, ok)
	assert.True(t, next.Equal(base.Add(30*time.Millisecond)))

	a.fireTimers(base.Add(30 * time.Millisecond))
	assert.Equal(t, []TimerToken{a10, a30}, ha.timers)
	_, ok = a.nextTimerDeadline()
	assert.False(t, ok)
}

func TestApplication_timerDestroyingWindowStopsItsTimers(t *testing.T) {
	base := time.Unix(3000, 0)
	f := newFakeTransport(t)
	a := newTestApp(t, f, WithClock(func() time.Time { return base }))

	h := &recordingHandler{
		onTimer: func(h *recordingHandler, token TimerToken) {
			h.window.app.dispatch(LifecycleEvent{Type: Destroyed, Window: h.window.ID()})
		},
	}
	w, err := a.CreateWindow(WindowOptions{}, h)
	require.NoError(t, err)
	w.RequestTimer(time.Millisecond)
	w.RequestTimer(2 * time.Millisecond)

	a.fireTimers(base.Add(time.Second))
	assert.Len(t, h.timers, 1)
	assert.Equal(t, 1, h.destroyed)
}
