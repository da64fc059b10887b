// Command displayloop-demo opens a few windows on the local display server
// and drives them with timers and redraws requested from another
// goroutine, until the windows are closed or the run time elapses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joeycumines/go-displayloop"
	"github.com/joeycumines/go-displayloop/platform"
	"github.com/joeycumines/logiface"
)

type demoWindow struct {
	logger   *logiface.Logger[logiface.Event]
	win      *displayloop.Window
	interval time.Duration
	ticks    int
	frames   atomic.Int64
}

func (d *demoWindow) Connect(w *displayloop.Window) {
	d.win = w
	w.RequestTimer(d.interval)
}

func (d *demoWindow) HandleEvent(ev displayloop.Event) error {
	d.logger.Debug().
		Uint64("window", uint64(d.win.ID())).
		Str("kind", ev.Kind()).
		Log("event")
	if in, ok := ev.(displayloop.InputEvent); ok && in.Type == displayloop.CloseRequest {
		return d.win.Destroy()
	}
	return nil
}

func (d *demoWindow) Timer(displayloop.TimerToken) {
	d.ticks++
	d.logger.Info().
		Uint64("window", uint64(d.win.ID())).
		Int("tick", d.ticks).
		Int64("frames", d.frames.Load()).
		Log("tick")
	d.win.RequestTimer(d.interval)
}

func (d *demoWindow) Idle(token displayloop.IdleToken) {
	d.logger.Debug().
		Uint64("window", uint64(d.win.ID())).
		Uint64("token", uint64(token)).
		Log("idle")
}

func (d *demoWindow) Redraw() error {
	d.frames.Add(1)
	return nil
}

func (d *demoWindow) Destroyed() {
	d.logger.Info().
		Uint64("window", uint64(d.win.ID())).
		Log("window destroyed")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a TOML configuration file")
		windows    = flag.Int("windows", 2, "number of windows to open")
		duration   = flag.Duration("duration", 10*time.Second, "quit after this long, zero to run until closed")
		tick       = flag.Duration("tick", time.Second, "per-window timer interval")
		redraw     = flag.Duration("redraw", 16*time.Millisecond, "interval between cross-goroutine redraw requests")
	)
	flag.Parse()

	cfg, err := platform.Load(*configPath)
	if err != nil {
		return err
	}
	level, err := platform.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := platform.NewLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := platform.NewApplication(ctx, cfg, displayloop.WithLogger(logger))
	if err != nil {
		return err
	}

	handles := make([]displayloop.IdleHandle, 0, *windows)
	for i := range *windows {
		w, err := app.CreateWindow(displayloop.WindowOptions{
			Title:  fmt.Sprintf("displayloop demo %d", i+1),
			X:      int16(40 * i),
			Y:      int16(40 * i),
			Width:  480,
			Height: 320,
		}, &demoWindow{logger: logger, interval: *tick})
		if err != nil {
			_ = app.Close()
			return err
		}
		handles = append(handles, w.IdleHandle())
	}

	if *redraw > 0 {
		go requestRedraws(ctx, handles, *redraw)
	}
	if *duration > 0 {
		timer := time.AfterFunc(*duration, app.Quit)
		defer timer.Stop()
	}

	err = app.Run(ctx)

	m := app.Metrics()
	logger.Info().
		Uint64("events", m.EventsDispatched).
		Uint64("timers", m.TimersFired).
		Uint64("idle_tasks", m.IdleTasksRun).
		Uint64("wakeups", m.Wakeups).
		Log("finished")

	return err
}

// requestRedraws stops once every window is gone.
func requestRedraws(ctx context.Context, handles []displayloop.IdleHandle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var live int
		for _, h := range handles {
			if h.ScheduleRedraw() {
				live++
			}
		}
		if live == 0 {
			return
		}
	}
}
