// Package platform selects a display backend and wires it to a
// [displayloop.Application] from process configuration.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/go-displayloop"
	"github.com/joeycumines/go-displayloop/wayland"
	"github.com/joeycumines/go-displayloop/x11"
	"github.com/joeycumines/logiface"
)

// dialer is swapped in tests.
type dialer struct {
	x11     func(ctx context.Context, cfg x11.Config) (displayloop.Transport, error)
	wayland func(ctx context.Context, cfg wayland.Config) (displayloop.Transport, error)
}

var defaultDialer = dialer{
	x11: func(ctx context.Context, cfg x11.Config) (displayloop.Transport, error) {
		return x11.Dial(ctx, cfg)
	},
	wayland: func(ctx context.Context, cfg wayland.Config) (displayloop.Transport, error) {
		return wayland.Dial(ctx, cfg)
	},
}

// NewApplication connects the configured backend and constructs the
// application. Logging goes to stderr at the configured level; opts are
// applied after the options derived from cfg, so they take precedence.
func NewApplication(ctx context.Context, cfg Config, opts ...displayloop.Option) (*displayloop.Application, error) {
	return newApplication(ctx, defaultDialer, os.Stderr, cfg, opts)
}

func newApplication(ctx context.Context, d dialer, w io.Writer, cfg Config, opts []displayloop.Option) (*displayloop.Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, displayloop.Startup(err)
	}
	level, _ := ParseLevel(cfg.LogLevel)
	logger := NewLogger(w, level)

	transport, err := d.dial(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	base := []displayloop.Option{
		displayloop.WithLogger(logger),
		displayloop.WithMetrics(cfg.Metrics),
		displayloop.WithDisablePresentation(cfg.DisablePresentation),
	}
	if cfg.IdleRate > 0 {
		base = append(base, displayloop.WithIdleRate(cfg.IdleRate))
	}

	app, err := displayloop.New(transport, append(base, opts...)...)
	if err != nil {
		if e := transport.Close(); e != nil {
			logger.Warning().Err(e).Log("platform: close transport after failed construction")
		}
		return nil, err
	}
	return app, nil
}

// dial tries the backends in preference order. Under auto, Wayland is
// preferred when WAYLAND_DISPLAY is set, and X11 is the fallback.
func (d dialer) dial(ctx context.Context, cfg Config, logger *logiface.Logger[logiface.Event]) (displayloop.Transport, error) {
	var order []Backend
	switch cfg.Backend {
	case BackendX11:
		order = []Backend{BackendX11}
	case BackendWayland:
		order = []Backend{BackendWayland}
	default:
		if cfg.Wayland.Display != "" {
			order = []Backend{BackendWayland, BackendX11}
		} else {
			order = []Backend{BackendX11}
		}
	}

	var errs []error
	for _, backend := range order {
		var (
			transport displayloop.Transport
			err       error
		)
		switch backend {
		case BackendX11:
			transport, err = d.x11(ctx, x11.Config{
				Logger:         logger,
				Display:        cfg.X11.Display,
				DisablePresent: cfg.X11.DisablePresent || cfg.DisablePresentation,
			})
		case BackendWayland:
			transport, err = d.wayland(ctx, wayland.Config{
				Logger:              logger,
				Display:             cfg.Wayland.Display,
				DisablePresentation: cfg.DisablePresentation,
			})
		}
		if err == nil {
			logger.Info().
				Str("backend", string(backend)).
				Log("platform: connected")
			return transport, nil
		}
		logger.Info().
			Str("backend", string(backend)).
			Err(err).
			Log("platform: backend unavailable")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, displayloop.Startup(fmt.Errorf("platform: no display backend: %w", errors.Join(errs...)))
}
