// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package displayloop

import (
	"errors"
	"math"
	"time"

	"github.com/joeycumines/logiface"
)

// defaultIdleRate is the idle cadence used when neither the transport nor
// the options provide a refresh rate.
const defaultIdleRate = 60.0

// appOptions holds configuration options for Application creation.
type appOptions struct {
	logger              *logiface.Logger[logiface.Event]
	now                 func() time.Time
	selectionHandlers   []SelectionHandler
	idleRate            float64
	metricsEnabled      bool
	disablePresentation bool
}

// Option configures an Application instance.
type Option interface {
	applyApp(*appOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyAppFunc func(*appOptions) error
}

func (o *optionImpl) applyApp(opts *appOptions) error {
	return o.applyAppFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging,
// which is also the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *appOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithIdleRate overrides the idle cadence, in Hz. By default the refresh
// rate reported by the transport is used, falling back to 60 Hz.
func WithIdleRate(hz float64) Option {
	return &optionImpl{func(opts *appOptions) error {
		if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
			return errors.New("displayloop: idle rate must be positive and finite")
		}
		opts.idleRate = hz
		return nil
	}}
}

// WithSelectionHandler registers a receiver for application-scope
// selection events. Handlers are invoked in registration order.
func WithSelectionHandler(handler SelectionHandler) Option {
	return &optionImpl{func(opts *appOptions) error {
		if handler == nil {
			return errors.New("displayloop: nil selection handler")
		}
		opts.selectionHandlers = append(opts.selectionHandlers, handler)
		return nil
	}}
}

// WithMetrics enables runtime counters, accessible via
// Application.Metrics.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *appOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithDisablePresentation turns off the presentation capability regardless
// of what the transport negotiated.
func WithDisablePresentation(disabled bool) Option {
	return &optionImpl{func(opts *appOptions) error {
		opts.disablePresentation = disabled
		return nil
	}}
}

// WithClock replaces time.Now for timer and idle cadence bookkeeping.
func WithClock(now func() time.Time) Option {
	return &optionImpl{func(opts *appOptions) error {
		if now == nil {
			return errors.New("displayloop: nil clock")
		}
		opts.now = now
		return nil
	}}
}

// resolveOptions applies Option instances to appOptions.
func resolveOptions(opts []Option) (*appOptions, error) {
	cfg := &appOptions{
		now: time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyApp(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
