package platform

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/joeycumines/go-displayloop"
	"github.com/joeycumines/go-displayloop/wayland"
	"github.com/joeycumines/go-displayloop/x11"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	name   string
	caps   displayloop.Capabilities
	closed int
}

func (s *stubTransport) PollEvent() (displayloop.Event, error) { return nil, nil }
func (s *stubTransport) Flush() error                          { return nil }
func (s *stubTransport) Fd() int                               { return -1 }
func (s *stubTransport) Capabilities() displayloop.Capabilities {
	return s.caps
}
func (s *stubTransport) HelperWindow() displayloop.WindowID { return 0 }
func (s *stubTransport) CreateWindow(displayloop.WindowOptions) (displayloop.WindowID, error) {
	return 0, errors.New("stub")
}
func (s *stubTransport) DestroyWindow(displayloop.WindowID) error { return nil }
func (s *stubTransport) Close() error {
	s.closed++
	return nil
}

type dialLog struct {
	calls   []string
	x11     x11.Config
	wayland wayland.Config
}

func testDialer(log *dialLog, x11Err, waylandErr error, tr *stubTransport) dialer {
	return dialer{
		x11: func(_ context.Context, cfg x11.Config) (displayloop.Transport, error) {
			log.calls = append(log.calls, "x11")
			log.x11 = cfg
			if x11Err != nil {
				return nil, x11Err
			}
			tr.name = "x11"
			return tr, nil
		},
		wayland: func(_ context.Context, cfg wayland.Config) (displayloop.Transport, error) {
			log.calls = append(log.calls, "wayland")
			log.wayland = cfg
			if waylandErr != nil {
				return nil, waylandErr
			}
			tr.name = "wayland"
			return tr, nil
		},
	}
}

func TestNewApplication_autoPrefersWayland(t *testing.T) {
	var log dialLog
	tr := new(stubTransport)
	cfg := DefaultConfig()
	cfg.Wayland.Display = "wayland-0"
	cfg.DisablePresentation = true

	app, err := newApplication(context.Background(), testDialer(&log, nil, nil, tr), new(bytes.Buffer), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, []string{"wayland"}, log.calls)
	assert.Equal(t, "wayland", tr.name)
	assert.True(t, log.wayland.DisablePresentation)
	assert.Equal(t, displayloop.StateRunning, app.State())
}

func TestNewApplication_autoFallsBackToX11(t *testing.T) {
	var log dialLog
	tr := new(stubTransport)
	cfg := DefaultConfig()
	cfg.Wayland.Display = "wayland-0"
	cfg.X11.Display = ":3"

	app, err := newApplication(context.Background(), testDialer(&log, nil, errors.New("no compositor"), tr), new(bytes.Buffer), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, []string{"wayland", "x11"}, log.calls)
	assert.Equal(t, ":3", log.x11.Display)
	assert.False(t, log.x11.DisablePresent)
}

func TestNewApplication_autoWithoutWayland(t *testing.T) {
	var log dialLog
	cfg := DefaultConfig()
	cfg.DisablePresentation = true

	app, err := newApplication(context.Background(), testDialer(&log, nil, nil, new(stubTransport)), new(bytes.Buffer), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, []string{"x11"}, log.calls)
	assert.True(t, log.x11.DisablePresent)
}

func TestNewApplication_forcedBackend(t *testing.T) {
	var log dialLog
	cfg := DefaultConfig()
	cfg.Backend = BackendWayland

	_, err := newApplication(context.Background(), testDialer(&log, nil, errors.New("refused"), new(stubTransport)), new(bytes.Buffer), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"wayland"}, log.calls)

	var fatal *displayloop.FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, displayloop.PhaseStartup, fatal.Phase)
	assert.Contains(t, err.Error(), "refused")
}

func TestNewApplication_allBackendsFail(t *testing.T) {
	var log dialLog
	cfg := DefaultConfig()
	cfg.Wayland.Display = "wayland-0"
	x11Err := errors.New("no x server")
	waylandErr := errors.New("no compositor")

	var buf bytes.Buffer
	_, err := newApplication(context.Background(), testDialer(&log, x11Err, waylandErr, new(stubTransport)), &buf, cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, x11Err)
	assert.ErrorIs(t, err, waylandErr)
	assert.Contains(t, buf.String(), "platform: backend unavailable")
}

func TestNewApplication_invalidConfig(t *testing.T) {
	var log dialLog
	cfg := DefaultConfig()
	cfg.LogLevel = "chatty"

	_, err := newApplication(context.Background(), testDialer(&log, nil, nil, new(stubTransport)), new(bytes.Buffer), cfg, nil)
	require.Error(t, err)
	assert.Empty(t, log.calls)
}

func TestNewApplication_closesTransportOnOptionError(t *testing.T) {
	var log dialLog
	tr := new(stubTransport)

	_, err := newApplication(context.Background(), testDialer(&log, nil, nil, tr), new(bytes.Buffer), DefaultConfig(),
		[]displayloop.Option{displayloop.WithIdleRate(-1)})
	require.Error(t, err)
	assert.Equal(t, 1, tr.closed)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logiface.LevelWarning)
	logger.Info().Log("hidden")
	logger.Warning().Str("k", "v").Log("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
