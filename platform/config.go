package platform

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/logiface"
)

// Backend selects the display server protocol.
type Backend string

const (
	BackendAuto    Backend = "auto"
	BackendX11     Backend = "x11"
	BackendWayland Backend = "wayland"
)

// Environment variables consulted by [Config.ApplyEnv].
const (
	EnvBackend             = "DISPLAYLOOP_BACKEND"
	EnvDisplay             = "DISPLAY"
	EnvWaylandDisplay      = "WAYLAND_DISPLAY"
	EnvDisableX11Present   = "DISPLAYLOOP_DISABLE_X11_PRESENT"
	EnvDisablePresentation = "DISPLAYLOOP_DISABLE_PRESENTATION"
	EnvLogLevel            = "DISPLAYLOOP_LOG_LEVEL"
	EnvIdleRate            = "DISPLAYLOOP_IDLE_RATE"
)

// Config is the process-level configuration, read once at startup.
type Config struct {
	Backend  Backend       `toml:"backend"`
	LogLevel string        `toml:"log_level"`
	X11      X11Config     `toml:"x11"`
	Wayland  WaylandConfig `toml:"wayland"`
	// IdleRate overrides the refresh-rate derived idle cadence, in Hz.
	IdleRate float64 `toml:"idle_rate"`
	// DisablePresentation turns off the presentation capability on every
	// backend.
	DisablePresentation bool `toml:"disable_presentation"`
	Metrics             bool `toml:"metrics"`
}

type X11Config struct {
	Display        string `toml:"display"`
	DisablePresent bool   `toml:"disable_present"`
}

type WaylandConfig struct {
	Display string `toml:"display"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendAuto,
		LogLevel: logiface.LevelInformational.String(),
	}
}

// Load builds a Config from the defaults, the TOML file at path (skipped
// if path is empty), then the process environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.DecodeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeFile overlays the TOML file at path. Unknown keys are an error.
func (c *Config) DecodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("platform: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("platform: decode %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overlays environment overrides, as resolved by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackend); ok && v != "" {
		c.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvDisplay); ok && v != "" {
		c.X11.Display = v
	}
	if v, ok := lookup(EnvWaylandDisplay); ok && v != "" {
		c.Wayland.Display = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}

	var errs []error
	if v, ok := lookup(EnvDisableX11Present); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("platform: %s: %w", EnvDisableX11Present, err))
		} else {
			c.X11.DisablePresent = b
		}
	}
	if v, ok := lookup(EnvDisablePresentation); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("platform: %s: %w", EnvDisablePresentation, err))
		} else {
			c.DisablePresentation = b
		}
	}
	if v, ok := lookup(EnvIdleRate); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("platform: %s: %w", EnvIdleRate, err))
		} else {
			c.IdleRate = f
		}
	}
	return errors.Join(errs...)
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendX11, BackendWayland:
	case "":
		return errors.New("platform: backend not set")
	default:
		return fmt.Errorf("platform: unknown backend %q", c.Backend)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.IdleRate < 0 || math.IsNaN(c.IdleRate) || math.IsInf(c.IdleRate, 0) {
		return fmt.Errorf("platform: invalid idle rate %v", c.IdleRate)
	}
	return nil
}

// ParseLevel accepts the syslog keywords logiface uses (e.g. "info",
// "warning", "crit"), plus a few common aliases.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "informational":
		return logiface.LevelInformational, nil
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("platform: unknown log level %q", s)
	}
}
