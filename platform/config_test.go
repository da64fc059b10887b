package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, BackendAuto, cfg.Backend)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestConfig_DecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "displayloop.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "x11"
log_level = "debug"
idle_rate = 144.0
metrics = true

[x11]
display = ":1"
disable_present = true

[wayland]
display = "wayland-1"
`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.DecodeFile(path))
	assert.Equal(t, Config{
		Backend:  BackendX11,
		LogLevel: "debug",
		IdleRate: 144,
		Metrics:  true,
		X11:      X11Config{Display: ":1", DisablePresent: true},
		Wayland:  WaylandConfig{Display: "wayland-1"},
	}, cfg)
}

func TestConfig_DecodeFile_unknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "displayloop.toml")
	require.NoError(t, os.WriteFile(path, []byte("backend = \"x11\"\nrefresh = 60\n"), 0o600))

	cfg := DefaultConfig()
	err := cfg.DecodeFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh")
}

func TestConfig_DecodeFile_missing(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.DecodeFile(filepath.Join(t.TempDir(), "nope.toml")))
}

func TestConfig_ApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(envLookup(map[string]string{
		EnvBackend:             " Wayland ",
		EnvDisplay:             ":2",
		EnvWaylandDisplay:      "wayland-0",
		EnvDisableX11Present:   "1",
		EnvDisablePresentation: "true",
		EnvLogLevel:            "warning",
		EnvIdleRate:            "30",
	})))
	assert.Equal(t, Config{
		Backend:             BackendWayland,
		LogLevel:            "warning",
		IdleRate:            30,
		DisablePresentation: true,
		X11:                 X11Config{Display: ":2", DisablePresent: true},
		Wayland:             WaylandConfig{Display: "wayland-0"},
	}, cfg)
}

func TestConfig_ApplyEnv_emptyIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.X11.Display = ":5"
	require.NoError(t, cfg.ApplyEnv(envLookup(map[string]string{
		EnvDisplay: "",
		EnvBackend: "",
	})))
	assert.Equal(t, ":5", cfg.X11.Display)
	assert.Equal(t, BackendAuto, cfg.Backend)
}

func TestConfig_ApplyEnv_invalid(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envLookup(map[string]string{
		EnvDisablePresentation: "maybe",
		EnvIdleRate:            "fast",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvDisablePresentation)
	assert.Contains(t, err.Error(), EnvIdleRate)
}

func TestConfig_Validate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty backend", func(c *Config) { c.Backend = "" }},
		{"unknown backend", func(c *Config) { c.Backend = "mir" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative rate", func(c *Config) { c.IdleRate = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_env(t *testing.T) {
	t.Setenv(EnvBackend, "x11")
	t.Setenv(EnvLogLevel, "debug")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendX11, cfg.Backend)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv(EnvBackend, "quartz")
	_, err = Load("")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]logiface.Level{
		"":         logiface.LevelInformational,
		"INFO":     logiface.LevelInformational,
		"off":      logiface.LevelDisabled,
		"emerg":    logiface.LevelEmergency,
		"alert":    logiface.LevelAlert,
		"critical": logiface.LevelCritical,
		"error":    logiface.LevelError,
		"warn":     logiface.LevelWarning,
		"notice":   logiface.LevelNotice,
		"debug":    logiface.LevelDebug,
		"TRACE":    logiface.LevelTrace,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
