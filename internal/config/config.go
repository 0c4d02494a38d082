// Package config loads the server configuration from a TOML file and
// fills in workable defaults so a bare `agentwire serve` runs without
// any file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "~/.config/agentwire/config.toml"

// Duration wraps time.Duration so TOML values read as "3s" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Config is the full server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `toml:"listen"`

	// MachinesFile is the YAML machine registry path.
	MachinesFile string `toml:"machines_file"`

	// StateDir holds the instance lock and other runtime state.
	StateDir string `toml:"state_dir"`

	Monitor MonitorConfig `toml:"monitor"`
	Probe   ProbeConfig   `toml:"probe"`
	Audio   AudioConfig   `toml:"audio"`
}

type MonitorConfig struct {
	// PollInterval is the snapshot cadence.
	PollInterval Duration `toml:"poll_interval"`

	// ScrollbackLines bounds how much history each snapshot carries.
	ScrollbackLines int `toml:"scrollback_lines"`
}

type ProbeConfig struct {
	// Timeout bounds the remote machine liveness probe.
	Timeout Duration `toml:"timeout"`
}

type AudioConfig struct {
	// SuppressionWindow bounds duplicate audio delivery per device.
	SuppressionWindow Duration `toml:"suppression_window"`

	// Player overrides local playback command discovery.
	Player string `toml:"player"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Listen:       "127.0.0.1:7600",
		MachinesFile: expandHome("~/.config/agentwire/machines.yaml"),
		StateDir:     expandHome("~/.local/state/agentwire"),
		Monitor: MonitorConfig{
			PollInterval:    Duration{time.Second},
			ScrollbackLines: 200,
		},
		Probe: ProbeConfig{
			Timeout: Duration{3 * time.Second},
		},
		Audio: AudioConfig{
			SuppressionWindow: Duration{2 * time.Second},
		},
	}
}

// Load reads the TOML file at path, layering it over the defaults. An
// empty path means DefaultPath; a missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	path = expandHome(path)

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.MachinesFile = expandHome(cfg.MachinesFile)
	cfg.StateDir = expandHome(cfg.StateDir)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.Monitor.PollInterval.Duration <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.ScrollbackLines < 0 {
		return fmt.Errorf("monitor.scrollback_lines must not be negative")
	}
	if c.Probe.Timeout.Duration <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if c.Audio.SuppressionWindow.Duration <= 0 {
		return fmt.Errorf("audio.suppression_window must be positive")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
