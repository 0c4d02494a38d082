package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7600" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Monitor.PollInterval.Duration != time.Second {
		t.Errorf("PollInterval = %v", cfg.Monitor.PollInterval.Duration)
	}
	if cfg.Probe.Timeout.Duration != 3*time.Second {
		t.Errorf("Probe.Timeout = %v", cfg.Probe.Timeout.Duration)
	}
	if cfg.Audio.SuppressionWindow.Duration != 2*time.Second {
		t.Errorf("SuppressionWindow = %v", cfg.Audio.SuppressionWindow.Duration)
	}
}

func TestLoad_OverridesLayerOverDefaults(t *testing.T) {
	path := writeConfig(t, `
listen = "0.0.0.0:9000"

[monitor]
poll_interval = "250ms"

[probe]
timeout = "10s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Monitor.PollInterval.Duration != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Monitor.PollInterval.Duration)
	}
	if cfg.Probe.Timeout.Duration != 10*time.Second {
		t.Errorf("Probe.Timeout = %v", cfg.Probe.Timeout.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Monitor.ScrollbackLines != 200 {
		t.Errorf("ScrollbackLines = %d, want default 200", cfg.Monitor.ScrollbackLines)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
[probe]
timeout = "not-a-duration"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty listen", `listen = ""`, "listen"},
		{"zero poll", "[monitor]\npoll_interval = \"0s\"", "poll_interval"},
		{"negative scrollback", "[monitor]\nscrollback_lines = -1", "scrollback_lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/x/y"); got != filepath.Join(home, "x/y") {
		t.Errorf("got %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("got %q", got)
	}
}
