package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctpnet/ctpsim/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Simulation.CollectedDataPacketsGoal != 10 {
		t.Errorf("Simulation.CollectedDataPacketsGoal = %d, want 10", cfg.Simulation.CollectedDataPacketsGoal)
	}

	if cfg.CSMA.SymbolsPerSec != 65536 {
		t.Errorf("CSMA.SymbolsPerSec = %v, want 65536", cfg.CSMA.SymbolsPerSec)
	}

	if cfg.Physical.ChannelFreeThresholdDBm != -95 {
		t.Errorf("Physical.ChannelFreeThresholdDBm = %v, want -95", cfg.Physical.ChannelFreeThresholdDBm)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
simulation:
  coordinates_path: "topo/coords.txt"
  links_path: "topo/links.txt"
  root_id: 0
  collected_data_packets_goal: 25
csma:
  high: 2048
  low: 10
physical:
  channel_free_threshold_dbm: -90
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Simulation.CoordinatesPath != "topo/coords.txt" {
		t.Errorf("Simulation.CoordinatesPath = %q, want %q", cfg.Simulation.CoordinatesPath, "topo/coords.txt")
	}

	if cfg.Simulation.CollectedDataPacketsGoal != 25 {
		t.Errorf("Simulation.CollectedDataPacketsGoal = %d, want 25", cfg.Simulation.CollectedDataPacketsGoal)
	}

	if cfg.CSMA.High != 2048 {
		t.Errorf("CSMA.High = %d, want 2048", cfg.CSMA.High)
	}

	if cfg.Physical.ChannelFreeThresholdDBm != -90 {
		t.Errorf("Physical.ChannelFreeThresholdDBm = %v, want -90", cfg.Physical.ChannelFreeThresholdDBm)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override the collection goal and log level.
	// Everything else should inherit from defaults.
	yamlContent := `
simulation:
  collected_data_packets_goal: 50
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Simulation.CollectedDataPacketsGoal != 50 {
		t.Errorf("Simulation.CollectedDataPacketsGoal = %d, want 50", cfg.Simulation.CollectedDataPacketsGoal)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.CSMA.SymbolsPerSec != 65536 {
		t.Errorf("CSMA.SymbolsPerSec = %v, want default 65536", cfg.CSMA.SymbolsPerSec)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty coordinates path",
			modify: func(cfg *config.Config) {
				cfg.Simulation.CoordinatesPath = ""
			},
			wantErr: config.ErrEmptyCoordinatesPath,
		},
		{
			name: "empty links path",
			modify: func(cfg *config.Config) {
				cfg.Simulation.LinksPath = ""
			},
			wantErr: config.ErrEmptyLinksPath,
		},
		{
			name: "zero collection goal",
			modify: func(cfg *config.Config) {
				cfg.Simulation.CollectedDataPacketsGoal = 0
			},
			wantErr: config.ErrInvalidGoal,
		},
		{
			name: "negative collection goal",
			modify: func(cfg *config.Config) {
				cfg.Simulation.CollectedDataPacketsGoal = -1
			},
			wantErr: config.ErrInvalidGoal,
		},
		{
			name: "zero symbols per sec",
			modify: func(cfg *config.Config) {
				cfg.CSMA.SymbolsPerSec = 0
			},
			wantErr: config.ErrInvalidSymbolsPerSec,
		},
		{
			name: "zero bits per symbol",
			modify: func(cfg *config.Config) {
				cfg.CSMA.BitsPerSymbol = 0
			},
			wantErr: config.ErrInvalidBitsPerSymbol,
		},
		{
			name: "backoff window high not greater than low",
			modify: func(cfg *config.Config) {
				cfg.CSMA.High = 10
				cfg.CSMA.Low = 20
			},
			wantErr: config.ErrInvalidBackoffWindow,
		},
		{
			name: "empty metrics addr",
			modify: func(cfg *config.Config) {
				cfg.Metrics.Addr = ""
			},
			wantErr: config.ErrEmptyMetricsAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("CTPSIM_LOG_LEVEL", "debug")
	t.Setenv("CTPSIM_SIMULATION_COLLECTED_DATA_PACKETS_GOAL", "99")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}

	if cfg.Simulation.CollectedDataPacketsGoal != 99 {
		t.Errorf("Simulation.CollectedDataPacketsGoal = %d, want 99 (from env)", cfg.Simulation.CollectedDataPacketsGoal)
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("CTPSIM_METRICS_ADDR", ":9200")
	t.Setenv("CTPSIM_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

func TestMaxVirtualTimeParsed(t *testing.T) {
	t.Parallel()

	yamlContent := `
simulation:
  max_virtual_time: "5m"
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Simulation.MaxVirtualTime != 5*time.Minute {
		t.Errorf("Simulation.MaxVirtualTime = %v, want %v", cfg.Simulation.MaxVirtualTime, 5*time.Minute)
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "ctpsim.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
