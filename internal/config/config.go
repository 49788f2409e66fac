// Package config manages ctpsim simulation configuration using koanf/v2.
//
// Supports YAML files and environment variables layered over built-in
// defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete ctpsim configuration.
type Config struct {
	Simulation SimulationConfig `koanf:"simulation"`
	CSMA       CSMAConfig       `koanf:"csma"`
	Physical   PhysicalConfig   `koanf:"physical"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
}

// SimulationConfig holds the topology inputs and the run's termination
// condition.
type SimulationConfig struct {
	// CoordinatesPath is the per-node (x,y) coordinates file.
	CoordinatesPath string `koanf:"coordinates_path"`

	// LinksPath is the per-source gain table / per-node noise table file.
	LinksPath string `koanf:"links_path"`

	// RootID is the node ID designated as the collection root.
	RootID uint16 `koanf:"root_id"`

	// CollectedDataPacketsGoal is the number of distinct data packets the
	// root must collect before the simulation terminates.
	CollectedDataPacketsGoal int `koanf:"collected_data_packets_goal"`

	// MaxVirtualTime bounds the run as a safety net against a disconnected
	// topology that never reaches its goal ("disconnected
	// topology"). Zero means unbounded.
	MaxVirtualTime time.Duration `koanf:"max_virtual_time"`
}

// CSMAConfig holds the CSMA/CA link layer's tunables.
type CSMAConfig struct {
	SymbolsPerSec  float64 `koanf:"symbols_per_sec"`
	BitsPerSymbol  float64 `koanf:"bits_per_symbol"`
	MinFreeSamples int     `koanf:"min_free_samples"`
	MaxFreeSamples int     `koanf:"max_free_samples"`
	High           int     `koanf:"high"`
	Low            int     `koanf:"low"`
	InitHigh       int     `koanf:"init_high"`
	InitLow        int     `koanf:"init_low"`
	RxTxDelay      int     `koanf:"rx_tx_delay"`
	ExponentBase   float64 `koanf:"exponent_base"`
	PreambleLength int     `koanf:"preamble_length"`
	AckTime        int     `koanf:"ack_time"`
}

// PhysicalConfig holds the additive-interference channel model's tunables.
type PhysicalConfig struct {
	// ChannelFreeThresholdDBm: a channel is free iff perceived power is
	// below this.
	ChannelFreeThresholdDBm float64 `koanf:"channel_free_threshold_dbm"`

	// WhiteNoiseMean is the mean of the uniform white-noise draw.
	WhiteNoiseMean float64 `koanf:"white_noise_mean"`

	// SensitivityDBm is the margin, in dB, by which an arriving signal must
	// exceed the perceived power to be accepted during reception
	// arbitration.
	SensitivityDBm float64 `koanf:"csma_sensitivity"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the documented default
// simulation parameters.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			CoordinatesPath:          "topology/coordinates.txt",
			LinksPath:                "topology/links.txt",
			RootID:                   0,
			CollectedDataPacketsGoal: 10,
			MaxVirtualTime:           0,
		},
		CSMA: CSMAConfig{
			SymbolsPerSec:  65536,
			BitsPerSymbol:  4,
			MinFreeSamples: 1,
			MaxFreeSamples: 0,
			High:           1024,
			Low:            20,
			InitHigh:       431,
			InitLow:        20,
			RxTxDelay:      11,
			ExponentBase:   1,
			PreambleLength: 12,
			AckTime:        34,
		},
		Physical: PhysicalConfig{
			ChannelFreeThresholdDBm: -95,
			WhiteNoiseMean:          0,
			SensitivityDBm:          4,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for ctpsim configuration.
// Variables are named CTPSIM_<section>_<key>, e.g., CTPSIM_METRICS_ADDR.
const envPrefix = "CTPSIM_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (CTPSIM_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms CTPSIM_METRICS_ADDR -> metrics.addr. Only the
// first underscore separates section from key, so
// CTPSIM_SIMULATION_COLLECTED_DATA_PACKETS_GOAL ->
// simulation.collected_data_packets_goal.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"simulation.coordinates_path":            defaults.Simulation.CoordinatesPath,
		"simulation.links_path":                  defaults.Simulation.LinksPath,
		"simulation.root_id":                     defaults.Simulation.RootID,
		"simulation.collected_data_packets_goal": defaults.Simulation.CollectedDataPacketsGoal,
		"simulation.max_virtual_time":             defaults.Simulation.MaxVirtualTime.String(),
		"csma.symbols_per_sec":                    defaults.CSMA.SymbolsPerSec,
		"csma.bits_per_symbol":                    defaults.CSMA.BitsPerSymbol,
		"csma.min_free_samples":                   defaults.CSMA.MinFreeSamples,
		"csma.max_free_samples":                   defaults.CSMA.MaxFreeSamples,
		"csma.high":                               defaults.CSMA.High,
		"csma.low":                                defaults.CSMA.Low,
		"csma.init_high":                          defaults.CSMA.InitHigh,
		"csma.init_low":                           defaults.CSMA.InitLow,
		"csma.rx_tx_delay":                        defaults.CSMA.RxTxDelay,
		"csma.exponent_base":                      defaults.CSMA.ExponentBase,
		"csma.preamble_length":                    defaults.CSMA.PreambleLength,
		"csma.ack_time":                           defaults.CSMA.AckTime,
		"physical.channel_free_threshold_dbm":     defaults.Physical.ChannelFreeThresholdDBm,
		"physical.white_noise_mean":               defaults.Physical.WhiteNoiseMean,
		"physical.csma_sensitivity":               defaults.Physical.SensitivityDBm,
		"metrics.addr":                            defaults.Metrics.Addr,
		"metrics.path":                            defaults.Metrics.Path,
		"log.level":                               defaults.Log.Level,
		"log.format":                              defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyCoordinatesPath indicates the coordinates file path is empty.
	ErrEmptyCoordinatesPath = errors.New("simulation.coordinates_path must not be empty")

	// ErrEmptyLinksPath indicates the links file path is empty.
	ErrEmptyLinksPath = errors.New("simulation.links_path must not be empty")

	// ErrInvalidGoal indicates the collection goal is non-positive.
	ErrInvalidGoal = errors.New("simulation.collected_data_packets_goal must be > 0")

	// ErrInvalidSymbolsPerSec indicates a non-positive symbol rate.
	ErrInvalidSymbolsPerSec = errors.New("csma.symbols_per_sec must be > 0")

	// ErrInvalidBitsPerSymbol indicates a non-positive bits-per-symbol.
	ErrInvalidBitsPerSymbol = errors.New("csma.bits_per_symbol must be > 0")

	// ErrInvalidBackoffWindow indicates csma.high is not greater than csma.low.
	ErrInvalidBackoffWindow = errors.New("csma.high must be > csma.low")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Simulation.CoordinatesPath == "" {
		return ErrEmptyCoordinatesPath
	}
	if cfg.Simulation.LinksPath == "" {
		return ErrEmptyLinksPath
	}
	if cfg.Simulation.CollectedDataPacketsGoal <= 0 {
		return ErrInvalidGoal
	}
	if cfg.CSMA.SymbolsPerSec <= 0 {
		return ErrInvalidSymbolsPerSec
	}
	if cfg.CSMA.BitsPerSymbol <= 0 {
		return ErrInvalidBitsPerSymbol
	}
	if cfg.CSMA.High <= cfg.CSMA.Low {
		return ErrInvalidBackoffWindow
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
