package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// Config represents the complete configuration for the race controller
type Config struct {
	Race      RaceConfig      `yaml:"race" toml:"race"`
	Timing    TimingConfig    `yaml:"timing" toml:"timing"`
	Network   NetworkConfig   `yaml:"network" toml:"network"`
	Indicator IndicatorConfig `yaml:"indicator" toml:"indicator"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// RaceConfig holds the race layout
type RaceConfig struct {
	Laps       int `yaml:"laps" toml:"laps"`
	TrackCount int `yaml:"trackCount" toml:"trackCount"`
	TrackStart int `yaml:"trackStart" toml:"trackStart"`
	// HighlightLane is the lane whose slot lights up in the winner and
	// disqualification flash patterns. 0 disables the slot.
	HighlightLane int `yaml:"highlightLane" toml:"highlightLane"`
}

// TimingConfig holds tick thresholds and loop cadence
type TimingConfig struct {
	TickIntervalMs     int   `yaml:"tickIntervalMs" toml:"tickIntervalMs"`
	PreRaceStageTicks  int64 `yaml:"preRaceStageTicks" toml:"preRaceStageTicks"`
	OffTrackResetTicks int64 `yaml:"offTrackResetTicks" toml:"offTrackResetTicks"`
}

// NetworkConfig holds network-related settings
type NetworkConfig struct {
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Control   ControlConfig   `yaml:"control" toml:"control"`
	API       APIConfig       `yaml:"api" toml:"api"`
}

// TelemetryConfig holds the outbound UDP channel settings
type TelemetryConfig struct {
	Address    string `yaml:"address" toml:"address"`
	RawPort    int    `yaml:"rawPort" toml:"rawPort"`
	RacePort   int    `yaml:"racePort" toml:"racePort"`
	ListenPort int    `yaml:"listenPort" toml:"listenPort"`
}

// ControlConfig holds inbound TCP control server settings
type ControlConfig struct {
	Port         int      `yaml:"port" toml:"port"`
	AllowedCIDRs []string `yaml:"allowedCidrs" toml:"allowedCidrs"`
}

// APIConfig holds HTTP API settings
type APIConfig struct {
	Port    int  `yaml:"port" toml:"port"`
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// IndicatorConfig selects the indicator variant
type IndicatorConfig struct {
	Kind string `yaml:"kind" toml:"kind"`
}

// LoggingConfig holds log level and optional rotating file sink settings
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb" toml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Load loads configuration from defaults, files and environment variables.
// path may be empty; RACECONTROL_CONFIG is used in that case.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from default config file
	if err := loadFromFile(cfg, "config/default.yaml"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path == "" {
		path = os.Getenv("RACECONTROL_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Race: RaceConfig{
			Laps:          3,
			TrackCount:    2,
			TrackStart:    1,
			HighlightLane: 2,
		},
		Timing: TimingConfig{
			TickIntervalMs:     10,
			PreRaceStageTicks:  2000,
			OffTrackResetTicks: 10000,
		},
		Network: NetworkConfig{
			Telemetry: TelemetryConfig{
				Address:    "255.255.255.255",
				RawPort:    12345,
				RacePort:   12346,
				ListenPort: 0,
			},
			Control: ControlConfig{
				Port:         50000,
				AllowedCIDRs: []string{"127.0.0.0/8"},
			},
			API: APIConfig{
				Port:    8080,
				Enabled: true,
			},
		},
		Indicator: IndicatorConfig{
			Kind: "console",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// loadFromFile loads configuration from a YAML or TOML file, chosen by extension
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RACECONTROL_LAPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Race.Laps = n
		}
	}

	if v := os.Getenv("RACECONTROL_TRACK_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Race.TrackCount = n
		}
	}

	if v := os.Getenv("RACECONTROL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("RACECONTROL_INDICATOR"); v != "" {
		cfg.Indicator.Kind = v
	}
}

// Validate checks the configuration for values the controller cannot run with
func Validate(cfg *Config) error {
	if cfg.Race.Laps < 1 {
		return fmt.Errorf("race laps %d must be at least 1", cfg.Race.Laps)
	}

	if cfg.Race.TrackCount < 1 || cfg.Race.TrackCount > 8 {
		return fmt.Errorf("track count %d is outside range [1, 8]", cfg.Race.TrackCount)
	}

	if cfg.Race.TrackStart < 1 {
		return fmt.Errorf("track start %d must be at least 1", cfg.Race.TrackStart)
	}

	if cfg.Timing.TickIntervalMs <= 0 || cfg.Timing.TickIntervalMs > 1000 {
		return fmt.Errorf("tick interval %dms is outside range [1, 1000]", cfg.Timing.TickIntervalMs)
	}

	if cfg.Timing.PreRaceStageTicks <= 0 {
		return fmt.Errorf("pre-race stage ticks must be positive, got %d", cfg.Timing.PreRaceStageTicks)
	}

	if cfg.Timing.OffTrackResetTicks <= 0 {
		return fmt.Errorf("off-track reset ticks must be positive, got %d", cfg.Timing.OffTrackResetTicks)
	}

	for _, port := range []int{cfg.Network.Telemetry.RawPort, cfg.Network.Telemetry.RacePort, cfg.Network.Control.Port} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
	}

	if cfg.Network.Telemetry.RawPort == cfg.Network.Telemetry.RacePort {
		return fmt.Errorf("raw and race telemetry ports must differ, both are %d", cfg.Network.Telemetry.RawPort)
	}

	if net.ParseIP(cfg.Network.Telemetry.Address) == nil {
		return fmt.Errorf("telemetry address %q is not an IP address", cfg.Network.Telemetry.Address)
	}

	for _, cidr := range cfg.Network.Control.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid control CIDR %q: %w", cidr, err)
		}
	}

	validKinds := []string{"none", "console"}
	if !contains(validKinds, cfg.Indicator.Kind) {
		return fmt.Errorf("invalid indicator kind %s, must be one of: %v", cfg.Indicator.Kind, validKinds)
	}

	validFormats := []string{"console", "json"}
	if !contains(validFormats, cfg.Logging.Format) {
		return fmt.Errorf("invalid log format %s, must be one of: %v", cfg.Logging.Format, validFormats)
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
