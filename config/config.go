// Package config provides configuration loading for ramses2.
// Files may be JSON, YAML or TOML; every key has a default and every
// key can be overridden from the environment, so a config file is
// optional — RAMSES_PORT=/dev/ttyUSB0 and nothing else is a perfectly
// good deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// Port is the gateway endpoint: a serial device path
	// ("/dev/ttyUSB0", "COM3"), "tcp://host:port" for a ser2net
	// bridge, or "ws://host/path" for a WebSocket bridge.
	Port string `mapstructure:"port"`

	// KnownDevices is the path of the device-name JSON file.
	// Empty means names live in memory only.
	KnownDevices string `mapstructure:"known_devices"`

	// PacketLog controls the raw traffic log.
	PacketLog PacketLogConfig `mapstructure:"packet_log"`

	// Log holds logger settings.
	Log LogConfig `mapstructure:"log"`

	// Serial holds the physical-link parameters handed verbatim to
	// the serial opener. Only used when Port is a device path.
	Serial SerialConfig `mapstructure:"serial"`
}

// PacketLogConfig controls the append-only raw packet log.
type PacketLogConfig struct {
	// File is the log path. Empty disables the packet log.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation for file outputs
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SerialConfig is the physical-link parameter bundle.
type SerialConfig struct {
	Baud        int           `mapstructure:"baud"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    int           `mapstructure:"stop_bits"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// Default returns a Config populated with sensible defaults:
// console logging to stdout, no packet log, the HGI80 serial dialect.
func Default() *Config {
	return &Config{
		Port:         "",
		KnownDevices: "",
		PacketLog: PacketLogConfig{
			File:       "",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/ramses2.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Serial: SerialConfig{
			Baud:     115200,
			DataBits: 8,
			Parity:   "none",
			StopBits: 1,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment
// overrides. Environment variables use the prefix RAMSES and `.`/`-`
// are replaced with `_`. Example: RAMSES_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("RAMSES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("port", cfg.Port)
	v.SetDefault("known_devices", cfg.KnownDevices)
	v.SetDefault("packet_log.file", cfg.PacketLog.File)
	v.SetDefault("packet_log.max_size_mb", cfg.PacketLog.MaxSizeMB)
	v.SetDefault("packet_log.max_backups", cfg.PacketLog.MaxBackups)
	v.SetDefault("packet_log.max_age_days", cfg.PacketLog.MaxAgeDays)
	v.SetDefault("packet_log.compress", cfg.PacketLog.Compress)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("serial.baud", cfg.Serial.Baud)
	v.SetDefault("serial.data_bits", cfg.Serial.DataBits)
	v.SetDefault("serial.parity", cfg.Serial.Parity)
	v.SetDefault("serial.stop_bits", cfg.Serial.StopBits)
	v.SetDefault("serial.read_timeout", cfg.Serial.ReadTimeout)

	// choose config file
	if path == "" {
		if envPath := os.Getenv("RAMSES_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// search common locations with base name `ramses2`
		v.SetConfigName("ramses2")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ramses2"))
		}
		v.AddConfigPath("/etc/ramses2")
	}

	// read config file if present; a missing implicit file is fine,
	// defaults and env take over. An explicitly named file must exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		implicitMiss := path == "" && (errors.As(err, &notFound) || os.IsNotExist(err))
		if !implicitMiss {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	switch strings.ToLower(strings.TrimSpace(c.Serial.Parity)) {
	case "", "none", "even", "odd":
		// ok
	default:
		return fmt.Errorf("invalid serial.parity: %q", c.Serial.Parity)
	}
	return nil
}

// MustLoad is a convenience that panics on error. For main() wiring
// where a bad config should stop the process anyway.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
