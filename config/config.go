// Package config loads cpphy settings from a file, the environment and
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CPPHY_LINK_DRIVER.
const EnvPrefix = "CPPHY"

// Link drivers.
const (
	DriverPeriph = "periph"
	DriverSerial = "serial"
	DriverSim    = "sim"
)

// LinkConfig selects and addresses the physical link.
type LinkConfig struct {
	Driver     string `mapstructure:"driver"`
	Bus        int    `mapstructure:"bus"`
	Device     int    `mapstructure:"device"`
	ResetPin   string `mapstructure:"resetPin"`
	ReadyPin   string `mapstructure:"readyPin"`
	SerialPort string `mapstructure:"serialPort"`
	SerialBaud int    `mapstructure:"serialBaud"`
	ClockHz    int64  `mapstructure:"clockHz"`
}

// TimingConfig holds the engine timings.
type TimingConfig struct {
	ResetHold    time.Duration `mapstructure:"resetHold"`
	Boot         time.Duration `mapstructure:"boot"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	ReplyTimeout time.Duration `mapstructure:"replyTimeout"`
}

// LumberjackConfig configures log file rotation.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets level, encoding and the optional log file.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Link    LinkConfig    `mapstructure:"link"`
	Timing  TimingConfig  `mapstructure:"timing"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load reads configuration from a YAML/TOML/JSON file and the environment.
// An empty path falls back to $CPPHY_CONFIG, then to cpphy.yaml in the
// working directory or ./configs. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("cpphy")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Link.Driver {
	case DriverPeriph, DriverSerial, DriverSim:
	default:
		return fmt.Errorf("link.driver: unknown driver %q (want %s, %s or %s)",
			c.Link.Driver, DriverPeriph, DriverSerial, DriverSim)
	}
	if c.Link.Driver == DriverSerial && c.Link.SerialPort == "" {
		return errors.New("link.serialPort: required by the serial driver")
	}
	if c.Link.ClockHz <= 0 {
		return fmt.Errorf("link.clockHz: must be positive, got %d", c.Link.ClockHz)
	}
	if c.Timing.PollInterval < 0 || c.Timing.ReplyTimeout < 0 {
		return errors.New("timing: durations must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("link.driver", DriverPeriph)
	v.SetDefault("link.bus", 0)
	v.SetDefault("link.device", 0)
	v.SetDefault("link.resetPin", "GPIO17")
	v.SetDefault("link.readyPin", "GPIO27")
	v.SetDefault("link.serialPort", "")
	v.SetDefault("link.serialBaud", 115200)
	v.SetDefault("link.clockHz", 200000)

	v.SetDefault("timing.resetHold", "50ms")
	v.SetDefault("timing.boot", "200ms")
	v.SetDefault("timing.pollInterval", "1ms")
	v.SetDefault("timing.replyTimeout", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9101")
	v.SetDefault("metrics.path", "/metrics")
}
