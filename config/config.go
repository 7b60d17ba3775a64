// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the QLink
// enumerator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/soothill/qlink-enumerator/pkg/util"
)

// Duration wraps time.Duration so YAML accepts both "3s" style strings
// and integer nanosecond values.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML decodes a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, parseErr := time.ParseDuration(s)
		if parseErr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, parseErr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer")
	}
	*d = Duration(n)
	return nil
}

// Config represents the application configuration
type Config struct {
	Bridge      BridgeConfig      `yaml:"bridge"`
	Enumeration EnumerationConfig `yaml:"enumeration"`
	Export      ExportConfig      `yaml:"export"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Watch       WatchConfig       `yaml:"watch"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BridgeConfig holds bridge connection settings. SettleDelay is a pointer
// so an explicit zero (disable the delay) stays distinguishable from an
// absent key (take the default).
type BridgeConfig struct {
	URL            string    `yaml:"url" validate:"omitempty,url"`
	ServerIndex    int       `yaml:"server_index" validate:"gte=0"`
	CommandTimeout Duration  `yaml:"command_timeout" validate:"gte=0"`
	SendInterval   Duration  `yaml:"send_interval" validate:"gte=0"`
	SettleDelay    *Duration `yaml:"settle_delay" validate:"omitempty,gte=0"`
}

// EnumerationConfig selects the enumeration variant
type EnumerationConfig struct {
	Strategy string `yaml:"strategy" validate:"oneof=flat nested"`
}

// ExportConfig holds output settings
type ExportConfig struct {
	Format string `yaml:"format" validate:"oneof=csv homekit"`
	Path   string `yaml:"path" validate:"required"`
}

// InfluxDBConfig holds the optional inventory sink settings
type InfluxDBConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url" validate:"omitempty,url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// DiscoveryConfig holds mDNS bridge discovery settings
type DiscoveryConfig struct {
	Enabled     bool     `yaml:"enabled"`
	ServiceType string   `yaml:"service_type"`
	Domain      string   `yaml:"domain"`
	Timeout     Duration `yaml:"timeout" validate:"gte=0"`
}

// WatchConfig holds periodic re-enumeration settings
type WatchConfig struct {
	Interval Duration `yaml:"interval" validate:"gte=0"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error fatal panic"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides
func Load(path string) (*Config, error) {
	data, err := util.ReadFileSafely(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the
// configuration
func (c *Config) applyEnvironmentOverrides() {
	if url := os.Getenv("QLINK_BRIDGE_URL"); url != "" {
		c.Bridge.URL = url
	}
	if index := os.Getenv("QLINK_SERVER_INDEX"); index != "" {
		parsed, parseErr := strconv.Atoi(index)
		if parseErr == nil {
			c.Bridge.ServerIndex = parsed
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse QLINK_SERVER_INDEX '%s': %v\n", index, parseErr)
		}
	}
	if delay := os.Getenv("QLINK_SETTLE_DELAY"); delay != "" {
		duration, parseErr := time.ParseDuration(delay)
		if parseErr == nil {
			d := Duration(duration)
			c.Bridge.SettleDelay = &d
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse QLINK_SETTLE_DELAY '%s': %v\n", delay, parseErr)
		}
	}
	if strategy := os.Getenv("QLINK_STRATEGY"); strategy != "" {
		c.Enumeration.Strategy = strategy
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.InfluxDB.Token = token
	}
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.InfluxDB.URL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Bridge.URL == "" && !c.Discovery.Enabled {
		c.Bridge.URL = "http://localhost:3000"
	}
	if c.Bridge.CommandTimeout == 0 {
		c.Bridge.CommandTimeout = Duration(10 * time.Second)
	}
	if c.Bridge.SendInterval == 0 {
		c.Bridge.SendInterval = Duration(100 * time.Millisecond)
	}
	if c.Bridge.SettleDelay == nil {
		d := Duration(3 * time.Second)
		c.Bridge.SettleDelay = &d
	}
	if c.Enumeration.Strategy == "" {
		c.Enumeration.Strategy = "flat"
	}
	if c.Export.Format == "" {
		c.Export.Format = "csv"
	}
	if c.Export.Path == "" {
		if c.Export.Format == "homekit" {
			c.Export.Path = "vantage_homekit.json"
		} else {
			c.Export.Path = "vantage_data.csv"
		}
	}
	if c.Discovery.ServiceType == "" {
		c.Discovery.ServiceType = "_qlink-bridge._tcp"
	}
	if c.Discovery.Domain == "" {
		c.Discovery.Domain = "local."
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = Duration(5 * time.Second)
	}
	if c.Watch.Interval == 0 {
		c.Watch.Interval = Duration(5 * time.Minute)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("field %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return err
	}

	return c.validateCrossFields()
}

// validateCrossFields covers constraints the struct tags cannot express
func (c *Config) validateCrossFields() error {
	if c.Bridge.URL == "" && !c.Discovery.Enabled {
		return fmt.Errorf("bridge.url is required when discovery is disabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Token == "" {
			return fmt.Errorf("influxdb.token is required when influxdb.enabled is true")
		}
		if len(c.InfluxDB.Token) < 8 {
			return fmt.Errorf("influxdb.token must be at least 8 characters long")
		}
		if c.InfluxDB.Organization == "" {
			return fmt.Errorf("influxdb.organization is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.bucket is required when influxdb.enabled is true")
		}
	}

	if c.Watch.Interval.Std() < time.Second {
		return fmt.Errorf("watch.interval must be at least 1 second")
	}
	if c.Bridge.SettleDelay != nil && c.Bridge.SettleDelay.Std() > time.Minute {
		return fmt.Errorf("bridge.settle_delay must not exceed 1 minute")
	}
	if c.Bridge.CommandTimeout.Std() > 5*time.Minute {
		return fmt.Errorf("bridge.command_timeout must not exceed 5 minutes")
	}

	return nil
}
