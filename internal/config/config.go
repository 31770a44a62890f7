// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Bridge  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BridgeConfig tunes the websocket bridge that the browser extension
// connects to. The server only ever binds loopback; Port is the single
// externally tunable transport parameter.
type BridgeConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	LandingURL     string        `mapstructure:"landing_url" yaml:"landing_url"`
	MaxMessageSize int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
}

// GatewayConfig configures the HTTP API consumed by the web dashboard.
type GatewayConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// StoreConfig holds the task history database location.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "drover")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Bridge --
	v.SetDefault("bridge.port", 9898)
	v.SetDefault("bridge.command_timeout", "30s")
	v.SetDefault("bridge.landing_url", "https://www.google.com")
	v.SetDefault("bridge.max_message_size", 16*1024*1024)

	// -- Gateway --
	v.SetDefault("gateway.addr", "127.0.0.1:8787")
	v.SetDefault("gateway.queue_size", 100)

	// -- Store --
	v.SetDefault("store.path", "drover.db")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be a valid TCP port, got %d", c.Bridge.Port)
	}
	if c.Bridge.CommandTimeout <= 0 {
		return fmt.Errorf("bridge.command_timeout must be a positive duration")
	}
	if c.Bridge.MaxMessageSize <= 0 {
		return fmt.Errorf("bridge.max_message_size must be positive")
	}
	if c.Bridge.LandingURL != "" {
		if _, err := url.ParseRequestURI(c.Bridge.LandingURL); err != nil {
			return fmt.Errorf("bridge.landing_url is not a valid URL: %w", err)
		}
	}
	if c.Gateway.QueueSize <= 0 {
		return fmt.Errorf("gateway.queue_size must be a positive integer")
	}
	return nil
}
