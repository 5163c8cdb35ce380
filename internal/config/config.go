package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/billm/baaaht/messenger/pkg/types"
)

// Config represents the complete configuration for the messenger
type Config struct {
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Messenger MessengerConfig `json:"messenger" yaml:"messenger"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stdout, stderr, file path
}

// MessengerConfig contains the local messenger configuration
type MessengerConfig struct {
	Transport      string        `json:"transport" yaml:"transport"`             // memory, sysv
	QueueCapacity  int           `json:"queue_capacity" yaml:"queue_capacity"`   // memory transport only
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`                 // per send/receive attempt
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval"`     // pause between failed attempts
	MaxMessageSize int           `json:"max_message_size" yaml:"max_message_size"` // bytes, at most the compiled envelope capacity
	ReleaseOnKill  bool          `json:"release_on_kill" yaml:"release_on_kill"` // reclaim the transport on kill
}

// DefaultConfig returns a configuration populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Logging:   DefaultLoggingConfig(),
		Messenger: DefaultMessengerConfig(),
	}
}

// applyDefaults fills in zero-valued config fields with their defaults
// This is called after loading from YAML to ensure partial configs have sensible defaults
func applyDefaults(cfg *Config) {
	defaultLogging := DefaultLoggingConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = defaultLogging.Output
	}

	defaultMessenger := DefaultMessengerConfig()
	if cfg.Messenger.Transport == "" {
		cfg.Messenger.Transport = defaultMessenger.Transport
	}
	if cfg.Messenger.QueueCapacity == 0 {
		cfg.Messenger.QueueCapacity = defaultMessenger.QueueCapacity
	}
	if cfg.Messenger.Timeout == 0 {
		cfg.Messenger.Timeout = defaultMessenger.Timeout
	}
	if cfg.Messenger.PollInterval == 0 {
		cfg.Messenger.PollInterval = defaultMessenger.PollInterval
	}
	if cfg.Messenger.MaxMessageSize == 0 {
		cfg.Messenger.MaxMessageSize = defaultMessenger.MaxMessageSize
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}

	if v := os.Getenv(EnvMessengerTransport); v != "" {
		cfg.Messenger.Transport = v
	}
	if v := os.Getenv(EnvMessengerQueueCapacity); v != "" {
		capacity, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvMessengerQueueCapacity, err)
		}
		cfg.Messenger.QueueCapacity = capacity
	}
	if v := os.Getenv(EnvMessengerTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvMessengerTimeout, err)
		}
		cfg.Messenger.Timeout = d
	}
	if v := os.Getenv(EnvMessengerPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvMessengerPollInterval, err)
		}
		cfg.Messenger.PollInterval = d
	}
	if v := os.Getenv(EnvMessengerMaxMessageSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvMessengerMaxMessageSize, err)
		}
		cfg.Messenger.MaxMessageSize = size
	}
	if v := os.Getenv(EnvMessengerReleaseOnKill); v != "" {
		cfg.Messenger.ReleaseOnKill = strings.ToLower(v) == "true" || v == "1"
	}

	return nil
}

// Load creates a new Config by loading defaults and overriding with environment variables
func Load() (*Config, error) {
	var cfg *Config

	// Try to load from default config file if it exists
	configPath, err := GetDefaultConfigPath()
	if err == nil {
		if _, err := os.Stat(configPath); err == nil {
			cfg, err = LoadFromFile(configPath)
			if err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to check config file: %w", err)
		}
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log format: %s (must be json or text)", c.Logging.Format))
	}

	return c.Messenger.Validate()
}

// Validate checks the messenger section on its own, so callers that build a
// MessengerConfig directly get the same checks as a loaded file
func (c MessengerConfig) Validate() error {
	validTransports := map[string]bool{
		TransportMemory: true,
		TransportSysV:   true,
	}
	if !validTransports[c.Transport] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid messenger transport: %s (must be memory or sysv)", c.Transport))
	}
	if c.Transport == TransportMemory && c.QueueCapacity <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "messenger queue capacity must be positive")
	}
	if c.Timeout < 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "messenger timeout cannot be negative")
	}
	if c.PollInterval < 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "messenger poll interval cannot be negative")
	}
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > MaxMessageSizeLimit {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("messenger max message size must be between 1 and %d", MaxMessageSizeLimit))
	}
	return nil
}

// ApplyOverrides applies CLI flag-style overrides to the configuration.
// This is used by the root command to apply CLI flag values after loading from
// defaults, YAML file, and environment variables.
func (c *Config) ApplyOverrides(opts OverrideOptions) {
	if opts.LogLevel != "" {
		c.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		c.Logging.Format = opts.LogFormat
	}
	if opts.LogOutput != "" {
		c.Logging.Output = opts.LogOutput
	}

	if opts.Transport != "" {
		c.Messenger.Transport = opts.Transport
	}
	if opts.Timeout > 0 {
		c.Messenger.Timeout = opts.Timeout
	}
	if opts.QueueCapacity > 0 {
		c.Messenger.QueueCapacity = opts.QueueCapacity
	}
}

// OverrideOptions contains override options typically set via CLI flags
type OverrideOptions struct {
	// Logging options
	LogLevel  string
	LogFormat string
	LogOutput string

	// Messenger options
	Transport     string
	Timeout       time.Duration
	QueueCapacity int
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %s, Messenger: %s}", c.Logging.String(), c.Messenger.String())
}

func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}",
		c.Level, c.Format, c.Output)
}

func (c MessengerConfig) String() string {
	return fmt.Sprintf("MessengerConfig{Transport: %s, QueueCapacity: %d, Timeout: %s, PollInterval: %s, MaxMessageSize: %d, ReleaseOnKill: %v}",
		c.Transport, c.QueueCapacity, c.Timeout, c.PollInterval, c.MaxMessageSize, c.ReleaseOnKill)
}
