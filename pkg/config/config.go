package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/marmos91/fileshover/pkg/adapter/http"
)

// EnvPrefix prefixes every environment override, e.g.
// FILESHOVER_LOGGING_LEVEL=DEBUG.
const EnvPrefix = "FILESHOVER"

// Config represents the complete fileshover configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - The file source and its type-specific options
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FILESHOVER_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Source Configuration Pattern:
// Each file source defines its own option struct, decoded from the matching
// map (files.filesystem) by its factory. Only the section matching
// files.type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Files selects where served files come from
	Files FilesConfig `mapstructure:"files"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP server
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics server port
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// FilesConfig specifies the file source.
//
// The Type field determines which source implementation is used.
type FilesConfig struct {
	// Type specifies which file source to use
	// Valid values: filesystem
	Type string `mapstructure:"type" validate:"required,oneof=filesystem"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	// Keys: root, buffer_size, sniff_content_type
	Filesystem map[string]any `mapstructure:"filesystem"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// HTTP contains HTTP/1.1 configuration.
	// Uses the http.HTTPConfig type directly to avoid duplication.
	HTTP http.HTTPConfig `mapstructure:"http"`
}

// flagKeys maps CLI flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"root":      "files.filesystem.root",
	"port":      "adapters.http.port",
	"workers":   "adapters.http.workers",
	"bind":      "adapters.http.bind_address",
	"log-level": "logging.level",
}

// envKeys lists the keys that can be overridden from the environment even
// when the config file does not mention them.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"files.type",
	"files.filesystem.root",
	"files.filesystem.buffer_size",
	"files.filesystem.sniff_content_type",
	"adapters.http.enabled",
	"adapters.http.bind_address",
	"adapters.http.port",
	"adapters.http.workers",
	"adapters.http.queue_size",
	"adapters.http.read_timeout",
	"adapters.http.write_timeout",
	"adapters.http.shutdown_timeout",
	"adapters.http.metrics_log_interval",
	"adapters.http.accept_rate",
	"adapters.http.accept_burst",
	"adapters.http.reuse_port",
	"adapters.http.max_header_bytes",
	"adapters.http.max_header_count",
	"adapters.http.max_body_bytes",
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FILESHOVER_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with CLI flags layered on top. Only flags the user
// actually set override the file and environment; the rest act as defaults.
// Recognized flags: root, port, workers, bind, log-level.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FILESHOVER_ prefix and underscores
	// Example: FILESHOVER_ADAPTERS_HTTP_PORT=8080
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Defaults that must distinguish "unset" from an explicit false
	v.SetDefault("adapters.http.enabled", true)

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/fileshover/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// bindFlags wires the known CLI flags to their configuration keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit path that does not exist is treated the same way
		if configPath != "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fileshover")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fileshover")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
