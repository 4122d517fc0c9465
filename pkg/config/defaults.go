package config

import (
	"strings"
	"time"

	"github.com/marmos91/fileshover/internal/protocol/http1"
	"github.com/marmos91/fileshover/pkg/adapter/http"
	"github.com/marmos91/fileshover/pkg/pool"
)

// Default values shared by ApplyDefaults and the generated config file.
const (
	DefaultHTTPPort    = 7878
	DefaultMetricsPort = 9090
	DefaultSampleRoot  = "/srv/www"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Source-specific defaults (buffer size) are handled by the source
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyFilesDefaults(&cfg.Files)
	applyHTTPDefaults(&cfg.Adapters.HTTP)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyFilesDefaults sets file source defaults.
func applyFilesDefaults(cfg *FilesConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
}

// applyHTTPDefaults sets HTTP adapter defaults.
func applyHTTPDefaults(cfg *http.HTTPConfig) {
	// Enabled defaults to true in setupViper so an explicit false survives.

	if cfg.Port == 0 {
		cfg.Port = DefaultHTTPPort
	}

	if cfg.Workers == 0 {
		cfg.Workers = pool.DefaultWorkers
	}

	if cfg.QueueSize == 0 {
		cfg.QueueSize = pool.DefaultQueueSize
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	// MetricsLogInterval defaults to 0 (disabled)

	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = http1.DefaultMaxHeaderBytes
	}

	if cfg.MaxHeaderCount == 0 {
		cfg.MaxHeaderCount = http1.DefaultMaxHeaderCount
	}

	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = http1.DefaultMaxBodyBytes
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// The root is left empty: it has no sensible default and must come from the
// --root flag or the config file.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Files: FilesConfig{
			Filesystem: make(map[string]any),
		},
		Adapters: AdaptersConfig{
			HTTP: http.HTTPConfig{
				Enabled: true, // HTTP adapter enabled by default
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
