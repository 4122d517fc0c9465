package config

import (
	"github.com/marmos91/fileshover/pkg/metrics"
	promMetrics "github.com/marmos91/fileshover/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the metrics collector for the HTTP adapter (never nil, uses noop if disabled)
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:      nil,
			HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		HTTPMetrics: promMetrics.NewHTTPMetrics(),
	}
}
