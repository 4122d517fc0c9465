package config

import (
	"fmt"

	"github.com/marmos91/fileshover/pkg/adapter"
	"github.com/marmos91/fileshover/pkg/adapter/http"
	"github.com/marmos91/fileshover/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete fileshover configuration
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		adapters = append(adapters, http.New(cfg.Adapters.HTTP, httpMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
