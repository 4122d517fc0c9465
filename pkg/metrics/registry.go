// Package metrics defines the metrics interfaces used by fileshover and
// owns the Prometheus registry they report to.
//
// Metrics are optional. Until InitRegistry is called every constructor hands
// out a no-op implementation, so the serving path pays nothing for them.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewHTTPMetrics()
//	adapter := http.New(cfg, m)
//
//	// or, without metrics
//	adapter := http.New(cfg, nil)
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// registry is written once by InitRegistry and read everywhere else.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry with the Go runtime and process
// collectors attached. Later calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Handler serves the registry in the Prometheus exposition format. When
// metrics are disabled it answers 503.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Metrics collection is disabled\n"))
		})
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
