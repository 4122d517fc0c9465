package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/fileshover/internal/logger"
)

// Server exposes the registry over HTTP:
//   - GET /metrics: Prometheus exposition format
//   - GET /: index page linking to /metrics
type Server struct {
	server       *http.Server
	port         int
	ready        chan struct{}
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. 0 picks a free port (tests).
	// Default: 9090 when negative.
	Port int
}

func (c *ServerConfig) applyDefaults() {
	if c.Port < 0 {
		c.Port = 9090
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>fileshover metrics</title></head>
<body>
<h1>fileshover</h1>
<p>Prometheus metrics: <a href="/metrics">/metrics</a></p>
</body>
</html>
`

// NewServer creates a stopped metrics server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(indexPage))
	})

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		port:  config.Port,
		ready: make(chan struct{}),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener could not be opened or serving failed
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}
	s.port = ln.Addr().(*net.TCPAddr).Port
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on port %d", s.port)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The cancelled ctx would abort shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Ready is closed once the listener is open and Port is final.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	return s.port
}
