package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/pkg/adapter"
	"github.com/marmos91/fileshover/pkg/filetree"
	"github.com/marmos91/fileshover/pkg/metrics"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve has already been called")

// DefaultStopTimeout bounds the Stop call made on each adapter at shutdown.
const DefaultStopTimeout = 30 * time.Second

// FileServer manages the lifecycle of the protocol adapters that serve one
// shared FileTree.
//
// Lifecycle:
//  1. Creation: New() with the tree
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters (and the metrics server) concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Thread safety:
// FileServer is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	srv := New(tree)
//	srv.AddAdapter(http.New(httpConfig, httpMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type FileServer struct {
	// tree is the shared read-only root for all adapters
	tree *filetree.FileTree

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// metricsServer is optional
	metricsServer *metrics.Server

	// stopTimeout bounds the Stop() call on each adapter
	stopTimeout time.Duration

	// mu protects adapters and metricsServer
	mu sync.RWMutex

	// served is set by the first Serve() call
	served atomic.Bool
}

// New creates a FileServer over tree.
//
// Panics if tree is nil (indicates programmer error).
func New(tree *filetree.FileTree) *FileServer {
	if tree == nil {
		panic("file tree cannot be nil")
	}

	return &FileServer{
		tree:        tree,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout changes how long each adapter is given to stop.
func (s *FileServer) SetStopTimeout(d time.Duration) {
	if d > 0 {
		s.stopTimeout = d
	}
}

// SetMetricsServer registers the Prometheus endpoint. It is started and
// stopped together with the adapters.
func (s *FileServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = m
}

// AddAdapter registers a new protocol adapter with the server.
//
// This method injects the shared tree into the adapter and adds it to the
// list of adapters that will be started when Serve() is called.
//
// Returns:
//   - error if the adapter conflicts with an existing adapter
//
// Panics if:
//   - adapter is nil (programmer error)
//   - Serve() has already been called (server is running)
func (s *FileServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		// Port 0 asks for an ephemeral port and never conflicts
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	a.SetFileTree(s.tree)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until the context is cancelled
// or an adapter fails.
//
// Serve() orchestrates the lifecycle of all adapters:
//  1. Validates that at least one adapter is registered
//  2. Starts all adapters (and the metrics server, if set) concurrently
//  3. Monitors for context cancellation or adapter failures
//  4. On shutdown signal: stops all adapters in reverse order
//  5. Waits for all adapters to complete shutdown
//
// Returns:
//   - context.Canceled (or ctx.Err()) if shutdown was triggered by the context
//   - error if startup failed or an adapter failed while serving
//   - ErrAlreadyServed on a second call
func (s *FileServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return ErrAlreadyServed
	}
	return s.serve(ctx)
}

func (s *FileServer) serve(ctx context.Context) error {
	s.mu.RLock()
	if len(s.adapters) == 0 {
		s.mu.RUnlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	s.mu.RUnlock()

	logger.Info("Starting file server with %d adapter(s), root %s", len(adapters), s.tree.Root())

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters)+1)

	var wg sync.WaitGroup

	// The metrics server gets its own context so it outlives the adapters
	// just long enough to report their shutdown.
	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	defer cancelMetrics()
	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(metricsCtx); err != nil {
				errChan <- adapterError{protocol: "metrics", err: err}
			}
		}()
	}

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Debug("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				// context.Canceled is expected during shutdown
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Warn("%s adapter stopped: %v", protocol, err)
				}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancelMetrics()

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("File server stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters initiates graceful shutdown of all adapters in reverse
// registration order. Errors are logged; remaining adapters are still
// stopped.
func (s *FileServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stop signal sent", protocol)
		}
	}
}

// Adapters returns a snapshot of currently registered adapters.
func (s *FileServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
