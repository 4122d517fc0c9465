// Package http implements the HTTP/1.1 adapter: the accept loop, the worker
// pool that runs one task per connection, and the per-connection state
// machine that parses a request, resolves it against the FileTree and
// streams the response back.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/internal/protocol/http1"
	"github.com/marmos91/fileshover/internal/ratelimiter"
	"github.com/marmos91/fileshover/pkg/filetree"
	"github.com/marmos91/fileshover/pkg/metrics"
	"github.com/marmos91/fileshover/pkg/pool"
)

// HTTPAdapter implements the adapter.Adapter interface for HTTP/1.1.
//
// Architecture:
// A single goroutine runs the accept loop. Every accepted connection is
// registered and submitted to a fixed-size worker pool as one task; the task
// handles exactly one request and always closes the connection. The accept
// loop never does request work. When all workers are busy connections wait
// in the pool queue, and once the queue is full Submit blocks the accept
// loop so further clients wait in the kernel backlog.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Wait for queued and running connections (up to ShutdownTimeout)
//  4. Force-close any remaining connections after timeout
//  5. Stop the worker pool
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called multiple times.
type HTTPAdapter struct {
	config HTTPConfig

	// listener is closed during shutdown to stop accepting
	listener   net.Listener
	listenerMu sync.Mutex

	// ready is closed once the listener is open
	ready chan struct{}

	// boundPort is the port actually bound (differs from config when 0)
	boundPort atomic.Int32

	tree    *filetree.FileTree
	handler *Handler
	pool    *pool.Pool
	limiter *ratelimiter.Limiter
	metrics metrics.HTTPMetrics

	// activeConns counts connections from accept to close
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	// shutdownCtx is cancelled during shutdown; it aborts a Submit blocked
	// on a full queue or a wait on the accept limiter
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// connCtx is handed to every connection task. It outlives a graceful
	// shutdown so queued requests are still answered, and is cancelled only
	// when connections are force-closed.
	connCtx     context.Context
	cancelConns context.CancelFunc

	// liveConns maps connection IDs to sockets for forced closure
	liveConns *xsync.MapOf[string, net.Conn]

	poolStopOnce sync.Once
}

// HTTPConfig holds configuration parameters for the HTTP server.
//
// Default values (applied by New if zero):
//   - Workers: 10
//   - QueueSize: 128
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//   - MaxHeaderBytes / MaxHeaderCount / MaxBodyBytes: 16KiB / 100 / 1MiB
//
// Port 0 binds an ephemeral port; Port() reports the real one once Serve
// has opened the listener.
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// BindAddress is the interface to listen on. Empty means all.
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip|hostname"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Workers is the number of connections served concurrently.
	Workers int `mapstructure:"workers" validate:"min=0,max=10000"`

	// QueueSize is how many accepted connections may wait for a worker
	// before the accept loop itself blocks.
	QueueSize int `mapstructure:"queue_size" validate:"min=0"`

	// ReadTimeout bounds reading the whole request, from accept to the
	// end of the body. A stalled client cannot hold a worker longer.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds each chunk written to the client. It is re-armed
	// before every write, so large files are not cut off while a slow
	// client that stops reading still is.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long shutdown waits for connections before
	// force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the status log line.
	// 0 disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`

	// AcceptRate throttles accepted connections per second.
	// 0 disables throttling.
	AcceptRate float64 `mapstructure:"accept_rate" validate:"min=0"`

	// AcceptBurst is the token bucket size used with AcceptRate.
	AcceptBurst int `mapstructure:"accept_burst" validate:"min=0"`

	// ReusePort opens the listener with SO_REUSEPORT so several processes
	// can share the port.
	ReusePort bool `mapstructure:"reuse_port"`

	// Request parser limits.
	MaxHeaderBytes int   `mapstructure:"max_header_bytes" validate:"min=0"`
	MaxHeaderCount int   `mapstructure:"max_header_count" validate:"min=0"`
	MaxBodyBytes   int64 `mapstructure:"max_body_bytes" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	// Enabled and Port defaults live in pkg/config so that explicit
	// false / 0 values from files survive.

	if c.Workers <= 0 {
		c.Workers = pool.DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = pool.DefaultQueueSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = http1.DefaultMaxHeaderBytes
	}
	if c.MaxHeaderCount == 0 {
		c.MaxHeaderCount = http1.DefaultMaxHeaderCount
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = http1.DefaultMaxBodyBytes
	}
}

// validate checks that the configuration is usable.
func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid Workers %d: must be > 0", c.Workers)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid AcceptRate %v: must be >= 0", c.AcceptRate)
	}
	return nil
}

// Limits returns the request parser limits.
func (c *HTTPConfig) Limits() http1.Limits {
	return http1.Limits{
		MaxHeaderBytes: c.MaxHeaderBytes,
		MaxHeaderCount: c.MaxHeaderCount,
		MaxBodyBytes:   c.MaxBodyBytes,
	}
}

// Address returns the host:port the listener binds.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// New creates a new HTTPAdapter.
//
// The adapter is created in a stopped state. Call SetFileTree() and then
// Serve() to start accepting connections.
//
// Parameters:
//   - config: Server configuration (port, pool size, timeouts, limits)
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())
	connCtx, cancelConns := context.WithCancel(context.Background())

	a := &HTTPAdapter{
		config:  config,
		ready:   make(chan struct{}),
		metrics: httpMetrics,
		pool: pool.New(pool.Config{
			Workers:   config.Workers,
			QueueSize: config.QueueSize,
			Observer:  httpMetrics,
		}),
		limiter:        ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		connCtx:        connCtx,
		cancelConns:    cancelConns,
		liveConns:      xsync.NewMapOf[string, net.Conn](),
	}
	a.boundPort.Store(int32(config.Port))

	if a.limiter.Enabled() {
		logger.Debug("HTTP accept rate limit: %.1f/s burst %d", config.AcceptRate, config.AcceptBurst)
	}

	return a
}

// SetFileTree injects the tree requests are resolved against.
func (s *HTTPAdapter) SetFileTree(tree *filetree.FileTree) {
	s.tree = tree
	s.handler = NewHandler(tree, s.metrics)
	logger.Debug("HTTP file tree configured: %s", tree.Root())
}

// Serve opens the listener and runs the accept loop until the context is
// cancelled or Stop is called.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or connections had to be
//     force-closed
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("HTTP adapter has no file tree")
	}

	listener, err := s.listen()
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on %s: %w", s.config.Address(), err)
	}
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	select {
	case <-s.shutdown:
		// Stop won the race with listen.
		_ = listener.Close()
		return nil
	default:
	}
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}
	close(s.ready)

	s.pool.Start()

	logger.Info("HTTP server listening on %s", listener.Addr())
	logger.Debug("HTTP config: workers=%d queue=%d read_timeout=%v write_timeout=%v reuse_port=%v",
		s.config.Workers, s.config.QueueSize, s.config.ReadTimeout, s.config.WriteTimeout, s.config.ReusePort)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				// Usually resource exhaustion (EMFILE); back off briefly so
				// the loop does not spin.
				logger.Debug("Error accepting HTTP connection: %v", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
		}

		if d := s.limiter.Delay(); d > 0 {
			logger.Debug("HTTP accept throttled: holding %s for %v", tcpConn.RemoteAddr(), d)
		}
		if err := s.limiter.Wait(s.shutdownCtx); err != nil {
			_ = tcpConn.Close()
			continue
		}

		s.dispatch(tcpConn)
	}
}

// dispatch registers a connection and queues it on the worker pool.
func (s *HTTPAdapter) dispatch(tcpConn net.Conn) {
	id := uuid.NewString()

	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.liveConns.Store(id, tcpConn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	logger.Debug("HTTP connection %s accepted from %s (active: %d)", id, tcpConn.RemoteAddr(), current)

	conn := NewHTTPConnection(s, tcpConn, id)
	task := func() {
		defer s.release(id, tcpConn)
		conn.Serve(s.connCtx)
	}

	if err := s.pool.Submit(s.shutdownCtx, task); err != nil {
		logger.Debug("HTTP connection %s dropped before dispatch: %v", id, err)
		_ = tcpConn.Close()
		s.release(id, tcpConn)
	}
}

// release undoes the bookkeeping done by dispatch.
func (s *HTTPAdapter) release(id string, tcpConn net.Conn) {
	s.liveConns.Delete(id)
	current := s.connCount.Add(-1)
	s.activeConns.Done()

	s.metrics.RecordConnectionClosed()
	s.metrics.SetActiveConnections(current)

	logger.Debug("HTTP connection %s closed from %s (active: %d)", id, tcpConn.RemoteAddr(), current)
}

// initiateShutdown stops the accept loop. Safe to call multiple times.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")

		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing HTTP listener: %v", err)
			}
		}
		s.listenerMu.Unlock()

		// Unblocks an accept loop waiting on a full queue or the limiter.
		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections to complete or timeout,
// then stops the pool.
func (s *HTTPAdapter) gracefulShutdown() error {
	defer s.stopPool()

	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	done := s.waitConnections()

	select {
	case <-done:
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("HTTP shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *HTTPAdapter) waitConnections() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// stopPool drains the pool. Every queued task sees either a live or a
// force-closed socket, so this returns promptly after forceCloseConnections.
func (s *HTTPAdapter) stopPool() {
	s.poolStopOnce.Do(s.pool.Stop)
}

// forceCloseConnections closes every tracked socket. Blocked reads and
// writes fail immediately, which lets the tasks holding them finish.
func (s *HTTPAdapter) forceCloseConnections() {
	logger.Info("Force-closing active HTTP connections")
	s.cancelConns()

	closedCount := 0
	s.liveConns.Range(func(id string, conn net.Conn) bool {
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", id, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for connections until ctx
// ends.
//
// Returns:
//   - nil once every connection has finished
//   - ctx.Err() if ctx ended first; remaining connections are force-closed
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		ctx = context.Background()
	}

	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (context timeout)",
		s.connCount.Load())

	select {
	case <-s.waitConnections():
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// logMetrics periodically logs server load until ctx is cancelled.
func (s *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("HTTP metrics: active_connections=%d running=%d queued=%d peak=%d served=%d",
				s.connCount.Load(), s.pool.Running(), s.pool.Queued(), s.pool.Peak(), s.pool.Completed())
		}
	}
}

// GetActiveConnections returns the number of connections accepted and not
// yet closed, queued ones included.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// PeakConcurrency returns the highest number of connections that were
// being handled at the same time.
func (s *HTTPAdapter) PeakConcurrency() int {
	return s.pool.Peak()
}

// Ready is closed once the listener is open and Port reports the bound
// port.
func (s *HTTPAdapter) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the TCP port the HTTP server is listening on.
func (s *HTTPAdapter) Port() int {
	return int(s.boundPort.Load())
}

// Protocol returns "HTTP" as the protocol identifier.
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
