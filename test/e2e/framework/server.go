package framework

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/pkg/adapter/http"
	"github.com/marmos91/fileshover/pkg/filetree"
	"github.com/marmos91/fileshover/pkg/server"
)

// TestServerConfig holds configuration for the test server.
// This is distinct from pkg/config.ServerConfig (application-level server settings).
type TestServerConfig struct {
	Root           string
	Workers        int
	QueueSize      int
	ReadTimeout    time.Duration
	LogLevel       string
	StartupTimeout time.Duration
}

// TestServer wraps a fileshover server bound to an ephemeral port on
// 127.0.0.1.
type TestServer struct {
	t       testing.TB
	config  TestServerConfig
	server  *server.FileServer
	adapter *http.HTTPAdapter
	tree    *filetree.FileTree
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewTestServer creates a new test server instance
func NewTestServer(t testing.TB, config TestServerConfig) *TestServer {
	t.Helper()

	if config.Root == "" {
		config.Root = t.TempDir()
	}
	if config.Workers == 0 {
		config.Workers = 4
	}
	if config.LogLevel == "" {
		config.LogLevel = "ERROR" // Keep tests quiet by default
	}
	if config.StartupTimeout == 0 {
		config.StartupTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TestServer{
		t:      t,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the test server
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}

	ts.t.Helper()

	logger.SetLevel(ts.config.LogLevel)

	tree, err := filetree.New(ts.config.Root, filetree.Options{})
	if err != nil {
		return fmt.Errorf("failed to open root: %w", err)
	}
	ts.tree = tree

	ts.adapter = http.New(http.HTTPConfig{
		Enabled:         true,
		BindAddress:     "127.0.0.1",
		Port:            0,
		Workers:         ts.config.Workers,
		QueueSize:       ts.config.QueueSize,
		ReadTimeout:     ts.config.ReadTimeout,
		ShutdownTimeout: 2 * time.Second,
	}, nil) // nil = no metrics for tests

	ts.server = server.New(tree)
	ts.server.SetStopTimeout(5 * time.Second)
	if err := ts.server.AddAdapter(ts.adapter); err != nil {
		_ = tree.Close()
		return err
	}

	serveErr := make(chan error, 1)
	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		err := ts.server.Serve(ts.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			ts.t.Logf("Server error: %v", err)
		}
		serveErr <- err
	}()

	select {
	case <-ts.adapter.Ready():
	case err := <-serveErr:
		_ = tree.Close()
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(ts.config.StartupTimeout):
		ts.cancel()
		ts.wg.Wait()
		_ = tree.Close()
		return fmt.Errorf("timeout waiting for server to start")
	}

	ts.started = true
	ts.t.Logf("Server started on %s serving %s", ts.Addr(), tree.Root())
	return nil
}

// Stop stops the test server and releases the root
func (ts *TestServer) Stop() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return nil
	}

	ts.t.Helper()
	ts.t.Logf("Stopping server...")

	ts.cancel()

	done := make(chan struct{})
	go func() {
		ts.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ts.t.Logf("Server stopped gracefully")
	case <-time.After(10 * time.Second):
		ts.t.Logf("Server stop timeout")
	}

	ts.started = false
	return ts.tree.Close()
}

// Port returns the port the server is listening on
func (ts *TestServer) Port() int {
	return ts.adapter.Port()
}

// Addr returns host:port for dialing the server
func (ts *TestServer) Addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(ts.Port()))
}

// Root returns the canonical root being served
func (ts *TestServer) Root() string {
	return ts.tree.Root()
}

// PeakConcurrency reports the highest number of connections served at once
func (ts *TestServer) PeakConcurrency() int {
	return ts.adapter.PeakConcurrency()
}
