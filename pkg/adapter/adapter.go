package adapter

import (
	"context"

	"github.com/marmos91/fileshover/pkg/filetree"
)

// Adapter represents a protocol server managed by FileServer.
//
// An adapter owns a listener and the connections accepted on it, and serves
// files out of the FileTree it is given. Only HTTP/1.1 exists today, but the
// server treats adapters uniformly so more front ends can share one tree.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Tree injection: SetFileTree() provides the shared, read-only root
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetFileTree() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active connections to finish (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, FileServer treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// SetFileTree injects the tree every request is resolved against.
	//
	// Called exactly once by FileServer before Serve(). The tree is shared
	// by all adapters and never mutated.
	SetFileTree(tree *filetree.FileTree)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	//
	// Returns:
	//   - nil if shutdown completed successfully
	//   - error if shutdown exceeded timeout or encountered errors
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter is listening on. Before the
	// listener is open it returns the configured port.
	Port() int
}
