package http

import (
	"context"
	"errors"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/internal/protocol/http1"
	"github.com/marmos91/fileshover/pkg/filetree"
	"github.com/marmos91/fileshover/pkg/metrics"
)

// AllowedMethods is advertised in the Allow header of every 405.
const AllowedMethods = http1.MethodGet

// Resolve outcomes reported to metrics.
const (
	resolveOK       = "ok"
	resolveNotFound = "not_found"
	resolveDenied   = "forbidden"
	resolveError    = "error"
)

// Handler maps a parsed request to a response.
//
// It holds no per-request state and is shared by all connections.
type Handler struct {
	tree    *filetree.FileTree
	metrics metrics.HTTPMetrics
}

// NewHandler creates a handler serving files out of tree.
func NewHandler(tree *filetree.FileTree, m metrics.HTTPMetrics) *Handler {
	if m == nil {
		m = metrics.NewNoopHTTPMetrics()
	}
	return &Handler{tree: tree, metrics: m}
}

// Handle builds the response for req.
//
// Status mapping:
//   - method other than GET: 405 with Allow: GET
//   - ErrNotFound, ErrForbidden: 404
//   - ErrIO or any other failure: 500
//   - success: 200 streaming the file
//
// When the returned file is non-nil the response body reads from it and the
// caller must close it once the response is written.
func (h *Handler) Handle(ctx context.Context, req *http1.Request) (*http1.Response, *filetree.ResolvedFile) {
	if req.Method != http1.MethodGet {
		return http1.MethodNotAllowed(AllowedMethods), nil
	}

	path := req.Path()
	f, err := h.tree.Resolve(ctx, path)
	switch {
	case err == nil:
		h.metrics.RecordResolve(resolveOK)
		return http1.FileResponse(f.ContentType, f.Size, f.Reader()), f

	case errors.Is(err, filetree.ErrNotFound):
		h.metrics.RecordResolve(resolveNotFound)
		logger.Debug("Not found: %q", path)
		return http1.ErrorResponse(http1.StatusNotFound), nil

	case errors.Is(err, filetree.ErrForbidden):
		// Same answer as a miss so clients cannot probe outside the root.
		h.metrics.RecordResolve(resolveDenied)
		logger.Warn("Rejected path outside root: %q: %v", path, err)
		return http1.ErrorResponse(http1.StatusNotFound), nil

	default:
		h.metrics.RecordResolve(resolveError)
		logger.Error("Failed to open %q: %v", path, err)
		return http1.ErrorResponse(http1.StatusInternalServerError), nil
	}
}
