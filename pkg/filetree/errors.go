package filetree

import "errors"

// ============================================================================
// Standard FileTree Errors
// ============================================================================

// Resolve wraps one of these errors with the request path. Callers classify
// them with errors.Is:
//
//	f, err := tree.Resolve(ctx, req.Path())
//	if err != nil {
//	    switch {
//	    case errors.Is(err, filetree.ErrNotFound), errors.Is(err, filetree.ErrForbidden):
//	        // 404
//	    default:
//	        // 500
//	    }
//	}

var (
	// ErrNotFound indicates the path does not name a regular file below root.
	//
	// This error is returned when:
	//   - The path, or one of its parents, does not exist
	//   - The path names a directory, device, socket or FIFO
	//   - The path is the root itself
	ErrNotFound = errors.New("file not found")

	// ErrForbidden indicates the path would resolve outside root.
	//
	// This error is returned when:
	//   - ".." segments climb above root
	//   - A symlink below root points outside it
	//   - The path contains a NUL byte
	//
	// On the wire this is indistinguishable from ErrNotFound.
	ErrForbidden = errors.New("path escapes root")

	// ErrIO indicates the file exists but could not be opened or inspected,
	// e.g. permission denied or the file vanished between stat and open.
	ErrIO = errors.New("file I/O error")

	// ErrInvalidRoot is returned by New when the root is missing or is not
	// a directory.
	ErrInvalidRoot = errors.New("invalid root directory")
)
