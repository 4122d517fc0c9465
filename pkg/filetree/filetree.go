// Package filetree resolves request paths against a single root directory.
//
// A FileTree is built once at startup and shared read-only by every worker.
// Every path it resolves is the root or a descendant of it after
// canonicalization: ".." segments, absolute-looking paths and symlinks that
// point outside the root are all rejected.
package filetree

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/internal/mime"
)

// DefaultBufferSize is the size of the buffered reader wrapped around each
// resolved file.
const DefaultBufferSize = 32 << 10

// Options tunes how files are opened.
type Options struct {
	// BufferSize is the bufio buffer size per resolved file.
	// Zero means DefaultBufferSize.
	BufferSize int

	// SniffContentType enables content sniffing for files whose extension
	// is not in the MIME table. Sniffing reads the first few KB of the file
	// and rewinds before the body is streamed.
	SniffContentType bool
}

// FileTree is an immutable handle on a canonicalized root directory.
//
// Thread Safety:
// All methods are safe for concurrent use. Nothing in a FileTree changes
// after New returns.
type FileTree struct {
	root string
	dir  *os.Root
	opts Options
}

// New canonicalizes root and opens it.
//
// Parameters:
//   - root: Directory to serve. Relative paths are made absolute and
//     symlinks are resolved.
//   - opts: Open options
//
// Returns:
//   - *FileTree: Ready to resolve paths; Close it at shutdown
//   - error: ErrInvalidRoot if root does not exist or is not a directory
func New(root string, opts Options) (*FileTree, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	dir, err := os.OpenRoot(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	return &FileTree{root: canonical, dir: dir, opts: opts}, nil
}

// Root returns the canonical absolute root path.
func (t *FileTree) Root() string {
	return t.root
}

// Close releases the root directory handle.
func (t *FileTree) Close() error {
	return t.dir.Close()
}

// Resolve maps a request path onto a regular file below root and opens it.
//
// The path is used byte for byte: no percent-decoding is applied. Leading
// slashes are stripped, so "/a/b" and "//a/b" both name root/a/b.
//
// Parameters:
//   - ctx: Checked before any filesystem access
//   - requestPath: Path component of the request target
//
// Returns:
//   - *ResolvedFile: Open file, owned by the caller
//   - error: Wraps ErrNotFound, ErrForbidden or ErrIO
func (t *FileTree) Resolve(ctx context.Context, requestPath string) (*ResolvedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canonical, err := t.canonicalize(requestPath)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 5: Must be a regular file
	// ========================================================================

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, classifyLookupError(requestPath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file: %w", requestPath, ErrNotFound)
	}

	// ========================================================================
	// Step 6: Open through the root handle
	// ========================================================================

	rel, err := filepath.Rel(t.root, canonical)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", requestPath, ErrForbidden)
	}

	file, err := t.dir.OpenFile(rel, openFlags, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %v: %w", requestPath, err, ErrIO)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: fstat: %v: %w", requestPath, err, ErrIO)
	}
	if !stat.Mode().IsRegular() {
		_ = file.Close()
		return nil, fmt.Errorf("%s: not a regular file: %w", requestPath, ErrNotFound)
	}

	// ========================================================================
	// Step 7: Content type
	// ========================================================================

	contentType, err := t.contentType(canonical, stat.Size(), file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %v: %w", requestPath, err, ErrIO)
	}

	logger.Debug("Resolved %s -> %s (%d bytes, %s)", requestPath, canonical, stat.Size(), contentType)

	return &ResolvedFile{
		Path:        canonical,
		Size:        stat.Size(),
		ContentType: contentType,
		ModTime:     stat.ModTime(),
		file:        file,
		reader:      bufio.NewReaderSize(file, t.opts.BufferSize),
	}, nil
}

// contentType picks the Content-Type for path, sniffing r when the
// extension is unknown and sniffing is enabled. r is left at offset 0.
func (t *FileTree) contentType(path string, size int64, r io.ReadSeeker) (string, error) {
	if ct, known := mime.TypeByExtension(filepath.Ext(path)); known {
		return ct, nil
	}
	if !t.opts.SniffContentType || size == 0 {
		return mime.Default, nil
	}
	return mime.Sniff(r)
}

// canonicalize runs the containment checks and returns the canonical path
// of requestPath.
func (t *FileTree) canonicalize(requestPath string) (string, error) {
	// ========================================================================
	// Step 1: Reject NUL bytes
	// ========================================================================

	if strings.IndexByte(requestPath, 0) >= 0 {
		return "", fmt.Errorf("%q: NUL byte in path: %w", requestPath, ErrForbidden)
	}

	// ========================================================================
	// Step 2: Make the path root-relative
	// ========================================================================

	rel := strings.TrimLeft(filepath.FromSlash(requestPath), string(filepath.Separator))
	if rel == "" {
		return "", fmt.Errorf("%s: root is not a file: %w", requestPath, ErrNotFound)
	}

	// ========================================================================
	// Step 3: Lexical containment
	// ========================================================================

	joined := filepath.Join(t.root, rel)
	if !t.contains(joined) {
		return "", fmt.Errorf("%s: %w", requestPath, ErrForbidden)
	}

	// ========================================================================
	// Step 4: Resolve symlinks and check containment again
	// ========================================================================

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", classifyLookupError(requestPath, err)
	}
	if !t.contains(canonical) {
		return "", fmt.Errorf("%s: resolves to %s: %w", requestPath, canonical, ErrForbidden)
	}

	return canonical, nil
}

// contains reports whether p is root or a descendant of root. p must be
// clean and absolute.
func (t *FileTree) contains(p string) bool {
	if p == t.root {
		return true
	}
	prefix := t.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// classifyLookupError maps a stat or symlink-resolution failure.
func classifyLookupError(requestPath string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.ENAMETOOLONG) {
		return fmt.Errorf("%s: %w", requestPath, ErrNotFound)
	}
	return fmt.Errorf("%s: %v: %w", requestPath, err, ErrIO)
}
