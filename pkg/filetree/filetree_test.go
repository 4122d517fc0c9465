package filetree

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// newTestTree builds a root with:
//
//	index.html
//	style.css
//	data.unknownext
//	sub/page.txt
//	sub/empty/
//	link-inside -> sub/page.txt
//	link-outside -> <outside>/secret.txt
//
// and returns the tree plus the outside directory.
func newTestTree(t *testing.T, opts Options) (*FileTree, string) {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "empty"), 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))

	write := func(p, content string) {
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write(filepath.Join(root, "index.html"), "<h1>hello</h1>")
	write(filepath.Join(root, "style.css"), "body{}")
	write(filepath.Join(root, "data.unknownext"), "%PDF-1.4\n%...")
	write(filepath.Join(root, "sub", "page.txt"), "page")
	write(filepath.Join(outside, "secret.txt"), "secret")

	require.NoError(t, os.Symlink(filepath.Join("sub", "page.txt"), filepath.Join(root, "link-inside")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link-outside")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "dir-outside")))

	tree, err := New(root, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })

	return tree, outside
}

func readAll(t *testing.T, f *ResolvedFile) string {
	t.Helper()
	b, err := io.ReadAll(f.Reader())
	require.NoError(t, err)
	return string(b)
}

// ============================================================================
// New Tests
// ============================================================================

func TestNew(t *testing.T) {
	t.Run("CanonicalizesRoot", func(t *testing.T) {
		base := t.TempDir()
		target := filepath.Join(base, "real")
		require.NoError(t, os.Mkdir(target, 0o755))
		link := filepath.Join(base, "link")
		require.NoError(t, os.Symlink(target, link))

		tree, err := New(link, Options{})
		require.NoError(t, err)
		defer tree.Close()

		want, err := filepath.EvalSymlinks(target)
		require.NoError(t, err)
		assert.Equal(t, want, tree.Root())
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "nope"), Options{})
		assert.ErrorIs(t, err, ErrInvalidRoot)
	})

	t.Run("RootIsFile", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(p, nil, 0o644))
		_, err := New(p, Options{})
		assert.ErrorIs(t, err, ErrInvalidRoot)
	})

	t.Run("EmptyRoot", func(t *testing.T) {
		_, err := New("", Options{})
		assert.ErrorIs(t, err, ErrInvalidRoot)
	})
}

// ============================================================================
// Resolve Tests
// ============================================================================

func TestResolve(t *testing.T) {
	tree, _ := newTestTree(t, Options{})
	ctx := context.Background()

	t.Run("ServesRegularFile", func(t *testing.T) {
		f, err := tree.Resolve(ctx, "/index.html")
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, int64(len("<h1>hello</h1>")), f.Size)
		assert.Equal(t, "text/html", f.ContentType)
		assert.Equal(t, filepath.Join(tree.Root(), "index.html"), f.Path)
		assert.False(t, f.ModTime.IsZero())
		assert.Equal(t, "<h1>hello</h1>", readAll(t, f))
	})

	t.Run("ServesNestedFile", func(t *testing.T) {
		f, err := tree.Resolve(ctx, "/sub/page.txt")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "page", readAll(t, f))
		assert.Equal(t, "text/plain", f.ContentType)
	})

	t.Run("FollowsSymlinkInsideRoot", func(t *testing.T) {
		f, err := tree.Resolve(ctx, "/link-inside")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "page", readAll(t, f))
		assert.Equal(t, filepath.Join(tree.Root(), "sub", "page.txt"), f.Path)
	})

	t.Run("DotSegmentsThatStayInside", func(t *testing.T) {
		f, err := tree.Resolve(ctx, "/sub/../index.html")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "<h1>hello</h1>", readAll(t, f))
	})

	t.Run("UnknownExtensionIsOctetStream", func(t *testing.T) {
		f, err := tree.Resolve(ctx, "/data.unknownext")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "application/octet-stream", f.ContentType)
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		f, err := tree.Resolve(ctx, "/style.css")
		require.NoError(t, err)
		assert.NoError(t, f.Close())
		assert.NoError(t, f.Close())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := tree.Resolve(cctx, "/index.html")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestResolveSniffsUnknownExtensions(t *testing.T) {
	tree, _ := newTestTree(t, Options{SniffContentType: true})

	f, err := tree.Resolve(context.Background(), "/data.unknownext")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "application/pdf", f.ContentType)
	// Sniffing must leave the reader at offset 0.
	assert.Equal(t, "%PDF-1.4\n%...", readAll(t, f))
}

// rewindFails reads normally but cannot seek back after sniffing.
type rewindFails struct {
	io.Reader
}

func (rewindFails) Seek(int64, int) (int64, error) {
	return 0, errors.New("illegal seek")
}

func TestContentType(t *testing.T) {
	sniffing, _ := newTestTree(t, Options{SniffContentType: true})
	plain, _ := newTestTree(t, Options{})
	pdf := func() io.ReadSeeker { return strings.NewReader("%PDF-1.4\n%...") }

	t.Run("KnownExtensionSkipsSniffing", func(t *testing.T) {
		ct, err := sniffing.contentType("/a/index.html", 14, rewindFails{pdf()})
		require.NoError(t, err)
		assert.Equal(t, "text/html", ct)
	})

	t.Run("SniffingDisabled", func(t *testing.T) {
		ct, err := plain.contentType("/a/blob.unknownext", 13, pdf())
		require.NoError(t, err)
		assert.Equal(t, "application/octet-stream", ct)
	})

	t.Run("EmptyFileIsNotSniffed", func(t *testing.T) {
		ct, err := sniffing.contentType("/a/blob.unknownext", 0, rewindFails{pdf()})
		require.NoError(t, err)
		assert.Equal(t, "application/octet-stream", ct)
	})

	t.Run("RewindFailureIsAnError", func(t *testing.T) {
		_, err := sniffing.contentType("/a/blob.unknownext", 13, rewindFails{pdf()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "illegal seek")
	})
}

func TestResolveNeverEscapesRoot(t *testing.T) {
	tree, _ := newTestTree(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		want error
	}{
		{"ParentTraversal", "/../outside/secret.txt", ErrForbidden},
		{"DeepTraversal", "/sub/../../outside/secret.txt", ErrForbidden},
		{"TraversalToEtc", "/../../../../../../etc/passwd", ErrForbidden},
		{"BareParent", "/..", ErrForbidden},
		{"SymlinkFileOutside", "/link-outside", ErrForbidden},
		{"SymlinkDirOutside", "/dir-outside/secret.txt", ErrForbidden},
		{"NulByte", "/index.html\x00.txt", ErrForbidden},
		{"AbsoluteOverride", "//etc/passwd", ErrNotFound},
		{"Missing", "/missing.html", ErrNotFound},
		{"MissingParent", "/nope/page.txt", ErrNotFound},
		{"FileAsDirectory", "/index.html/x", ErrNotFound},
		{"Directory", "/sub", ErrNotFound},
		{"EmptyDirectory", "/sub/empty/", ErrNotFound},
		{"RootItself", "/", ErrNotFound},
		{"EmptyPath", "", ErrNotFound},
		{"PercentEncodedNotDecoded", "/%2e%2e/outside/secret.txt", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tree.Resolve(ctx, tt.path)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveUnreadableFile(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	tree, _ := newTestTree(t, Options{})

	p := filepath.Join(tree.Root(), "locked.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o000))

	_, err := tree.Resolve(context.Background(), "/locked.txt")
	assert.ErrorIs(t, err, ErrIO)
}

func TestResolveConcurrent(t *testing.T) {
	tree, _ := newTestTree(t, Options{BufferSize: 16})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := tree.Resolve(context.Background(), "/sub/page.txt")
			if !assert.NoError(t, err) {
				return
			}
			defer f.Close()
			b, err := io.ReadAll(f.Reader())
			assert.NoError(t, err)
			assert.Equal(t, "page", string(b))
		}()
	}
	wg.Wait()
}
