package framework

import (
	"bufio"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestContext holds the context for a test run: a temp directory tree with
// www/ as the served root and its sibling outside/ for escape targets.
type TestContext struct {
	T       *testing.T
	Server  *TestServer
	BaseDir string
	RootDir string
}

// NewTestContext creates the directory layout and starts a server over it
func NewTestContext(t *testing.T, config TestServerConfig) *TestContext {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "www")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("Failed to create root: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(base, "outside"), 0755); err != nil {
		t.Fatalf("Failed to create outside dir: %v", err)
	}

	ctx := &TestContext{
		T:       t,
		BaseDir: base,
		RootDir: root,
	}

	// Register cleanup immediately so it's available if anything fails
	t.Cleanup(func() {
		ctx.Cleanup()
	})

	config.Root = root
	ctx.Server = NewTestServer(t, config)
	if err := ctx.Server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	return ctx
}

// Cleanup stops the server
func (tc *TestContext) Cleanup() {
	tc.T.Helper()
	if tc.Server != nil {
		_ = tc.Server.Stop()
	}
}

// Path returns the full path within the served root
func (tc *TestContext) Path(relativePath string) string {
	return filepath.Join(tc.RootDir, relativePath)
}

// WriteFile writes content below the served root, creating parents
func (tc *TestContext) WriteFile(relativePath string, content []byte) {
	tc.T.Helper()
	path := tc.Path(relativePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		tc.T.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		tc.T.Fatalf("Failed to write %s: %v", path, err)
	}
}

// WriteOutside writes a file next to (not below) the served root
func (tc *TestContext) WriteOutside(name string, content []byte) string {
	tc.T.Helper()
	path := filepath.Join(tc.BaseDir, "outside", name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		tc.T.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// Symlink creates a link below the served root pointing at target
func (tc *TestContext) Symlink(target, relativePath string) {
	tc.T.Helper()
	if err := os.Symlink(target, tc.Path(relativePath)); err != nil {
		tc.T.Fatalf("Failed to create symlink %s: %v", relativePath, err)
	}
}

// CreateSparseFile creates a file of the given size without writing its
// blocks, so very large fixtures cost no disk space.
func (tc *TestContext) CreateSparseFile(relativePath string, size int64) {
	tc.T.Helper()
	f, err := os.Create(tc.Path(relativePath))
	if err != nil {
		tc.T.Fatalf("Failed to create %s: %v", relativePath, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		tc.T.Fatalf("Failed to size %s: %v", relativePath, err)
	}
}

// Dial opens a raw TCP connection to the server
func (tc *TestContext) Dial() net.Conn {
	tc.T.Helper()
	conn, err := net.DialTimeout("tcp", tc.Server.Addr(), 5*time.Second)
	if err != nil {
		tc.T.Fatalf("Failed to dial %s: %v", tc.Server.Addr(), err)
	}
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	return conn
}

// Raw sends request verbatim, half-closes the connection and returns
// everything the server writes until it closes its side.
func (tc *TestContext) Raw(request string) string {
	tc.T.Helper()
	conn := tc.Dial()
	defer conn.Close()

	if _, err := io.WriteString(conn, request); err != nil {
		tc.T.Fatalf("Failed to send request: %v", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	b, err := io.ReadAll(conn)
	if err != nil {
		tc.T.Fatalf("Failed to read response: %v", err)
	}
	return string(b)
}

// Response is a parsed reply with its body fully read
type Response struct {
	StatusCode int
	Header     nethttp.Header
	Body       []byte
}

// Get issues "GET target HTTP/1.1" and parses the reply
func (tc *TestContext) Get(target string) *Response {
	tc.T.Helper()
	resp, err := tc.Do(fmt.Sprintf("GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", target))
	if err != nil {
		tc.T.Fatalf("GET %s: %v", target, err)
	}
	return resp
}

// Do sends a raw request and parses the reply. Safe to call from
// goroutines other than the test's own.
func (tc *TestContext) Do(request string) (*Response, error) {
	conn, err := net.DialTimeout("tcp", tc.Server.Addr(), 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	if _, err := io.WriteString(conn, request); err != nil {
		return nil, err
	}

	resp, err := nethttp.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// DrainGet streams the body of target into io.Discard and returns the
// number of body bytes and the advertised Content-Length.
func (tc *TestContext) DrainGet(target string) (int64, int64) {
	tc.T.Helper()
	conn := tc.Dial()
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", target); err != nil {
		tc.T.Fatalf("Failed to send request: %v", err)
	}
	resp, err := nethttp.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		tc.T.Fatalf("Failed to read response head: %v", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		tc.T.Fatalf("Failed to read body: %v", err)
	}
	return n, resp.ContentLength
}
