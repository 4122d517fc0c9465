package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/internal/protocol/http1"
	"github.com/marmos91/fileshover/pkg/filetree"
)

// Lingering close bounds. After a response that left request bytes unread
// the write side is shut first and the rest of the input drained, so the
// kernel does not answer those bytes with a RST that would discard the
// response still in flight.
const (
	lingerTimeout  = 500 * time.Millisecond
	lingerMaxBytes = 256 << 10
)

// ConnState is the position of a connection in its one-request lifecycle.
type ConnState int32

const (
	StateAccepted ConnState = iota
	StateParsing
	StateResolving
	StateResponding
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateParsing:
		return "parsing"
	case StateResolving:
		return "resolving"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// HTTPConnection serves exactly one request on an accepted socket and then
// closes it.
type HTTPConnection struct {
	server *HTTPAdapter
	conn   net.Conn
	id     string
	state  ConnState
}

// NewHTTPConnection wraps an accepted socket. id tags every log line.
func NewHTTPConnection(server *HTTPAdapter, conn net.Conn, id string) *HTTPConnection {
	return &HTTPConnection{
		server: server,
		conn:   conn,
		id:     id,
		state:  StateAccepted,
	}
}

// ID returns the connection identifier.
func (c *HTTPConnection) ID() string { return c.id }

// State returns the current lifecycle state. Only meaningful from the
// goroutine running Serve, or after Serve returned.
func (c *HTTPConnection) State() ConnState { return c.state }

// exchange carries the outcome of one request for logging and metrics.
type exchange struct {
	method string
	target string
	status int
	file   *filetree.ResolvedFile
	linger bool
}

// Serve runs the connection to completion:
//
//	Accepted -> Parsing -> Resolving -> Responding -> Closed
//
// A malformed request short-cuts from Parsing to a 400; a transport failure
// or a client that sends nothing goes straight to Closed without a response.
// The socket and any opened file are closed on every path, including a
// panic, which is recovered here so one connection cannot take its worker
// down.
func (c *HTTPConnection) Serve(ctx context.Context) {
	start := time.Now()
	clientAddr := c.conn.RemoteAddr().String()
	w := &deadlineWriter{conn: c.conn, timeout: c.server.config.WriteTimeout}
	ex := &exchange{}

	c.server.metrics.RecordRequestStart()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in HTTP connection %s from %s (state %s): %v\n%s",
				c.id, clientAddr, c.state, r, debug.Stack())
			ex.linger = true
			if w.n == 0 {
				// Nothing reached the client yet; a 500 is still a valid answer.
				if _, err := http1.ErrorResponse(http1.StatusInternalServerError).WriteTo(w); err == nil {
					ex.status = int(http1.StatusInternalServerError)
				}
			}
		}

		if ex.file != nil {
			_ = ex.file.Close()
		}
		c.close(ex.linger)

		duration := time.Since(start)
		c.server.metrics.RecordRequestEnd()
		if ex.status != 0 {
			c.server.metrics.RecordRequest(ex.method, ex.status, duration, w.n)
			logger.Debug("HTTP %s %s %s %q -> %d (%s in %v)",
				c.id, clientAddr, ex.method, ex.target, ex.status,
				humanize.Bytes(uint64(w.n)), duration.Round(time.Microsecond))
		}
	}()

	c.serve(ctx, w, ex)
}

func (c *HTTPConnection) serve(ctx context.Context, w *deadlineWriter, ex *exchange) {
	// ============================================================================
	// Step 1: Parse
	// ============================================================================

	c.state = StateParsing

	if timeout := c.server.config.ReadTimeout; timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			logger.Debug("HTTP %s: set read deadline: %v", c.id, err)
			return
		}
	}

	br := bufio.NewReader(c.conn)
	req, err := http1.ReadRequest(br, c.server.config.Limits())
	if err != nil {
		if !http1.IsMalformed(err) {
			c.logReadError(err)
			return
		}

		logger.Debug("HTTP %s: bad request: %v", c.id, err)
		ex.linger = true
		c.respond(w, ex, http1.ErrorResponse(http1.StatusBadRequest))
		return
	}

	ex.method = req.Method
	ex.target = req.Target
	ex.linger = br.Buffered() > 0

	// ============================================================================
	// Step 2: Resolve
	// ============================================================================

	c.state = StateResolving

	resp, file := c.server.handler.Handle(ctx, req)
	ex.file = file

	// ============================================================================
	// Step 3: Respond
	// ============================================================================

	c.respond(w, ex, resp)
}

// respond writes resp and records its status. A failed write leaves the
// connection to be closed; part of the response may be on the wire.
func (c *HTTPConnection) respond(w *deadlineWriter, ex *exchange, resp *http1.Response) {
	c.state = StateResponding
	ex.status = resp.Status.Code()

	if _, err := resp.WriteTo(w); err != nil {
		if errors.Is(err, http1.ErrBodyTruncated) {
			logger.Warn("HTTP %s: %q changed while being served: %v", c.id, ex.target, err)
		} else {
			logger.Debug("HTTP %s: write response: %v", c.id, err)
		}
	}
}

// logReadError reports why a request could not be read. None of these get
// a response.
func (c *HTTPConnection) logReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("HTTP %s: closed by client before sending a request", c.id)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("HTTP %s: read timed out: %v", c.id, err)
	default:
		logger.Debug("HTTP %s: read request: %v", c.id, err)
	}
}

// close shuts the socket, draining unread input first when linger is set.
func (c *HTTPConnection) close(linger bool) {
	c.state = StateClosed

	if linger {
		c.lingerClose()
	}
	if err := c.conn.Close(); err != nil {
		logger.Debug("HTTP %s: close: %v", c.id, err)
	}
}

func (c *HTTPConnection) lingerClose() {
	cw, ok := c.conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.CopyN(io.Discard, c.conn, lingerMaxBytes)
}

// deadlineWriter re-arms the write deadline before every Write and counts
// the bytes that reached the socket.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
	n       int64
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := w.conn.Write(p)
	w.n += int64(n)
	return n, err
}
