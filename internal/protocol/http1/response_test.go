package http1

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

type parsedResponse struct {
	statusLine string
	header     Header
	body       []byte
}

// readResponse splits serialized bytes back into status line, headers and
// body so tests can check framing independently of byte layout.
func readResponse(t *testing.T, raw []byte) parsedResponse {
	t.Helper()
	br := bufio.NewReader(bytes.NewReader(raw))

	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(line, "\r\n"))

	var pr parsedResponse
	pr.statusLine = strings.TrimSuffix(line, "\r\n")
	for {
		line, err = br.ReadString('\n')
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(line, "\r\n"), "header line %q", line)
		line = strings.TrimSuffix(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		require.True(t, ok)
		pr.header.Add(name, value)
	}
	pr.body, err = io.ReadAll(br)
	require.NoError(t, err)
	return pr
}

// chunkRecorder records the size of every Write.
type chunkRecorder struct {
	bytes.Buffer
	writes []int
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	return c.Buffer.Write(p)
}

// strictReader fails the test if read past its limit.
type strictReader struct {
	t    *testing.T
	data []byte
	pos  int
}

func (s *strictReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

type failWriter struct{ after int }

func (f *failWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("broken pipe")
	}
	f.after--
	return len(p), nil
}

// ============================================================================
// Response Tests
// ============================================================================

func TestNewResponse(t *testing.T) {
	r := NewResponse(StatusOK)
	require.Len(t, r.Header, 2)
	assert.Equal(t, HeaderField{Name: "Server", Value: "file-shover/1.0"}, r.Header[0])
	assert.Equal(t, HeaderField{Name: "Connection", Value: "close"}, r.Header[1])
	assert.Equal(t, BodyEmpty, r.Body.Kind)
}

func TestErrorResponse(t *testing.T) {
	for _, status := range []Status{StatusBadRequest, StatusNotFound, StatusMethodNotAllowed, StatusInternalServerError} {
		t.Run(status.String(), func(t *testing.T) {
			var buf bytes.Buffer
			n, err := ErrorResponse(status).WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)

			pr := readResponse(t, buf.Bytes())
			assert.Equal(t, "HTTP/1.1 "+status.String(), pr.statusLine)
			assert.Equal(t, "text/html", pr.header.Get("Content-Type"))
			assert.Equal(t, "close", pr.header.Get("Connection"))
			assert.Equal(t, "file-shover/1.0", pr.header.Get("Server"))
			assert.Equal(t, strconv.Itoa(len(pr.body)), pr.header.Get("Content-Length"))
			assert.Equal(t, ErrorBody(status), pr.body)
			assert.Contains(t, string(pr.body), status.String())
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	var buf bytes.Buffer
	_, err := MethodNotAllowed("GET").WriteTo(&buf)
	require.NoError(t, err)

	pr := readResponse(t, buf.Bytes())
	assert.Equal(t, "HTTP/1.1 405 Method Not Allowed", pr.statusLine)
	assert.Equal(t, "GET", pr.header.Get("Allow"))
}

func TestHeadersInInsertionOrder(t *testing.T) {
	r := NewResponse(StatusOK)
	r.Header.Add("X-First", "1")
	r.Header.Add("X-Second", "2")
	r.SetBody(BytesBody([]byte("hi")))

	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)

	want := "HTTP/1.1 200 OK\r\n" +
		"Server: file-shover/1.0\r\n" +
		"Connection: close\r\n" +
		"X-First: 1\r\n" +
		"X-Second: 2\r\n" +
		"Content-Length: 2\r\n" +
		"\r\n" +
		"hi"
	assert.Equal(t, want, buf.String())
}

func TestEmptyBodyHasZeroLength(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewResponse(StatusOK).WriteTo(&buf)
	require.NoError(t, err)

	pr := readResponse(t, buf.Bytes())
	assert.Equal(t, "0", pr.header.Get("Content-Length"))
	assert.Empty(t, pr.body)
}

func TestContentLengthFollowsBody(t *testing.T) {
	r := NewResponse(StatusOK)
	r.Header.Set(HeaderContentLength, "999")
	r.Body = BytesBody([]byte("abc"))

	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)

	pr := readResponse(t, buf.Bytes())
	assert.Equal(t, []string{"3"}, pr.header.Values("Content-Length"))
}

func TestFileResponseStreams(t *testing.T) {
	t.Run("WritesExactBytesInChunks", func(t *testing.T) {
		data := bytes.Repeat([]byte("0123456789"), 1000)
		r := FileResponse("text/plain", int64(len(data)), bytes.NewReader(data))
		r.ChunkSize = 4 << 10

		var rec chunkRecorder
		n, err := r.WriteTo(&rec)
		require.NoError(t, err)
		assert.Equal(t, int64(rec.Len()), n)

		pr := readResponse(t, rec.Bytes())
		assert.Equal(t, "HTTP/1.1 200 OK", pr.statusLine)
		assert.Equal(t, "text/plain", pr.header.Get("Content-Type"))
		assert.Equal(t, "10000", pr.header.Get("Content-Length"))
		assert.Equal(t, data, pr.body)

		// head + ceil(10000 / 4096) chunks, none larger than the chunk size
		require.Len(t, rec.writes, 4)
		for _, w := range rec.writes[1:] {
			assert.LessOrEqual(t, w, 4<<10)
		}
	})

	t.Run("NeverReadsPastLength", func(t *testing.T) {
		src := &strictReader{t: t, data: []byte("abcdefghij")}
		r := FileResponse("text/plain", 4, src)

		var buf bytes.Buffer
		_, err := r.WriteTo(&buf)
		require.NoError(t, err)

		pr := readResponse(t, buf.Bytes())
		assert.Equal(t, []byte("abcd"), pr.body)
		assert.Equal(t, 4, src.pos)
	})

	t.Run("ShortStreamIsTruncationError", func(t *testing.T) {
		r := FileResponse("text/plain", 100, strings.NewReader("only a little"))

		var buf bytes.Buffer
		_, err := r.WriteTo(&buf)
		assert.ErrorIs(t, err, ErrBodyTruncated)
	})

	t.Run("ZeroLengthFile", func(t *testing.T) {
		r := FileResponse("text/plain", 0, strings.NewReader(""))

		var buf bytes.Buffer
		_, err := r.WriteTo(&buf)
		require.NoError(t, err)

		pr := readResponse(t, buf.Bytes())
		assert.Equal(t, "0", pr.header.Get("Content-Length"))
		assert.Empty(t, pr.body)
	})

	t.Run("WriteErrorStopsCopy", func(t *testing.T) {
		data := bytes.Repeat([]byte("x"), 10<<10)
		r := FileResponse("text/plain", int64(len(data)), bytes.NewReader(data))
		r.ChunkSize = 1 << 10

		_, err := r.WriteTo(&failWriter{after: 2})
		assert.EqualError(t, err, "broken pipe")
	})
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "404 Not Found", StatusNotFound.String())
	assert.Equal(t, "Internal Server Error", StatusInternalServerError.Reason())
	assert.Equal(t, "Unknown", Status(418).Reason())
	assert.Equal(t, ErrorBody(StatusInternalServerError), ErrorBody(Status(418)))
}

func TestBufferPool(t *testing.T) {
	for _, size := range []int{1, smallBufferSize, smallBufferSize + 1, mediumBufferSize, largeBufferSize, largeBufferSize + 1} {
		buf := GetBuffer(size)
		assert.Len(t, buf, size)
		PutBuffer(buf)
	}
	PutBuffer(nil)
}
