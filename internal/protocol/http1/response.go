package http1

import (
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// Response is an HTTP response ready to be serialized.
type Response struct {
	Status Status
	Header Header
	Body   Body

	// ChunkSize overrides the streaming chunk size. Zero means
	// DefaultChunkSize.
	ChunkSize int
}

// NewResponse returns a response carrying the Server and Connection headers
// every response must have.
func NewResponse(status Status) *Response {
	r := &Response{Status: status, Body: EmptyBody()}
	r.Header.Add(HeaderServer, ServerName)
	r.Header.Add(HeaderConnection, "close")
	return r
}

// ErrorResponse returns a response with the fixed HTML body for status.
func ErrorResponse(status Status) *Response {
	r := NewResponse(status)
	r.Header.Add(HeaderContentType, "text/html")
	r.SetBody(BytesBody(ErrorBody(status)))
	return r
}

// MethodNotAllowed returns a 405 advertising the allowed methods.
func MethodNotAllowed(allow string) *Response {
	r := ErrorResponse(StatusMethodNotAllowed)
	r.Header.Add(HeaderAllow, allow)
	return r
}

// FileResponse returns a 200 streaming size bytes from body.
func FileResponse(contentType string, size int64, body io.Reader) *Response {
	r := NewResponse(StatusOK)
	r.Header.Add(HeaderContentType, contentType)
	r.SetBody(StreamBody(body, size))
	return r
}

// SetBody replaces the body and keeps Content-Length in step with it.
func (r *Response) SetBody(b Body) {
	r.Body = b
	r.Header.Set(HeaderContentLength, strconv.FormatInt(b.Len(), 10))
}

// ContentLength returns the number of body bytes WriteTo will write.
func (r *Response) ContentLength() int64 {
	return r.Body.Len()
}

// WriteTo serializes the status line, the headers in insertion order, the
// blank line and the body.
//
// The head is built in a pooled buffer. A byte body is appended to it and
// the whole response goes out in one Write; a stream body follows the head
// in chunks of ChunkSize bytes. If a stream ends before its length the
// connection must be closed: the peer has been promised more bytes than it
// will get.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	r.Header.Set(HeaderContentLength, strconv.FormatInt(r.Body.Len(), 10))

	head := bytebufferpool.Get()
	defer bytebufferpool.Put(head)
	r.appendHead(head)

	if r.Body.Kind == BodyBytes {
		_, _ = head.Write(r.Body.Bytes)
		n, err := w.Write(head.B)
		return int64(n), err
	}

	n, err := w.Write(head.B)
	total := int64(n)
	if err != nil || r.Body.Kind == BodyEmpty {
		return total, err
	}

	size := r.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunk := GetBuffer(size)
	defer PutBuffer(chunk)

	bn, err := r.Body.writeTo(w, chunk)
	return total + bn, err
}

func (r *Response) appendHead(b *bytebufferpool.ByteBuffer) {
	_, _ = b.WriteString(ProtocolVersion)
	_ = b.WriteByte(' ')
	b.B = strconv.AppendInt(b.B, int64(r.Status), 10)
	_ = b.WriteByte(' ')
	_, _ = b.WriteString(r.Status.Reason())
	_, _ = b.WriteString("\r\n")

	for _, f := range r.Header {
		_, _ = b.WriteString(f.Name)
		_, _ = b.WriteString(": ")
		_, _ = b.WriteString(f.Value)
		_, _ = b.WriteString("\r\n")
	}
	_, _ = b.WriteString("\r\n")
}
