package http1

import "strings"

// Request is a fully parsed HTTP request. ReadRequest only ever returns a
// Request whose request line and headers were all tokenized successfully.
type Request struct {
	// Method is the request method token, e.g. "GET". It is not validated
	// against a list of known methods; policy belongs to the caller.
	Method string

	// Target is the raw request target from the request line.
	Target string

	// Version is the protocol version, e.g. "HTTP/1.1".
	Version string

	// Header holds the request headers in arrival order.
	Header Header

	// Body is nil unless the request carried a Content-Length > 0.
	Body []byte
}

// Path returns the target without its query string or fragment.
//
// No percent-decoding is applied: the path is resolved byte for byte.
func (r *Request) Path() string {
	p := r.Target
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p
}

// ContentLength returns the declared body length, or 0 if absent.
func (r *Request) ContentLength() int64 {
	return int64(len(r.Body))
}
