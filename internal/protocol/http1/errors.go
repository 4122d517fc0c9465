package http1

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRequest is wrapped by every framing failure: a bad request
	// line, a bad header line, a missing CRLF, a premature end of stream or
	// an exceeded limit. It maps to 400 Bad Request.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrBodyTruncated is returned by Response.WriteTo when a streaming body
	// ends before its declared length. Part of the response is already on
	// the wire, so the only safe recovery is closing the connection.
	ErrBodyTruncated = errors.New("response body shorter than Content-Length")
)

// malformed wraps ErrMalformedRequest with a reason.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, fmt.Sprintf(format, args...))
}

// IsMalformed reports whether err is a framing failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRequest)
}
