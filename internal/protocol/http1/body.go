package http1

import (
	"errors"
	"fmt"
	"io"
)

// BodyKind tags the variant held by a Body.
type BodyKind uint8

const (
	BodyEmpty BodyKind = iota
	BodyBytes
	BodyStream
)

func (k BodyKind) String() string {
	switch k {
	case BodyEmpty:
		return "empty"
	case BodyBytes:
		return "bytes"
	case BodyStream:
		return "stream"
	default:
		return fmt.Sprintf("BodyKind(%d)", uint8(k))
	}
}

// Body is a response body: absent, fully buffered, or a reader with a known
// length. Only the fields of the active variant are meaningful.
type Body struct {
	Kind BodyKind

	// Bytes is the payload of a BodyBytes body.
	Bytes []byte

	// Reader and Length describe a BodyStream body. Exactly Length bytes
	// are read from Reader, never more.
	Reader io.Reader
	Length int64
}

// EmptyBody returns a body with no content.
func EmptyBody() Body { return Body{Kind: BodyEmpty} }

// BytesBody returns a fully buffered body.
func BytesBody(b []byte) Body { return Body{Kind: BodyBytes, Bytes: b} }

// StreamBody returns a body read lazily from r.
func StreamBody(r io.Reader, length int64) Body {
	return Body{Kind: BodyStream, Reader: r, Length: length}
}

// Len is the number of bytes the body writes.
func (b Body) Len() int64 {
	switch b.Kind {
	case BodyBytes:
		return int64(len(b.Bytes))
	case BodyStream:
		return b.Length
	default:
		return 0
	}
}

// writeTo writes the remaining body bytes to w. Stream bodies are copied
// through chunk, one Write per chunk.
func (b Body) writeTo(w io.Writer, chunk []byte) (int64, error) {
	switch b.Kind {
	case BodyEmpty:
		return 0, nil
	case BodyBytes:
		n, err := w.Write(b.Bytes)
		return int64(n), err
	case BodyStream:
		return copyExactly(w, b.Reader, b.Length, chunk)
	default:
		return 0, fmt.Errorf("unknown body kind %v", b.Kind)
	}
}

// copyExactly copies length bytes from r to w. A reader that ends early
// yields ErrBodyTruncated.
func copyExactly(w io.Writer, r io.Reader, length int64, chunk []byte) (int64, error) {
	var written int64
	for written < length {
		want := int64(len(chunk))
		if remaining := length - written; remaining < want {
			want = remaining
		}

		nr, rerr := r.Read(chunk[:want])
		if nr > 0 {
			nw, werr := w.Write(chunk[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if written < length {
					return written, fmt.Errorf("%w: wrote %d of %d bytes", ErrBodyTruncated, written, length)
				}
				break
			}
			return written, rerr
		}
	}
	return written, nil
}
