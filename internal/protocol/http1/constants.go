package http1

const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodOptions = "OPTIONS"

	// ProtocolVersion is the version written on every status line.
	ProtocolVersion = "HTTP/1.1"

	// ServerName is sent in the Server header of every response.
	ServerName = "file-shover/1.0"
)

// Header names used by the parser and the response builder.
const (
	HeaderServer           = "Server"
	HeaderConnection       = "Connection"
	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderAllow            = "Allow"
)

// Default parser limits.
const (
	DefaultMaxHeaderBytes = 16 << 10 // request line + header block
	DefaultMaxHeaderCount = 100
	DefaultMaxBodyBytes   = 1 << 20
)

// Limits bounds the memory a single request may claim while being parsed.
type Limits struct {
	// MaxHeaderBytes caps the request line plus all header lines,
	// including their CRLF terminators and the blank line.
	MaxHeaderBytes int

	// MaxHeaderCount caps the number of header lines.
	MaxHeaderCount int

	// MaxBodyBytes caps the Content-Length a request may declare.
	MaxBodyBytes int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes: DefaultMaxHeaderBytes,
		MaxHeaderCount: DefaultMaxHeaderCount,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if l.MaxHeaderCount <= 0 {
		l.MaxHeaderCount = DefaultMaxHeaderCount
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return l
}
