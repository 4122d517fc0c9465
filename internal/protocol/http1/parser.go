package http1

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ReadRequest reads exactly one request from br.
//
// It returns either a complete Request or an error. Framing failures wrap
// ErrMalformedRequest. A stream that ends before a single byte was read
// yields io.EOF, and transport errors (deadlines, resets) are returned
// unchanged; neither of those is a malformed request.
func ReadRequest(br *bufio.Reader, limits Limits) (*Request, error) {
	limits = limits.withDefaults()
	budget := limits.MaxHeaderBytes

	line, err := readLine(br, &budget, true)
	if err != nil {
		return nil, err
	}

	method, target, version, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:  method,
		Target:  target,
		Version: version,
	}

	for {
		line, err = readLine(br, &budget, false)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		if len(req.Header) >= limits.MaxHeaderCount {
			return nil, malformed("more than %d header fields", limits.MaxHeaderCount)
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		req.Header.Add(name, value)
	}

	if req.Header.Has(HeaderTransferEncoding) {
		return nil, malformed("transfer-encoding is not supported")
	}

	n, err := contentLength(req.Header)
	if err != nil {
		return nil, err
	}
	if n > limits.MaxBodyBytes {
		return nil, malformed("body of %d bytes exceeds limit of %d", n, limits.MaxBodyBytes)
	}
	if n > 0 {
		req.Body = make([]byte, n)
		if _, err := io.ReadFull(br, req.Body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, malformed("body shorter than content-length %d", n)
			}
			return nil, err
		}
	}

	return req, nil
}

// readLine returns the next CRLF-terminated line without its terminator,
// charging its full length against budget.
func readLine(br *bufio.Reader, budget *int, first bool) (string, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		if len(frag) > *budget {
			return "", malformed("header block exceeds limit")
		}
		*budget -= len(frag)
		line = append(line, frag...)

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if first && len(line) == 0 {
				return "", io.EOF
			}
			return "", malformed("unexpected end of stream")
		}
		return "", err
	}

	n := len(line)
	if n < 2 || line[n-2] != '\r' {
		return "", malformed("line not terminated by CRLF")
	}
	return string(line[:n-2]), nil
}

func parseRequestLine(line string) (method, target, version string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", malformed("request line has %d tokens, want 3", len(parts))
	}
	method, target, version = parts[0], parts[1], parts[2]

	if !isToken(method) {
		return "", "", "", malformed("invalid method %q", method)
	}
	if target == "" || target[0] != '/' {
		return "", "", "", malformed("request target must be origin-form")
	}
	for i := 0; i < len(target); i++ {
		if c := target[i]; c <= ' ' || c == 0x7f {
			return "", "", "", malformed("control byte in request target")
		}
	}
	if !validVersion(version) {
		return "", "", "", malformed("invalid protocol version %q", version)
	}
	return method, target, version, nil
}

func parseHeaderLine(line string) (name, value string, err error) {
	if line[0] == ' ' || line[0] == '\t' {
		return "", "", malformed("obsolete header line folding")
	}
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", "", malformed("header line without name")
	}
	name = line[:colon]
	if !isToken(name) {
		return "", "", malformed("invalid header name %q", name)
	}
	value = strings.Trim(line[colon+1:], " \t")
	for i := 0; i < len(value); i++ {
		if c := value[i]; (c < ' ' && c != '\t') || c == 0x7f {
			return "", "", malformed("control byte in header %q", name)
		}
	}
	return name, value, nil
}

// contentLength returns the declared body length. Repeated fields are
// allowed only when they all agree.
func contentLength(h Header) (int64, error) {
	values := h.Values(HeaderContentLength)
	if len(values) == 0 {
		return 0, nil
	}
	first := values[0]
	for _, v := range values[1:] {
		if v != first {
			return 0, malformed("conflicting content-length values")
		}
	}
	if first == "" {
		return 0, malformed("empty content-length")
	}
	for i := 0; i < len(first); i++ {
		if first[i] < '0' || first[i] > '9' {
			return 0, malformed("invalid content-length %q", first)
		}
	}
	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, malformed("invalid content-length %q", first)
	}
	return n, nil
}

// validVersion matches HTTP/<digit>.<digit>.
func validVersion(v string) bool {
	if len(v) != 8 || !strings.HasPrefix(v, "HTTP/") {
		return false
	}
	return isDigit(v[5]) && v[6] == '.' && isDigit(v[7])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', isDigit(c):
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}
