package http1

import "strconv"

// Status is an HTTP status code.
type Status int

const (
	StatusOK                  Status = 200
	StatusBadRequest          Status = 400
	StatusNotFound            Status = 404
	StatusMethodNotAllowed    Status = 405
	StatusInternalServerError Status = 500
)

var reasonPhrases = map[Status]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusNotFound:            "Not Found",
	StatusMethodNotAllowed:    "Method Not Allowed",
	StatusInternalServerError: "Internal Server Error",
}

// Fixed bodies for error responses.
var errorBodies = map[Status][]byte{
	StatusBadRequest:          []byte("<html><body><h1>400 Bad Request</h1></body></html>\n"),
	StatusNotFound:            []byte("<html><body><h1>404 Not Found</h1></body></html>\n"),
	StatusMethodNotAllowed:    []byte("<html><body><h1>405 Method Not Allowed</h1></body></html>\n"),
	StatusInternalServerError: []byte("<html><body><h1>500 Internal Server Error</h1></body></html>\n"),
}

// Code returns the numeric status code.
func (s Status) Code() int { return int(s) }

// Reason returns the reason phrase, or "Unknown" for codes outside the
// supported set.
func (s Status) Reason() string {
	if r, ok := reasonPhrases[s]; ok {
		return r
	}
	return "Unknown"
}

// String returns "<code> <reason>", e.g. "404 Not Found".
func (s Status) String() string {
	return strconv.Itoa(int(s)) + " " + s.Reason()
}

// ErrorBody returns the fixed body sent with an error status. The returned
// slice is shared and must not be modified.
func ErrorBody(s Status) []byte {
	if b, ok := errorBodies[s]; ok {
		return b
	}
	return errorBodies[StatusInternalServerError]
}
