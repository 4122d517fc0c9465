package metrics

import "time"

// HTTPMetrics provides observability for the HTTP adapter.
//
// Implementations collect request outcomes, bytes served, connection
// lifecycle and worker pool activity. It is optional: when the adapter is
// given nil it falls back to NewNoopHTTPMetrics.
//
// The Task* methods match the pool observer, so an HTTPMetrics can be
// handed straight to the worker pool.
//
// Example usage:
//
//	m := prometheus.NewHTTPMetrics() // noop when metrics are disabled
//	adapter := http.New(cfg, m)
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: Request method, or "" when the request never parsed
	//   - status: Status code sent, 0 if the connection closed without one
	//   - duration: Time from first byte read to last byte written
	//   - bytesSent: Bytes written to the client, status line and headers included
	RecordRequest(method string, status int, duration time.Duration, bytesSent int64)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart()

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd()

	// RecordResolve records the outcome of a path lookup:
	// "ok", "not_found", "forbidden" or "error".
	RecordResolve(outcome string)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the counter of connections
	// closed by the shutdown timeout.
	RecordConnectionForceClosed()

	// TaskQueued reports the queue depth after a connection was queued.
	TaskQueued(depth int)

	// TaskStarted reports the number of running tasks after one started.
	TaskStarted(running int)

	// TaskFinished records how long a connection task held its worker.
	TaskFinished(duration time.Duration, panicked bool)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(string, int, time.Duration, int64) {}
func (noopHTTPMetrics) RecordRequestStart()                             {}
func (noopHTTPMetrics) RecordRequestEnd()                               {}
func (noopHTTPMetrics) RecordResolve(string)                            {}
func (noopHTTPMetrics) SetActiveConnections(int32)                      {}
func (noopHTTPMetrics) RecordConnectionAccepted()                       {}
func (noopHTTPMetrics) RecordConnectionClosed()                         {}
func (noopHTTPMetrics) RecordConnectionForceClosed()                    {}
func (noopHTTPMetrics) TaskQueued(int)                                  {}
func (noopHTTPMetrics) TaskStarted(int)                                 {}
func (noopHTTPMetrics) TaskFinished(time.Duration, bool)                {}
