// Package http1 implements the subset of HTTP/1.1 message framing that
// fileshover speaks: reading one request from a connection and writing one
// response back before the connection is closed.
//
// Requests are parsed with explicit limits on header size, header count and
// body size so that the memory held per connection is bounded. Responses are
// serialized head-first into a pooled buffer; streaming bodies are copied in
// fixed-size chunks so serving a file never holds more than one chunk of it
// in memory.
package http1
