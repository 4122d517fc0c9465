package http

import (
	"net"
)

// listen opens the TCP listener, with SO_REUSEPORT when configured.
func (s *HTTPAdapter) listen() (net.Listener, error) {
	if s.config.ReusePort {
		return listenReusePort(s.config.Address())
	}
	return net.Listen("tcp", s.config.Address())
}
