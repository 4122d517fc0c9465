//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package http

import (
	"net"

	"github.com/valyala/tcplisten"
)

// listenReusePort binds an IPv4 listener with SO_REUSEPORT so several
// processes can accept on the same port and let the kernel balance them.
func listenReusePort(addr string) (net.Listener, error) {
	cfg := tcplisten.Config{ReusePort: true}
	return cfg.NewListener("tcp4", addr)
}
