//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package http

import (
	"errors"
	"net"
)

func listenReusePort(string) (net.Listener, error) {
	return nil, errors.New("reuse_port is not supported on this platform")
}
