//go:build unix

package filetree

import (
	"os"

	"golang.org/x/sys/unix"
)

// openFlags keeps a FIFO swapped in after the stat from blocking the open.
// The descriptor is checked for a regular file right after, and regular
// files ignore O_NONBLOCK on read.
const openFlags = os.O_RDONLY | unix.O_NONBLOCK | unix.O_CLOEXEC
