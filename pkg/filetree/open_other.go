//go:build !unix

package filetree

import "os"

const openFlags = os.O_RDONLY
