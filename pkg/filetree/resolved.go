package filetree

import (
	"bufio"
	"os"
	"time"
)

// ResolvedFile is an open regular file below root, positioned at offset 0.
//
// It is owned by the caller of Resolve, which must Close it. Nothing is read
// from the file until the caller reads from Reader.
type ResolvedFile struct {
	// Path is the canonical absolute path of the file.
	Path string

	// Size is the file length in bytes, taken from fstat on the open
	// descriptor.
	Size int64

	// ContentType is the MIME type guessed from the extension, or from the
	// leading bytes when sniffing is enabled and the extension is unknown.
	ContentType string

	// ModTime is the last modification time reported by fstat.
	ModTime time.Time

	file   *os.File
	reader *bufio.Reader
}

// Reader returns the buffered reader over the file content.
func (f *ResolvedFile) Reader() *bufio.Reader {
	return f.reader
}

// Close releases the underlying file. It is safe to call more than once.
func (f *ResolvedFile) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
