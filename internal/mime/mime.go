// Package mime maps file extensions to Content-Type values.
//
// The table is fixed at build time and never mutated, so lookups are safe
// from any goroutine without locking.
package mime

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Default is returned for extensions the table does not know.
const Default = "application/octet-stream"

// sniffLimit bounds how many bytes DetectReader may consume.
const sniffLimit = 3072

var byExtension = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "text/javascript",
	".mjs":   "text/javascript",
	".json":  "application/json",
	".txt":   "text/plain",
	".xml":   "application/xml",
	".csv":   "text/csv",
	".md":    "text/markdown",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".webp":  "image/webp",
	".avif":  "image/avif",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".wasm":  "application/wasm",
	".pdf":   "application/pdf",
	".zip":   "application/zip",
	".gz":    "application/gzip",
	".tar":   "application/x-tar",
	".mp3":   "audio/mpeg",
	".ogg":   "audio/ogg",
	".wav":   "audio/wav",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
}

// TypeByExtension returns the content type registered for ext (with or
// without the leading dot, case-insensitive), and whether it was known.
func TypeByExtension(ext string) (string, bool) {
	if ext == "" {
		return Default, false
	}
	if ext[0] != '.' {
		ext = "." + ext
	}
	ct, ok := byExtension[strings.ToLower(ext)]
	if !ok {
		return Default, false
	}
	return ct, true
}

// Sniff inspects the first bytes of r and rewinds it to offset 0.
//
// It is only used for files whose extension is unknown. An unrecognised
// payload is Default with a nil error; a failed read or rewind is returned
// so the caller does not stream from an unknown offset.
func Sniff(r io.ReadSeeker) (string, error) {
	mt, err := mimetype.DetectReader(io.LimitReader(r, sniffLimit))
	if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
		return Default, fmt.Errorf("rewind after sniff: %w", seekErr)
	}
	if err != nil {
		return Default, fmt.Errorf("sniff: %w", err)
	}
	if mt == nil {
		return Default, nil
	}
	return mt.String(), nil
}
