package contextset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

var (
	// ErrContextFileUnreadable marks a context file that was skipped.
	ErrContextFileUnreadable = errors.New("context file unreadable")

	errBinary = errors.New("binary content")
)

// file is one context file read from disk.
type file struct {
	Path      string
	Content   []byte
	SizeBytes int64
	Oversized bool
}

// isBinaryContent sniffs the first bytes of a file.
func isBinaryContent(data []byte) bool {
	if bytes.IndexByte(data, 0) != -1 {
		return true
	}

	contentType := http.DetectContentType(data)

	if strings.HasPrefix(contentType, "application/") {
		textlike := []string{
			"application/json",
			"application/xml",
			"application/javascript",
		}
		for _, t := range textlike {
			if strings.HasPrefix(contentType, t) {
				return false
			}
		}
		return true
	}

	if strings.HasPrefix(contentType, "image/") ||
		strings.HasPrefix(contentType, "video/") ||
		strings.HasPrefix(contentType, "audio/") {
		return true
	}

	return false
}

// readFile loads path. At most limit bytes are kept; Oversized reports
// whether the file was larger. Missing files, directories and binary files
// are errors.
func readFile(path string, limit int) (*file, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header = header[:n]

	if isBinaryContent(header) {
		return nil, errBinary
	}

	// One byte past the limit tells us whether the file was cut.
	rest, err := io.ReadAll(io.LimitReader(f, int64(limit-len(header))+1))
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	content := append(header, rest...)

	out := &file{Path: path, SizeBytes: info.Size()}
	if len(content) > limit {
		out.Oversized = true
		content = content[:limit]
	}
	out.Content = content
	return out, nil
}

// readWhole loads the complete file for skeleton extraction.
func readWhole(path string) ([]byte, error) {
	return os.ReadFile(path)
}
