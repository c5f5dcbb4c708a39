//go:build !linux

package pipeline

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// NewMmapReader opens path for ordinary buffered reads. Memory mapping
// is Linux-only (mmap_linux.go); elsewhere this is a plain file handle
// so cmd/ibdends doesn't need a platform switch of its own.
func NewMmapReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: open mapped file")
	}
	return f, nil
}
