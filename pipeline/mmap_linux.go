//go:build linux

package pipeline

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mmapReader presents a memory-mapped input file as an io.ReadCloser,
// advising the kernel that access will be sequential so read-ahead stays
// aggressive while scanning the large haplotype-source files this
// pipeline reads once, front to back.
type mmapReader struct {
	data   []byte
	reader *bytes.Reader
}

// NewMmapReader maps path into memory. cmd/ibdends uses it to read the
// haplotype source, the largest input a run touches, in place of
// buffered file I/O.
func NewMmapReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: open mapped file")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: stat mapped file")
	}
	size := fi.Size()
	if size == 0 {
		return &mmapReader{reader: bytes.NewReader(nil)}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: mmap file")
	}
	if err := unix.Madvise(data, unix.MADV_SEQUENTIAL); err != nil {
		_ = unix.Munmap(data)
		return nil, errors.Wrap(err, "pipeline: madvise mapped file")
	}
	return &mmapReader{data: data, reader: bytes.NewReader(data)}, nil
}

func (m *mmapReader) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

func (m *mmapReader) Close() error {
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}
