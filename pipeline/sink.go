package pipeline

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/blainsmith/seahash"
	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// blockSink is the "compression-buffered byte sink" of spec.md §4.6: each
// worker owns one, accumulating serialised segment records, and flushes
// whenever the buffer passes baosThreshold or the worker runs out of
// input. A flushed block is [4-byte compressed length][flate stream][8-byte
// seahash checksum of the uncompressed payload], written atomically under
// the shared writer's mutex so blocks never interleave, matching spec.md
// §5's "workers flush entire compressed blocks atomically under the
// writer lock."
type blockSink struct {
	raw    bytes.Buffer
	writer *sharedWriter
}

func newBlockSink(w *sharedWriter) *blockSink {
	return &blockSink{writer: w}
}

// Write appends one serialised record line (caller supplies the trailing
// newline) to the buffer, flushing first if the buffer has already
// crossed baosThreshold.
func (s *blockSink) Write(p []byte) error {
	if s.raw.Len() >= baosThreshold {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	s.raw.Write(p)
	return nil
}

// Flush compresses the buffered payload, appends its seahash checksum,
// and hands the block to the shared writer. It is a no-op when the
// buffer is empty.
func (s *blockSink) Flush() error {
	if s.raw.Len() == 0 {
		return nil
	}
	payload := s.raw.Bytes()

	h := seahash.New()
	if _, err := h.Write(payload); err != nil {
		return errors.Wrap(err, "pipeline: seahash checksum")
	}
	checksum := h.Sum64()

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return errors.Wrap(err, "pipeline: flate writer")
	}
	if _, err := fw.Write(payload); err != nil {
		return errors.Wrap(err, "pipeline: flate write")
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, "pipeline: flate close")
	}

	block := make([]byte, 4+compressed.Len()+8)
	binary.LittleEndian.PutUint32(block[0:4], uint32(compressed.Len()))
	copy(block[4:4+compressed.Len()], compressed.Bytes())
	binary.LittleEndian.PutUint64(block[4+compressed.Len():], checksum)

	s.raw.Reset()
	return s.writer.write(block)
}

// sharedWriter serialises concurrent blockSink flushes onto one output
// stream, per spec.md §5's "output sink is mutex-protected."
type sharedWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func newSharedWriter(out io.Writer) *sharedWriter {
	return &sharedWriter{out: out}
}

func (w *sharedWriter) write(block []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.out.Write(block)
	return err
}
