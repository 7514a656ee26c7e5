// Package stream buffers non-seekable readers in host-buffer sized chunks.
package stream

import (
	"io"

	"github.com/cockroachdb/errors"
)

// maxEmptyReads bounds consecutive (0, nil) reads before a chunk fill gives up.
const maxEmptyReads = 100

// Ring is a prefetching window over a reader.
//
// Data enters the window one chunk at a time. A chunk fill issues reads of at
// most readSize bytes and retries short reads until the chunk is full or the
// reader reports EOF. Consumers copy bytes out with Read, so the window may
// be compacted between calls.
type Ring struct {
	r        io.Reader
	chunk    int
	readSize int

	buf    []byte
	head   int
	tail   int
	offset int64
	reads  int
	err    error
}

var _ io.Reader = (*Ring)(nil)

// NewRing creates a ring over r.
//
// Parameters:
//   - r: Source stream
//   - chunk: Host buffer size, the unit of prefetching
//   - readSize: Upper bound of a single read from r; values ≤ 0 or above chunk mean chunk
func NewRing(r io.Reader, chunk, readSize int) *Ring {
	if chunk <= 0 {
		chunk = 1
	}
	if readSize <= 0 || readSize > chunk {
		readSize = chunk
	}

	return &Ring{
		r:        r,
		chunk:    chunk,
		readSize: readSize,
		buf:      make([]byte, 0, chunk),
	}
}

// ChunkSize returns the host buffer size.
func (r *Ring) ChunkSize() int {
	return r.chunk
}

// Buffered returns the number of prefetched bytes not yet consumed.
func (r *Ring) Buffered() int {
	return r.tail - r.head
}

// Offset returns the stream offset of the next byte Read returns.
func (r *Ring) Offset() int64 {
	return r.offset
}

// Reads returns the number of reads issued to the underlying reader.
func (r *Ring) Reads() int {
	return r.reads
}

// EOF reports whether the underlying reader is exhausted.
func (r *Ring) EOF() bool {
	return errors.Is(r.err, io.EOF)
}

// Prefetch fills up to n more chunks. It stops early at EOF and returns the
// reader error, if any, other than EOF.
func (r *Ring) Prefetch(n int) error {
	for i := 0; i < n && r.err == nil; i++ {
		r.fillChunk()
	}

	return r.failure()
}

// Ensure prefetches chunks until at least n bytes are buffered or the reader
// is exhausted.
func (r *Ring) Ensure(n int) error {
	for r.Buffered() < n && r.err == nil {
		r.fillChunk()
	}

	return r.failure()
}

// Read copies buffered bytes into p, prefetching one chunk when the window is empty.
func (r *Ring) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if r.Buffered() == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.fillChunk()
		if r.Buffered() == 0 {
			return 0, r.err
		}
	}

	n := copy(p, r.buf[r.head:r.tail])
	r.head += n
	r.offset += int64(n)

	return n, nil
}

func (r *Ring) failure() error {
	if r.err == nil || errors.Is(r.err, io.EOF) {
		return nil
	}

	return r.err
}

func (r *Ring) reserve() {
	if cap(r.buf)-r.tail >= r.chunk {
		return
	}

	live := r.tail - r.head
	if cap(r.buf)-live >= r.chunk {
		copy(r.buf[:cap(r.buf)], r.buf[r.head:r.tail])
	} else {
		grown := make([]byte, 0, live+r.chunk)
		copy(grown[:live], r.buf[r.head:r.tail])
		r.buf = grown
	}
	r.head, r.tail = 0, live
}

func (r *Ring) fillChunk() {
	r.reserve()

	window := r.buf[:cap(r.buf)]
	end := r.tail + r.chunk
	empty := 0
	for r.tail < end {
		want := min(r.readSize, end-r.tail)
		n, err := r.r.Read(window[r.tail : r.tail+want])
		r.reads++
		r.tail += n

		if err != nil {
			r.err = err
			break
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				r.err = io.ErrNoProgress
				break
			}
		} else {
			empty = 0
		}
	}
	r.buf = r.buf[:r.tail]
}
