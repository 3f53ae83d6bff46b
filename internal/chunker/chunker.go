// Package chunker splits byte streams into content-defined chunks using
// FastCDC with normalized chunking.
//
// A Chunker consumes its reader exactly once. Boundaries depend only on
// the bytes and the expected chunk size, never on how the reader
// delivers them.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// DefaultExpectedSize is used when no expected chunk size is configured.
const DefaultExpectedSize = 8 * 1024

// Size bounds relative to the expected size.
const (
	MinSizeDivisor = 4
	MaxSizeFactor  = 8
)

// Bounds returns the minimum and maximum chunk sizes for an expected size.
func Bounds(expected int) (minSize, maxSize int) {
	return expected / MinSizeDivisor, expected * MaxSizeFactor
}

// Chunker yields successive chunks from a reader.
type Chunker struct {
	r         io.Reader
	remaining int64 // declared bytes not yet read; negative means unknown

	minSize, normalSize, maxSize int
	maskSmall, maskLarge         uint64

	buf  []byte
	n    int // valid bytes in buf
	done bool
	err  error
}

// New returns a Chunker over size bytes of r. A negative size reads until
// r is exhausted. expected must be at least 64.
func New(r io.Reader, size int64, expected int) (*Chunker, error) {
	if expected < 64 {
		return nil, fmt.Errorf("expected chunk size %d is below 64 bytes", expected)
	}
	minSize, maxSize := Bounds(expected)
	small, large := masks(expected)
	return &Chunker{
		r:          r,
		remaining:  size,
		minSize:    minSize,
		normalSize: expected,
		maxSize:    maxSize,
		maskSmall:  small,
		maskLarge:  large,
		buf:        make([]byte, maxSize),
	}, nil
}

// Next returns the next chunk. The returned slice is owned by the caller.
// It returns io.EOF once the stream is exhausted; any other error is a
// read failure and is terminal.
func (c *Chunker) Next() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if err := c.fill(); err != nil {
		c.err = err
		return nil, err
	}
	if c.n == 0 {
		c.err = io.EOF
		return nil, io.EOF
	}

	cut := c.cut(c.buf[:c.n])
	chunk := make([]byte, cut)
	copy(chunk, c.buf[:cut])
	c.n = copy(c.buf, c.buf[cut:c.n])
	return chunk, nil
}

// All ranges over the remaining chunks. Iteration stops after the first
// error, which is yielded with a nil chunk.
func (c *Chunker) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			chunk, err := c.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// fill tops the buffer up to maxSize bytes or to the end of the stream.
// A stream shorter than its declared size ends early without error.
func (c *Chunker) fill() error {
	for !c.done && c.n < c.maxSize {
		want := c.maxSize - c.n
		if c.remaining >= 0 && int64(want) > c.remaining {
			want = int(c.remaining)
		}
		if want == 0 {
			c.done = true
			break
		}
		read, err := c.r.Read(c.buf[c.n : c.n+want])
		c.n += read
		if c.remaining >= 0 {
			c.remaining -= int64(read)
		}
		if errors.Is(err, io.EOF) {
			c.done = true
			break
		}
		if err != nil {
			return fmt.Errorf("reading chunk data: %w", err)
		}
	}
	return nil
}

// cut returns the length of the first chunk in data.
func (c *Chunker) cut(data []byte) int {
	n := len(data)
	if n <= c.minSize {
		return n
	}
	if n > c.maxSize {
		n = c.maxSize
	}
	normal := min(c.normalSize, n)

	var fp uint64
	i := c.minSize
	for ; i < normal; i++ {
		fp = (fp << 1) + gearTable[data[i]]
		if fp&c.maskSmall == 0 {
			return i + 1
		}
	}
	for ; i < n; i++ {
		fp = (fp << 1) + gearTable[data[i]]
		if fp&c.maskLarge == 0 {
			return i + 1
		}
	}
	return n
}
