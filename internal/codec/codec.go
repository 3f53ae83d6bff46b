// Package codec frames chunk payloads as a flat sequence of records, each
// a 4-byte big-endian length followed by that many bytes. There is no
// header, count or trailer; a stream ends when its records end.
package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxRecordSize bounds a single record so a corrupt length prefix cannot
// force an arbitrary allocation.
const MaxRecordSize = 64 << 20

// ErrRecordTooLarge is returned for a length prefix above the reader's limit.
var ErrRecordTooLarge = errors.New("record exceeds maximum size")

// Writer appends framed records to an underlying stream.
type Writer struct {
	w       io.Writer
	header  [4]byte
	records int
	bytes   int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRecord writes one record.
func (w *Writer) WriteRecord(payload []byte) error {
	if len(payload) > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(payload))
	}
	binary.BigEndian.PutUint32(w.header[:], uint32(len(payload)))
	if _, err := w.w.Write(w.header[:]); err != nil {
		return fmt.Errorf("writing record length: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("writing record payload: %w", err)
	}
	w.records++
	w.bytes += int64(len(payload)) + 4
	return nil
}

// Records returns how many records have been written.
func (w *Writer) Records() int { return w.records }

// Size returns the framed bytes written, length prefixes included.
func (w *Writer) Size() int64 { return w.bytes }

// Reader decodes records from a stream.
type Reader struct {
	r       *bufio.Reader
	max     int
	records int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), max: MaxRecordSize}
}

// SetMaxRecordSize lowers (or raises) the per-record limit.
func (r *Reader) SetMaxRecordSize(n int) { r.max = n }

// Next returns the next record payload. It returns io.EOF when the stream
// ends cleanly on a record boundary and io.ErrUnexpectedEOF when it ends
// inside a record.
func (r *Reader) Next() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading record %d length: %w", r.records, err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if uint64(n) > uint64(r.max) {
		return nil, fmt.Errorf("record %d: %w: %d bytes", r.records, ErrRecordTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading record %d payload: %w", r.records, err)
	}
	r.records++
	return payload, nil
}

// Records returns how many complete records have been read.
func (r *Reader) Records() int { return r.records }
