package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	t.Parallel()

	records := [][]byte{
		[]byte("first"),
		{},
		bytes.Repeat([]byte{0xAB}, 70000),
		[]byte("last"),
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if w.Records() != len(records) {
		t.Errorf("Records() = %d, want %d", w.Records(), len(records))
	}
	if w.Size() != int64(buf.Len()) {
		t.Errorf("Size() = %d, buffer has %d", w.Size(), buf.Len())
	}

	r := NewReader(&buf)
	for i, want := range records {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("record %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after last record = %v, want io.EOF", err)
	}
}

func TestWireFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteRecord([]byte("hi")); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	want := []byte{0, 0, 0, 2, 'h', 'i'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("wire bytes = %v, want %v", buf.Bytes(), want)
	}
}

func TestReaderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   []byte
		max     int
		wantErr error
	}{
		{name: "empty stream", input: nil, wantErr: io.EOF},
		{name: "partial length", input: []byte{0, 0}, wantErr: io.ErrUnexpectedEOF},
		{name: "truncated payload", input: []byte{0, 0, 0, 5, 'a', 'b'}, wantErr: io.ErrUnexpectedEOF},
		{name: "length only", input: []byte{0, 0, 0, 5}, wantErr: io.ErrUnexpectedEOF},
		{name: "too large", input: []byte{0, 0, 1, 0}, max: 16, wantErr: ErrRecordTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewReader(bytes.NewReader(tt.input))
			if tt.max > 0 {
				r.SetMaxRecordSize(tt.max)
			}
			if _, err := r.Next(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Next() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
