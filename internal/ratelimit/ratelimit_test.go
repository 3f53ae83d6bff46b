package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestUnlimitedPassThrough(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("x"), 1<<20)
	var out bytes.Buffer
	w := NewWriter(context.Background(), &out, 0)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.Len() != len(data) {
		t.Errorf("wrote %d bytes, want %d", out.Len(), len(data))
	}

	r := NewReader(context.Background(), bytes.NewReader(data), -1)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(data) {
		t.Errorf("read %d bytes, want %d", len(got), len(data))
	}
}

func TestWriterThrottles(t *testing.T) {
	t.Parallel()

	// The first second's worth is covered by the initial bucket; the
	// remaining half second must be waited for.
	const rate = 64 * 1024
	data := make([]byte, rate+rate/2)
	var out bytes.Buffer
	w := NewWriter(context.Background(), &out, rate)

	start := time.Now()
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("write finished in %v, expected throttling", elapsed)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Error("throttled write altered the data")
	}
}

func TestReaderPreservesData(t *testing.T) {
	t.Parallel()

	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i)
	}
	r := NewReader(context.Background(), bytes.NewReader(data), 1<<20)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("rate-limited read altered the data")
	}
}

func TestCancelledWaitIsAnError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWriter(ctx, io.Discard, 1024)
	// Drain the initial bucket.
	if _, err := w.Write(make([]byte, 1024)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	cancel()

	n, err := w.Write(make([]byte, 1024))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Write error = %v, want ErrInterrupted", err)
	}
	if n != 0 {
		t.Errorf("wrote %d bytes after interruption", n)
	}

	r := NewReader(ctx, bytes.NewReader(make([]byte, 10)), 1024)
	if _, err := r.Read(make([]byte, 10)); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Read error = %v, want ErrInterrupted", err)
	}
}
