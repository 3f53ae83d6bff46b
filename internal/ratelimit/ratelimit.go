// Package ratelimit throttles byte streams with a token bucket whose
// capacity equals its per-second rate. Each wrapped stream gets its own
// bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/time/rate"
)

// ErrInterrupted is returned when a wait for tokens is cancelled. The
// stream operation fails; no bytes are skipped.
var ErrInterrupted = errors.New("rate-limited transfer interrupted")

// newLimiter returns nil for a non-positive rate, meaning unlimited.
func newLimiter(bytesPerSecond int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)
}

func wait(ctx context.Context, l *rate.Limiter, n int) error {
	if err := l.WaitN(ctx, n); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

// Writer blocks each write until the bucket holds enough tokens.
type Writer struct {
	ctx context.Context
	w   io.Writer
	l   *rate.Limiter
}

// NewWriter wraps w. A non-positive rate returns a pass-through writer.
func NewWriter(ctx context.Context, w io.Writer, bytesPerSecond int) *Writer {
	return &Writer{ctx: ctx, w: w, l: newLimiter(bytesPerSecond)}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.l == nil {
		return w.w.Write(p)
	}
	written := 0
	for len(p) > 0 {
		n := min(len(p), w.l.Burst())
		if err := wait(w.ctx, w.l, n); err != nil {
			return written, err
		}
		m, err := w.w.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}

// Reader charges tokens for bytes as they are read.
type Reader struct {
	ctx context.Context
	r   io.Reader
	l   *rate.Limiter
}

// NewReader wraps r. A non-positive rate returns a pass-through reader.
func NewReader(ctx context.Context, r io.Reader, bytesPerSecond int) *Reader {
	return &Reader{ctx: ctx, r: r, l: newLimiter(bytesPerSecond)}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.l == nil {
		return r.r.Read(p)
	}
	if len(p) > r.l.Burst() {
		p = p[:r.l.Burst()]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := wait(r.ctx, r.l, n); werr != nil {
			return 0, werr
		}
	}
	return n, err
}
