package chunker

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"testing"
	"testing/iotest"
)

func randomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0xabcdef))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

func chunkAll(t *testing.T, r io.Reader, size int64, expected int) [][]byte {
	t.Helper()
	c, err := New(r, size, expected)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var chunks [][]byte
	for chunk, err := range c.All() {
		if err != nil {
			t.Fatalf("chunking: %v", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestNewRejectsTinyExpectedSize(t *testing.T) {
	t.Parallel()
	if _, err := New(bytes.NewReader(nil), 0, 16); err == nil {
		t.Fatal("expected error for expected size 16")
	}
}

func TestChunkingRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{name: "empty", size: 0, expected: DefaultExpectedSize},
		{name: "smaller than min", size: 1000, expected: DefaultExpectedSize},
		{name: "exactly min", size: 2048, expected: DefaultExpectedSize},
		{name: "20KB", size: 20 * 1024, expected: DefaultExpectedSize},
		{name: "1MB", size: 1 << 20, expected: DefaultExpectedSize},
		{name: "1MB small chunks", size: 1 << 20, expected: 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := randomBytes(uint64(tt.size), tt.size)
			chunks := chunkAll(t, bytes.NewReader(data), int64(len(data)), tt.expected)

			if got := bytes.Join(chunks, nil); !bytes.Equal(got, data) {
				t.Fatalf("concatenated chunks differ from input (got %d bytes, want %d)", len(got), len(data))
			}
			if tt.size == 0 && len(chunks) != 0 {
				t.Errorf("empty input produced %d chunks", len(chunks))
			}

			minSize, maxSize := Bounds(tt.expected)
			for i, chunk := range chunks {
				if len(chunk) > maxSize {
					t.Errorf("chunk %d has %d bytes, above max %d", i, len(chunk), maxSize)
				}
				if i < len(chunks)-1 && len(chunk) < minSize {
					t.Errorf("chunk %d has %d bytes, below min %d", i, len(chunk), minSize)
				}
			}
		})
	}
}

func TestChunkingIsDeterministic(t *testing.T) {
	t.Parallel()

	data := randomBytes(7, 512*1024)
	first := chunkAll(t, bytes.NewReader(data), int64(len(data)), DefaultExpectedSize)
	// One-byte reads must not change boundaries.
	second := chunkAll(t, iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)), DefaultExpectedSize)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestTwentyKilobyteFile(t *testing.T) {
	t.Parallel()

	data := randomBytes(20, 20*1024)
	chunks := chunkAll(t, bytes.NewReader(data), int64(len(data)), 8*1024)
	if len(chunks) < 2 || len(chunks) > 4 {
		t.Errorf("got %d chunks, want 2-4", len(chunks))
	}
	for i, chunk := range chunks[:len(chunks)-1] {
		if len(chunk) < 2*1024 || len(chunk) > 64*1024 {
			t.Errorf("chunk %d size %d outside [2KB, 64KB]", i, len(chunk))
		}
	}
}

func TestInsertionPreservesMostChunks(t *testing.T) {
	t.Parallel()

	x := randomBytes(99, 1<<20)
	insert := randomBytes(100, 100)
	y := append(append(append([]byte{}, x[:5000]...), insert...), x[5000:]...)

	xChunks := chunkAll(t, bytes.NewReader(x), int64(len(x)), DefaultExpectedSize)
	yChunks := chunkAll(t, bytes.NewReader(y), int64(len(y)), DefaultExpectedSize)

	known := make(map[string]bool, len(xChunks))
	for _, c := range xChunks {
		known[string(c)] = true
	}
	reused := 0
	for _, c := range yChunks {
		if known[string(c)] {
			reused++
		}
	}
	if reused == 0 {
		t.Fatal("no chunks reused after a 100-byte insertion")
	}
	if changed := len(yChunks) - reused; changed > 3 {
		t.Errorf("%d of %d chunks changed after a 100-byte insertion", changed, len(yChunks))
	}
}

func TestShortStreamYieldsIncompleteFinalChunk(t *testing.T) {
	t.Parallel()

	data := randomBytes(3, 3000)
	chunks := chunkAll(t, bytes.NewReader(data), 10000, DefaultExpectedSize)
	if got := bytes.Join(chunks, nil); !bytes.Equal(got, data) {
		t.Errorf("got %d bytes, want the %d available", len(got), len(data))
	}
}

func TestDeclaredSizeLimitsRead(t *testing.T) {
	t.Parallel()

	data := randomBytes(4, 5000)
	chunks := chunkAll(t, bytes.NewReader(data), 1000, DefaultExpectedSize)
	if got := bytes.Join(chunks, nil); !bytes.Equal(got, data[:1000]) {
		t.Errorf("got %d bytes, want 1000", len(got))
	}
}

func TestReadErrorAbortsChunking(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk on fire")
	r := io.MultiReader(bytes.NewReader(randomBytes(5, 100)), iotest.ErrReader(boom))
	c, err := New(r, -1, DefaultExpectedSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Next(); !errors.Is(err, boom) {
		t.Fatalf("Next error = %v, want %v", err, boom)
	}
	// The failure is terminal.
	if _, err := c.Next(); !errors.Is(err, boom) {
		t.Errorf("second Next error = %v, want %v", err, boom)
	}
}

func TestNextAfterEOF(t *testing.T) {
	t.Parallel()

	c, err := New(bytes.NewReader([]byte("abc")), 3, DefaultExpectedSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	for range 2 {
		if _, err := c.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("Next after end = %v, want io.EOF", err)
		}
	}
}

func TestMasks(t *testing.T) {
	t.Parallel()

	small, large := masks(8192)
	if got := popcount(small); got != 15 {
		t.Errorf("small mask has %d bits, want 15", got)
	}
	if got := popcount(large); got != 11 {
		t.Errorf("large mask has %d bits, want 11", got)
	}
	small2, large2 := masks(8192)
	if small != small2 || large != large2 {
		t.Error("mask generation is not deterministic")
	}
}

func popcount(v uint64) int {
	n := 0
	for ; v != 0; v &= v - 1 {
		n++
	}
	return n
}
