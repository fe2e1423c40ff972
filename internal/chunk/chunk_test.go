package chunk

import (
	"bytes"
	"encoding/base64"
	"math/rand"
	"testing"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, size := range []int{0, 1, 9, 10, 11, 99, 100, 101, 1000} {
		for _, limit := range []int{1, 3, 10, 100, 4096} {
			data := make([]byte, size)
			rng.Read(data)

			chunks := Split(data, limit)
			want := 1
			if size > 0 {
				want = (size + limit - 1) / limit
			}
			if len(chunks) != want {
				t.Fatalf("Split(%d bytes, %d) produced %d chunks, want %d", size, limit, len(chunks), want)
			}
			if Count(size, limit) != want {
				t.Fatalf("Count(%d, %d) = %d, want %d", size, limit, Count(size, limit), want)
			}

			joined, err := Join(chunks)
			if err != nil {
				t.Fatalf("Join() error = %v", err)
			}
			if !bytes.Equal(joined, data) {
				t.Fatalf("round trip mismatch for size=%d limit=%d", size, limit)
			}
		}
	}
}

func TestSplitIndicesAndSizes(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 25)
	chunks := Split(data, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	sizes := []int{10, 10, 5}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		raw, err := base64.StdEncoding.DecodeString(c.Payload)
		if err != nil {
			t.Fatalf("DecodeString() error = %v", err)
		}
		if len(raw) != sizes[i] {
			t.Fatalf("chunk %d is %d bytes, want %d", i, len(raw), sizes[i])
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	chunks := Split(nil, 10)
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].Payload != "" {
		t.Fatalf("unexpected empty chunk %+v", chunks[0])
	}
}

func TestSplitExactMultiple(t *testing.T) {
	chunks := Split(bytes.Repeat([]byte("a"), 20), 10)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
}

func TestSplitNonPositiveLimit(t *testing.T) {
	data := []byte("hello world")
	for _, limit := range []int{0, -5} {
		chunks := Split(data, limit)
		if len(chunks) != 1 {
			t.Fatalf("Split(limit=%d) produced %d chunks", limit, len(chunks))
		}
		if chunks[0].Payload != base64.StdEncoding.EncodeToString(data) {
			t.Fatalf("unexpected payload %q", chunks[0].Payload)
		}
	}
}

func TestJoinRejectsOutOfOrder(t *testing.T) {
	chunks := Split([]byte("abcdef"), 2)
	chunks[0], chunks[1] = chunks[1], chunks[0]
	if _, err := Join(chunks); err == nil {
		t.Fatal("expected error for out-of-order chunks")
	}
}

func TestDefaultLimit(t *testing.T) {
	if DefaultLimit != 716800 {
		t.Fatalf("DefaultLimit = %d", DefaultLimit)
	}
}
