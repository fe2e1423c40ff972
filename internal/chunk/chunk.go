// Package chunk splits an encoded payload into independently uploadable
// base64 pieces.
package chunk

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// DefaultLimit is the largest raw slice placed in a single chunk: 700 KiB,
// which stays under the contents API's 1 MB request ceiling after base64.
const DefaultLimit = 700 * 1024

// Chunk is one base64-encoded slice of a payload.
type Chunk struct {
	Index   int
	Payload string
}

// Count returns how many chunks Split produces for n bytes.
func Count(n, limit int) int {
	if limit <= 0 || n <= limit {
		return 1
	}
	return (n + limit - 1) / limit
}

// Split cuts data into contiguous slices of at most limit bytes and encodes
// each one independently. Empty data yields a single empty chunk and a
// non-positive limit yields a single chunk holding everything.
func Split(data []byte, limit int) []Chunk {
	count := Count(len(data), limit)
	if count == 1 {
		return []Chunk{{Index: 0, Payload: base64.StdEncoding.EncodeToString(data)}}
	}

	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * limit
		end := min(len(data), (i+1)*limit)
		chunks = append(chunks, Chunk{
			Index:   i,
			Payload: base64.StdEncoding.EncodeToString(data[start:end]),
		})
	}
	return chunks
}

// Join decodes and concatenates chunks in index order.
func Join(chunks []Chunk) ([]byte, error) {
	var buf bytes.Buffer
	for i, c := range chunks {
		if c.Index != i {
			return nil, fmt.Errorf("chunk %d out of order: index %d", i, c.Index)
		}
		raw, err := base64.StdEncoding.DecodeString(c.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode chunk %d: %w", c.Index, err)
		}
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}
