package store

import "time"

// Attempt is one recorded publish call.
type Attempt struct {
	ID           string
	DocumentID   string
	Strategy     string
	Title        string
	Owner        string
	Repo         string
	Branch       string
	Path         string
	ChunkCount   int
	PayloadBytes int
	Outcome      string
	CreatedAt    time.Time
	Chunks       []ChunkRecord
}

// ChunkRecord is the stored result of one chunk write. Error is empty when
// the write produced an HTTP status.
type ChunkRecord struct {
	Index      int
	Path       string
	StatusCode int
	Error      string
}

// Failed counts chunks that were not accepted.
func (a Attempt) Failed() int {
	failed := 0
	for _, c := range a.Chunks {
		if c.Error != "" || (c.StatusCode != 200 && c.StatusCode != 201) {
			failed++
		}
	}
	return failed
}
