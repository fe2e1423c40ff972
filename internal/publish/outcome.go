package publish

import (
	"fmt"
	"net/http"

	"nbpress/internal/contents"
)

// Overall is the aggregate result of a publish.
type Overall int

const (
	Success Overall = iota
	PartialFailure
)

func (o Overall) String() string {
	if o == Success {
		return "success"
	}
	return "partial_failure"
}

// ChunkStatus is the result of writing one chunk. Code is the HTTP status of
// the write; Err is set instead when the write never produced a response.
type ChunkStatus struct {
	Index int
	Path  string
	Code  int
	Err   error
}

// OK reports whether the write was accepted.
func (s ChunkStatus) OK() bool {
	return s.Err == nil && (s.Code == http.StatusOK || s.Code == http.StatusCreated)
}

func (s ChunkStatus) String() string {
	if s.Err != nil {
		return fmt.Sprintf("chunk %d (%s): %v", s.Index, s.Path, s.Err)
	}
	return fmt.Sprintf("chunk %d (%s): %d", s.Index, s.Path, s.Code)
}

// Outcome is the terminal result of one publish call.
type Outcome struct {
	DocumentID string
	Title      string
	Strategy   string
	Target     contents.Target
	Chunks     []ChunkStatus
	Overall    Overall

	// PayloadBytes is the size of the encoded document before splitting.
	PayloadBytes int
}

func newOutcome(plan Plan, target contents.Target, chunks []ChunkStatus) Outcome {
	out := Outcome{
		DocumentID: plan.DocumentID,
		Title:      plan.Title,
		Strategy:   plan.Strategy,
		Target:     target,
		Chunks:     chunks,
		Overall:    Success,
	}
	for _, c := range chunks {
		if !c.OK() {
			out.Overall = PartialFailure
			break
		}
	}
	return out
}

// Codes returns the status code of every chunk in index order; writes that
// failed in transport report 0.
func (o Outcome) Codes() []int {
	codes := make([]int, len(o.Chunks))
	for i, c := range o.Chunks {
		codes[i] = c.Code
	}
	return codes
}

// Failed returns the chunks that were not accepted.
func (o Outcome) Failed() []ChunkStatus {
	var failed []ChunkStatus
	for _, c := range o.Chunks {
		if !c.OK() {
			failed = append(failed, c)
		}
	}
	return failed
}

// Message is the single user-facing line describing the outcome.
func (o Outcome) Message() string {
	if o.Overall == Success {
		return "Done"
	}
	return fmt.Sprintf("Fail to post. %d of %d chunks failed.", len(o.Failed()), len(o.Chunks))
}
