package publish

import (
	"errors"
	"testing"
)

func TestChunkStatusOK(t *testing.T) {
	cases := []struct {
		status ChunkStatus
		ok     bool
	}{
		{ChunkStatus{Code: 200}, true},
		{ChunkStatus{Code: 201}, true},
		{ChunkStatus{Code: 204}, false},
		{ChunkStatus{Code: 409}, false},
		{ChunkStatus{Err: errors.New("boom")}, false},
	}
	for _, tc := range cases {
		if tc.status.OK() != tc.ok {
			t.Fatalf("%v.OK() = %v, want %v", tc.status, tc.status.OK(), tc.ok)
		}
	}
}

func TestNewOutcomeAggregates(t *testing.T) {
	plan := Plan{DocumentID: "doc", Strategy: StrategyEbook}
	ok := newOutcome(plan, plan.Target, []ChunkStatus{{Index: 0, Code: 201}, {Index: 1, Code: 200}})
	if ok.Overall != Success || len(ok.Failed()) != 0 {
		t.Fatalf("expected success, got %+v", ok)
	}

	bad := newOutcome(plan, plan.Target, []ChunkStatus{{Index: 0, Code: 201}, {Index: 1, Err: errors.New("x")}, {Index: 2, Code: 422}})
	if bad.Overall != PartialFailure {
		t.Fatalf("expected partial failure, got %v", bad.Overall)
	}
	if got := bad.Message(); got != "Fail to post. 2 of 3 chunks failed." {
		t.Fatalf("Message() = %q", got)
	}
	codes := bad.Codes()
	if codes[0] != 201 || codes[1] != 0 || codes[2] != 422 {
		t.Fatalf("Codes() = %v", codes)
	}
	if bad.Overall.String() != "partial_failure" || ok.Overall.String() != "success" {
		t.Fatal("unexpected Overall strings")
	}
}
