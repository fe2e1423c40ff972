package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"nbpress/internal/publish"
)

func partialOutcome() publish.Outcome {
	return publish.Outcome{
		DocumentID: "2018-08-18-123456",
		Strategy:   publish.StrategyBlog,
		Chunks: []publish.ChunkStatus{
			{Index: 0, Code: 201},
			{Index: 1, Code: 500},
			{Index: 2, Code: 201},
		},
		Overall: publish.PartialFailure,
	}
}

func TestObservePublish(t *testing.T) {
	r := New()
	r.ObservePublish(partialOutcome(), 3, 2048, 10*time.Second)
	r.ObservePublish(publish.Outcome{Strategy: publish.StrategyBlog, Chunks: []publish.ChunkStatus{{Code: 200}}}, 1, 100, time.Second)

	if got := testutil.ToFloat64(r.publishes.WithLabelValues("blog", "partial_failure")); got != 1 {
		t.Fatalf("partial failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.publishes.WithLabelValues("blog", "success")); got != 1 {
		t.Fatalf("successes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.chunkWrites.WithLabelValues("blog", "201")); got != 2 {
		t.Fatalf("201 writes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.chunkWrites.WithLabelValues("blog", "500")); got != 1 {
		t.Fatalf("500 writes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.duration); got != 1 {
		t.Fatalf("duration series = %d, want 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	r := New()
	r.ObservePublish(partialOutcome(), 3, 2048, time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`nbpress_publishes_total{overall="partial_failure",strategy="blog"} 1`,
		`nbpress_publish_chunks_count{strategy="blog"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
