// Package publish drives a notebook from parsed document to stored file(s):
// it resolves the destination, encodes and splits the document, writes every
// chunk and aggregates the per-chunk results into one Outcome.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"nbpress/internal/chunk"
	"nbpress/internal/contents"
	"nbpress/internal/encoder"
	"nbpress/internal/notebook"
)

const (
	DefaultStagger       = 5 * time.Second
	DefaultCommitMessage = "Put from nbpress"
)

// Putter writes one base64 payload to a target and returns the HTTP-style
// status of the write. contents.Client and gitrepo.Mirror both satisfy it.
type Putter interface {
	Put(ctx context.Context, target contents.Target, payload, message string) (int, error)
}

// Archiver keeps a copy of every encoded payload before it is uploaded.
type Archiver interface {
	Archive(ctx context.Context, plan Plan, payload []byte) error
}

// Recorder observes finished publishes.
type Recorder interface {
	ObservePublish(outcome Outcome, chunks int, payloadBytes int, elapsed time.Duration)
}

type Coordinator struct {
	putter   Putter
	limit    int
	stagger  time.Duration
	message  string
	logger   *slog.Logger
	archiver Archiver
	recorder Recorder
	after    func(time.Duration) <-chan time.Time
}

type Option func(*Coordinator)

func WithChunkLimit(limit int) Option {
	return func(c *Coordinator) { c.limit = limit }
}

// WithStagger sets the delay between the start of consecutive chunk writes.
func WithStagger(d time.Duration) Option {
	return func(c *Coordinator) { c.stagger = d }
}

func WithCommitMessage(message string) Option {
	return func(c *Coordinator) {
		if message != "" {
			c.message = message
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithArchiver(a Archiver) Option {
	return func(c *Coordinator) { c.archiver = a }
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// withTimer replaces time.After in tests.
func withTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Coordinator) { c.after = after }
}

func NewCoordinator(putter Putter, opts ...Option) *Coordinator {
	c := &Coordinator{
		putter:  putter,
		limit:   chunk.DefaultLimit,
		stagger: DefaultStagger,
		message: DefaultCommitMessage,
		logger:  slog.Default(),
		after:   time.After,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run resolves doc with strategy and publishes it.
func (c *Coordinator) Run(ctx context.Context, doc *notebook.Document, strategy Strategy) (Outcome, error) {
	plan, err := strategy.Resolve(doc)
	if err != nil {
		return Outcome{}, err
	}
	return c.Publish(ctx, doc, plan)
}

// Publish encodes doc with the plan's front matter and writes it. A payload
// that fits in one chunk is written once to the plan's target; otherwise
// every chunk is written concurrently, chunk i starting i*stagger after
// dispatch. All writes are awaited. Write failures are reported through the
// Outcome; the returned error is non-nil only when nothing could be written.
func (c *Coordinator) Publish(ctx context.Context, doc *notebook.Document, plan Plan) (Outcome, error) {
	started := time.Now()

	payload, err := encoder.Encode(doc, plan.FrontMatter)
	if err != nil {
		return Outcome{}, fmt.Errorf("publish %s: %w", plan.DocumentID, err)
	}

	if c.archiver != nil {
		if err := c.archiver.Archive(ctx, plan, payload); err != nil {
			c.logger.Warn("payload archive failed", "document_id", plan.DocumentID, "error", err)
		}
	}

	chunks := chunk.Split(payload, c.limit)
	var statuses []ChunkStatus
	if len(chunks) == 1 {
		statuses = []ChunkStatus{c.write(ctx, plan.Target, chunks[0], 0)}
	} else {
		statuses = c.writeAll(ctx, plan, chunks)
	}

	outcome := newOutcome(plan, plan.Target, statuses)
	outcome.PayloadBytes = len(payload)
	elapsed := time.Since(started)
	if c.recorder != nil {
		c.recorder.ObservePublish(outcome, len(chunks), len(payload), elapsed)
	}

	level := slog.LevelInfo
	if outcome.Overall != Success {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "publish finished",
		"document_id", plan.DocumentID,
		"strategy", plan.Strategy,
		"target", plan.Target.String(),
		"chunks", len(chunks),
		"bytes", len(payload),
		"overall", outcome.Overall.String(),
		"duration", elapsed,
	)
	return outcome, nil
}

func (c *Coordinator) writeAll(ctx context.Context, plan Plan, chunks []chunk.Chunk) []ChunkStatus {
	statuses := make([]ChunkStatus, len(chunks))
	var g errgroup.Group
	for _, ch := range chunks {
		target := plan.Target.WithPath(chunkPath(plan, ch.Index))
		delay := time.Duration(ch.Index) * c.stagger
		g.Go(func() error {
			statuses[ch.Index] = c.write(ctx, target, ch, delay)
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func (c *Coordinator) write(ctx context.Context, target contents.Target, ch chunk.Chunk, delay time.Duration) ChunkStatus {
	status := ChunkStatus{Index: ch.Index, Path: target.Path}
	if delay > 0 {
		select {
		case <-ctx.Done():
			status.Err = ctx.Err()
			return status
		case <-c.after(delay):
		}
	}

	code, err := c.putter.Put(ctx, target, ch.Payload, c.message)
	if err != nil {
		status.Err = err
		c.logger.Warn("chunk write failed", "path", target.Path, "index", ch.Index, "error", err)
		return status
	}
	status.Code = code
	if !status.OK() {
		c.logger.Warn("chunk write rejected", "path", target.Path, "index", ch.Index, "status", code)
	}
	return status
}
