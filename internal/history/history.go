// Package history keeps an optional audit trail of processing runs.
package history

import (
	"context"
	"time"
)

// Run is one completed pipeline invocation.
type Run struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"` // process, dedup, or fetch
	Devices           int       `json:"devices"`
	Records           int       `json:"records"`
	SkippedLines      int       `json:"skipped_lines"`
	DuplicatesRemoved int       `json:"duplicates_removed"`
	CreatedAt         time.Time `json:"created_at"`
}

// Recorder persists run summaries. Recording is best-effort: a failed
// write is logged by the caller, never surfaced to the client.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Close()
}

// NoOpRecorder discards runs (history disabled).
type NoOpRecorder struct{}

func (NoOpRecorder) RecordRun(ctx context.Context, run *Run) error {
	return nil
}

func (NoOpRecorder) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return nil, nil
}

func (NoOpRecorder) Close() {}
