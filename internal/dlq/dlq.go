// Package dlq records input lines that failed extraction so they can be
// inspected or replayed after the exporter that produced them is fixed.
package dlq

import (
	"context"
	"time"

	"github.com/loraworks/ttn-export/internal/models"
)

// Writer records parse failures. Implementations must tolerate being
// called from the hot path; a DLQ write failure never fails the batch.
type Writer interface {
	Write(ctx context.Context, failure *models.ParseFailure) error
	Close() error
}

// FailedLine is the persisted DLQ entry for one unparseable input line.
type FailedLine struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
	Error     string    `json:"error"`
}

// NoOpWriter discards failures (DLQ disabled).
type NoOpWriter struct{}

func (NoOpWriter) Write(ctx context.Context, failure *models.ParseFailure) error {
	return nil
}

func (NoOpWriter) Close() error {
	return nil
}
