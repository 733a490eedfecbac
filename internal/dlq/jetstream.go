package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/loraworks/ttn-export/internal/models"
)

const (
	streamName   = "TTNEXPORT_DLQ"
	subjectBase  = "export.dlq"
	parseSubject = subjectBase + ".parse_error"
)

// JetStreamWriter publishes failed lines to a NATS JetStream stream.
// Safe for use across multiple exporter instances.
type JetStreamWriter struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	written uint64
}

// NewJetStreamWriter connects to NATS and ensures the DLQ stream exists.
func NewJetStreamWriter(ctx context.Context, natsURL string) (*JetStreamWriter, error) {
	nc, err := nats.Connect(natsURL, nats.Name("ttn-export-dlq"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectBase + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	return &JetStreamWriter{nc: nc, js: js, stream: stream}, nil
}

// Write publishes one failed line to the DLQ stream.
func (w *JetStreamWriter) Write(ctx context.Context, failure *models.ParseFailure) error {
	if w == nil {
		return nil
	}

	entry := FailedLine{
		Timestamp: time.Now().UTC(),
		Line:      failure.Line,
		Error:     failure.Error,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := w.js.Publish(ctx, parseSubject, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	atomic.AddUint64(&w.written, 1)
	return nil
}

// Written returns the number of entries published by this instance.
func (w *JetStreamWriter) Written() uint64 {
	return atomic.LoadUint64(&w.written)
}

func (w *JetStreamWriter) Close() error {
	if w != nil && w.nc != nil {
		w.nc.Close()
	}
	return nil
}
