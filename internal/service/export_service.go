// Package service orchestrates the export pipeline: extraction, grouping,
// tabular encoding, and deduplication, plus the DLQ and run-history hooks.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/loraworks/ttn-export/internal/dedup"
	"github.com/loraworks/ttn-export/internal/dlq"
	"github.com/loraworks/ttn-export/internal/extractor"
	"github.com/loraworks/ttn-export/internal/history"
	"github.com/loraworks/ttn-export/internal/logging"
	"github.com/loraworks/ttn-export/internal/metrics"
	"github.com/loraworks/ttn-export/internal/models"
	"github.com/loraworks/ttn-export/internal/tabular"
)

// ErrEmptyKeySpec is returned when deduplication is requested with an
// explicitly empty identity-field list. An empty spec would give every row
// the same key and collapse the file to one row, so it is rejected here at
// the boundary instead of inside the deduplicator.
var ErrEmptyKeySpec = errors.New("at least one identity field is required")

// csvFileSuffix builds the per-device output filename convention
// {device_id}_data.csv.
const csvFileSuffix = "_data.csv"

// DedupFilePrefix marks deduplicated output files.
const DedupFilePrefix = "deduplicated_"

// DeviceSummary describes one device's share of a processed batch.
type DeviceSummary struct {
	DeviceID string `json:"device_id"`
	Records  int    `json:"records"`
	Filename string `json:"filename"`
}

// BatchResult is the outcome of processing one JSON-lines batch: one CSV
// file per device plus the lines that could not be parsed. Partial success
// is explicit; a batch with bad lines still carries full output for every
// line that parsed.
type BatchResult struct {
	Devices  []DeviceSummary       `json:"devices"`
	Files    map[string]string     `json:"files"`
	Records  int                   `json:"records"`
	Failures []models.ParseFailure `json:"skipped_lines,omitempty"`
}

// DedupFileResult is the outcome of deduplicating one CSV file.
type DedupFileResult struct {
	Filename          string `json:"filename"`
	Data              []byte `json:"-"`
	OriginalCount     int    `json:"original_count"`
	UniqueCount       int    `json:"unique_count"`
	DuplicatesRemoved int    `json:"duplicates_removed"`
}

// ExportService runs the pipeline. The DLQ writer and history recorder are
// optional collaborators; both default to no-ops.
type ExportService struct {
	dlq     dlq.Writer
	history history.Recorder
	logger  *logging.Logger
}

func NewExportService(dlqWriter dlq.Writer, recorder history.Recorder, logger *logging.Logger) *ExportService {
	if dlqWriter == nil {
		dlqWriter = dlq.NoOpWriter{}
	}
	if recorder == nil {
		recorder = history.NoOpRecorder{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ExportService{
		dlq:     dlqWriter,
		history: recorder,
		logger:  logger,
	}
}

// ProcessBatch reads a JSON-lines batch, groups records by device, and
// encodes one CSV file per device. Unparseable lines are reported in the
// result and forwarded to the DLQ; they never abort the batch. An empty
// batch yields an empty result, not an error.
func (s *ExportService) ProcessBatch(ctx context.Context, r io.Reader) (*BatchResult, error) {
	start := time.Now()

	records, failures, err := extractor.ExtractBatch(r)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}

	metrics.LinesTotal.WithLabelValues("parsed").Add(float64(len(records)))
	metrics.LinesTotal.WithLabelValues("skipped").Add(float64(len(failures)))

	for i := range failures {
		s.logger.WarnContext(ctx, "could not parse line",
			"line", failures[i].Line,
			logging.Err(errors.New(failures[i].Error)),
		)
		if dlqErr := s.dlq.Write(ctx, &failures[i]); dlqErr != nil {
			s.logger.WarnContext(ctx, "dlq write failed", logging.Err(dlqErr))
		}
	}

	groups := extractor.GroupByDevice(records)

	result := &BatchResult{
		Files:    make(map[string]string, len(groups)),
		Records:  len(records),
		Failures: failures,
	}

	for _, deviceID := range extractor.SortedDeviceIDs(groups) {
		deviceRecords := groups[deviceID]
		dataset := tabular.Encode(deviceRecords)

		data, err := dataset.MarshalCSV()
		if err != nil {
			return nil, fmt.Errorf("encode device %s: %w", deviceID, err)
		}

		filename := deviceID + csvFileSuffix
		result.Files[filename] = string(data)
		result.Devices = append(result.Devices, DeviceSummary{
			DeviceID: deviceID,
			Records:  len(deviceRecords),
			Filename: filename,
		})
		metrics.RowsEncodedTotal.Add(float64(len(dataset.Rows)))
	}

	metrics.ProcessDuration.Observe(time.Since(start).Seconds())

	s.recordRun(ctx, &history.Run{
		Kind:         "process",
		Devices:      len(result.Devices),
		Records:      result.Records,
		SkippedLines: len(failures),
	})

	s.logger.InfoContext(ctx, "batch processed",
		"devices", len(result.Devices),
		"records", result.Records,
		"skipped", len(failures),
	)

	return result, nil
}

// DeduplicateCSV removes duplicate rows from one CSV file. A nil keySpec
// selects the default identity fields; an explicitly empty one is an
// error. The output keeps the input's column order and gains the
// deduplicated_ filename prefix.
func (s *ExportService) DeduplicateCSV(ctx context.Context, filename string, data []byte, keySpec []string) (*DedupFileResult, error) {
	if keySpec == nil {
		keySpec = dedup.DefaultKeySpec()
	}
	if len(keySpec) == 0 {
		return nil, ErrEmptyKeySpec
	}

	start := time.Now()

	dataset, err := tabular.UnmarshalCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	res := dedup.Deduplicate(dataset, keySpec)

	out, err := res.Dataset.MarshalCSV()
	if err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}

	metrics.DedupRowsTotal.WithLabelValues("kept").Add(float64(res.UniqueCount))
	metrics.DedupRowsTotal.WithLabelValues("removed").Add(float64(res.DuplicatesRemoved))
	metrics.DedupDuration.Observe(time.Since(start).Seconds())

	s.recordRun(ctx, &history.Run{
		Kind:              "dedup",
		Records:           res.OriginalCount,
		DuplicatesRemoved: res.DuplicatesRemoved,
	})

	s.logger.InfoContext(ctx, "file deduplicated",
		"filename", filename,
		"original", res.OriginalCount,
		"unique", res.UniqueCount,
		"removed", res.DuplicatesRemoved,
	)

	return &DedupFileResult{
		Filename:          DedupFilePrefix + filename,
		Data:              out,
		OriginalCount:     res.OriginalCount,
		UniqueCount:       res.UniqueCount,
		DuplicatesRemoved: res.DuplicatesRemoved,
	}, nil
}

// ListRuns returns recent run summaries, newest first. With history
// disabled the list is empty.
func (s *ExportService) ListRuns(ctx context.Context, limit int) ([]*history.Run, error) {
	return s.history.ListRuns(ctx, limit)
}

// recordRun persists the run summary when history is enabled. Failures are
// logged and swallowed; history is never on the request's critical path.
func (s *ExportService) recordRun(ctx context.Context, run *history.Run) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()
	if err := s.history.RecordRun(ctx, run); err != nil {
		s.logger.WarnContext(ctx, "failed to record run", logging.Err(err))
	}
}
