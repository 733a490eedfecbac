// Package extractor turns TTN JSON-lines exports into flattened records.
//
// Each input line is a self-contained JSON object wrapping one uplink in a
// "result" envelope. Extraction is tolerant: missing envelope pieces are
// defaulted, and a line that fails to decode is reported as a ParseFailure
// while the rest of the batch keeps going.
package extractor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/loraworks/ttn-export/internal/models"
)

// maxLineBytes bounds a single scanned line. TTN uplinks are small; this
// leaves generous headroom for large decoded payloads.
const maxLineBytes = 1 << 20

// failureLinePrefix is how much of an unparseable line is carried in the
// reported failure.
const failureLinePrefix = 100

type endDeviceIDs struct {
	DeviceID *string `json:"device_id"`
}

type uplinkMessage struct {
	FPort          any            `json:"f_port"`
	FCnt           any            `json:"f_cnt"`
	DecodedPayload map[string]any `json:"decoded_payload"`
}

type resultBody struct {
	EndDeviceIDs  endDeviceIDs  `json:"end_device_ids"`
	ReceivedAt    *string       `json:"received_at"`
	UplinkMessage uplinkMessage `json:"uplink_message"`
}

type envelope struct {
	Result resultBody `json:"result"`
}

// ExtractLine parses one line into a Record.
//
// Blank or whitespace-only lines return (nil, nil) and should simply be
// skipped. A decode failure returns (nil, failure) carrying a truncated
// copy of the line and the decoder's error text. Exactly one of the two
// return values is non-nil for non-blank input.
func ExtractLine(line string) (models.Record, *models.ParseFailure) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, &models.ParseFailure{
			Line:  truncate(line, failureLinePrefix),
			Error: err.Error(),
		}
	}

	record := models.Record{
		models.FieldDeviceID:   models.UnknownDeviceID,
		models.FieldReceivedAt: "",
		models.FieldFPort:      "",
		models.FieldFCnt:       "",
	}

	if env.Result.EndDeviceIDs.DeviceID != nil {
		record[models.FieldDeviceID] = *env.Result.EndDeviceIDs.DeviceID
	}
	if env.Result.ReceivedAt != nil {
		record[models.FieldReceivedAt] = *env.Result.ReceivedAt
	}
	if env.Result.UplinkMessage.FPort != nil {
		record[models.FieldFPort] = env.Result.UplinkMessage.FPort
	}
	if env.Result.UplinkMessage.FCnt != nil {
		record[models.FieldFCnt] = env.Result.UplinkMessage.FCnt
	}

	// Payload fields merge last so a payload key named like a reserved
	// field overwrites it. Existing exports depend on this.
	for k, v := range env.Result.UplinkMessage.DecodedPayload {
		record[k] = v
	}

	return record, nil
}

// ExtractBatch scans r line by line and extracts every non-blank line,
// returning records and failures in input order. A single bad line never
// stops the batch. The error return covers reader failures only.
func ExtractBatch(r io.Reader) ([]models.Record, []models.ParseFailure, error) {
	var (
		records  []models.Record
		failures []models.ParseFailure
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		record, failure := ExtractLine(scanner.Text())
		switch {
		case failure != nil:
			failures = append(failures, *failure)
		case record != nil:
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return records, failures, err
	}

	return records, failures, nil
}

// ExtractString is ExtractBatch over an in-memory payload, matching the
// upload path where the whole batch is already buffered.
func ExtractString(data string) ([]models.Record, []models.ParseFailure) {
	records, failures, _ := ExtractBatch(bytes.NewReader([]byte(data)))
	return records, failures
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
