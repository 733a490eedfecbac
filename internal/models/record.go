package models

// Reserved field names present on every extracted record. The decoded
// payload is merged after these, so a payload key with the same name
// overwrites the reserved value (last-write-wins, kept for compatibility
// with existing exports).
const (
	FieldDeviceID   = "device_id"
	FieldReceivedAt = "received_at"
	FieldFPort      = "f_port"
	FieldFCnt       = "f_cnt"
)

// UnknownDeviceID is the grouping key used for records whose envelope
// carries no device identifier. All such records land in one bucket.
const UnknownDeviceID = "unknown"

// Record is one flattened uplink: the four reserved fields plus whatever
// keys the decoded payload carried. Values are kept as decoded (string,
// json.Number, bool, or a nested structure that leaked through) and are
// stringified only at tabular encoding time.
type Record map[string]any

// DeviceID returns the record's device identifier, falling back to
// UnknownDeviceID when the field was overwritten with a non-string value.
func (r Record) DeviceID() string {
	if id, ok := r[FieldDeviceID].(string); ok && id != "" {
		return id
	}
	return UnknownDeviceID
}

// ParseFailure describes one input line that could not be decoded.
// Failures are collected and reported alongside the successful records;
// they never abort a batch.
type ParseFailure struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}
