package extractor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loraworks/ttn-export/internal/models"
)

func TestExtractLine_FullEnvelope(t *testing.T) {
	line := `{"result":{"end_device_ids":{"device_id":"dev1"},"received_at":"2024-01-01T00:00:00Z","uplink_message":{"f_port":1,"f_cnt":5,"decoded_payload":{"temp":21.5}}}}`

	record, failure := ExtractLine(line)
	require.Nil(t, failure)
	require.NotNil(t, record)

	assert.Equal(t, "dev1", record[models.FieldDeviceID])
	assert.Equal(t, "2024-01-01T00:00:00Z", record[models.FieldReceivedAt])
	assert.Equal(t, json.Number("1"), record[models.FieldFPort])
	assert.Equal(t, json.Number("5"), record[models.FieldFCnt])
	assert.Equal(t, json.Number("21.5"), record["temp"])
	assert.Len(t, record, 5)
}

func TestExtractLine_Defaults(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "empty object", line: `{}`},
		{name: "no result", line: `{"other":1}`},
		{name: "empty result", line: `{"result":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, failure := ExtractLine(tt.line)
			require.Nil(t, failure)
			require.NotNil(t, record)

			assert.Equal(t, models.UnknownDeviceID, record[models.FieldDeviceID])
			assert.Equal(t, "", record[models.FieldReceivedAt])
			assert.Equal(t, "", record[models.FieldFPort])
			assert.Equal(t, "", record[models.FieldFCnt])
			assert.Len(t, record, 4)
		})
	}
}

func TestExtractLine_Blank(t *testing.T) {
	for _, line := range []string{"", "   ", "\t"} {
		record, failure := ExtractLine(line)
		assert.Nil(t, record)
		assert.Nil(t, failure)
	}
}

func TestExtractLine_InvalidJSON(t *testing.T) {
	record, failure := ExtractLine("not json at all")
	assert.Nil(t, record)
	require.NotNil(t, failure)
	assert.Equal(t, "not json at all", failure.Line)
	assert.NotEmpty(t, failure.Error)
}

func TestExtractLine_TruncatesLongFailures(t *testing.T) {
	line := "{" + strings.Repeat("x", 300)

	_, failure := ExtractLine(line)
	require.NotNil(t, failure)
	assert.Len(t, failure.Line, 103)
	assert.True(t, strings.HasSuffix(failure.Line, "..."))
}

func TestExtractLine_PayloadOverwritesReserved(t *testing.T) {
	line := `{"result":{"end_device_ids":{"device_id":"dev1"},"uplink_message":{"decoded_payload":{"device_id":"spoofed","f_cnt":99}}}}`

	record, failure := ExtractLine(line)
	require.Nil(t, failure)

	// Payload keys win on collision; existing exports depend on this.
	assert.Equal(t, "spoofed", record[models.FieldDeviceID])
	assert.Equal(t, json.Number("99"), record[models.FieldFCnt])
}

func TestExtractLine_StringPortAndCounter(t *testing.T) {
	line := `{"result":{"uplink_message":{"f_port":"2","f_cnt":"17"}}}`

	record, failure := ExtractLine(line)
	require.Nil(t, failure)
	assert.Equal(t, "2", record[models.FieldFPort])
	assert.Equal(t, "17", record[models.FieldFCnt])
}

func TestExtractBatch_SkipAndContinue(t *testing.T) {
	input := strings.Join([]string{
		`{"result":{"end_device_ids":{"device_id":"a"},"uplink_message":{"f_cnt":1}}}`,
		``,
		`this line is broken`,
		`{"result":{"end_device_ids":{"device_id":"b"},"uplink_message":{"f_cnt":2}}}`,
		`   `,
		`{"result":{"end_device_ids":{"device_id":"a"},"uplink_message":{"f_cnt":3}}}`,
	}, "\n")

	records, failures, err := ExtractBatch(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Len(t, failures, 1)

	assert.Equal(t, "this line is broken", failures[0].Line)
	assert.Equal(t, "a", records[0].DeviceID())
	assert.Equal(t, "b", records[1].DeviceID())
	assert.Equal(t, "a", records[2].DeviceID())
}

func TestExtractBatch_Empty(t *testing.T) {
	records, failures, err := ExtractBatch(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, failures)
}
