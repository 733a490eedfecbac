package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCSV(t *testing.T) {
	ds := Dataset{
		Columns: []string{"device_id", "temp"},
		Rows: [][]string{
			{"dev1", "21.5"},
			{"dev2", `say "hi"`},
		},
	}

	data, err := ds.MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "device_id,temp\ndev1,21.5\ndev2,\"say \"\"hi\"\"\"\n", string(data))
}

func TestMarshalCSV_Empty(t *testing.T) {
	data, err := Dataset{}.MarshalCSV()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestUnmarshalCSV_PreservesHeaderOrder(t *testing.T) {
	// Deliberately unsorted header: dedup I/O must keep it verbatim.
	in := "temp,device_id,f_cnt\n21.5,dev1,5\n,dev2,6\n"

	ds, err := UnmarshalCSV([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"temp", "device_id", "f_cnt"}, ds.Columns)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, []string{"21.5", "dev1", "5"}, ds.Rows[0])
	assert.Equal(t, []string{"", "dev2", "6"}, ds.Rows[1])
}

func TestUnmarshalCSV_Empty(t *testing.T) {
	ds, err := UnmarshalCSV(nil)
	require.NoError(t, err)
	assert.Empty(t, ds.Columns)
	assert.Empty(t, ds.Rows)
}

func TestCSVRoundTrip(t *testing.T) {
	original := Dataset{
		Columns: []string{"a", "b", "c"},
		Rows: [][]string{
			{"1", "", "x,y"},
			{"", "2", "line\nbreak"},
		},
	}

	data, err := original.MarshalCSV()
	require.NoError(t, err)

	decoded, err := UnmarshalCSV(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
