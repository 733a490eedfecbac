// Package tabular unifies variably-shaped records into a fixed-schema
// dataset and converts datasets to and from CSV.
package tabular

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/loraworks/ttn-export/internal/models"
)

// Dataset is an ordered column list plus rows covering exactly those
// columns. Every row has a value (possibly empty) for every column.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex maps column name to its position in Columns.
func (d Dataset) ColumnIndex() map[string]int {
	idx := make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		idx[c] = i
	}
	return idx
}

// Encode unifies the schema across records and renders each record as one
// row. Columns are the lexicographically sorted union of all field names,
// so two runs over the same logical data produce identical output
// regardless of key-insertion order. Fields a record lacks become empty
// strings. Row order matches record order; len(Rows) == len(records).
func Encode(records []models.Record) Dataset {
	if len(records) == 0 {
		return Dataset{}
	}

	seen := make(map[string]struct{})
	for _, record := range records {
		for name := range record {
			seen[name] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		row := make([]string, len(columns))
		for i, name := range columns {
			if v, ok := record[name]; ok {
				row[i] = FormatValue(v)
			}
		}
		rows = append(rows, row)
	}

	return Dataset{Columns: columns, Rows: rows}
}

// FormatValue renders a decoded JSON value for a CSV cell. Numbers keep
// the textual form they had in the source (the extractor decodes with
// UseNumber), booleans render as true/false, and nested structures that
// leaked into a cell are re-marshalled as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}
}
