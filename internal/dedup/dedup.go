// Package dedup collapses tabular rows sharing a composite identity key.
package dedup

import (
	"strings"

	"github.com/loraworks/ttn-export/internal/tabular"
)

// keyDelimiter joins key components. A field value containing the
// delimiter can in principle collide with another row's key; that risk is
// accepted, matching the existing export format.
const keyDelimiter = "|"

// DefaultKeySpec returns the identity fields used when the caller supplies
// none: frame counter plus receive timestamp. A fresh slice is returned on
// every call so callers can't mutate shared state.
func DefaultKeySpec() []string {
	return []string{"f_cnt", "received_at"}
}

// Result carries the reduced dataset and its row accounting.
// UniqueCount + DuplicatesRemoved always equals OriginalCount.
type Result struct {
	Dataset           tabular.Dataset
	OriginalCount     int
	UniqueCount       int
	DuplicatesRemoved int
}

// Deduplicate removes rows whose composite key has been seen before,
// keeping the first occurrence and preserving row order. The key is the
// keySpec-ordered concatenation of the named columns' values; a column
// absent from the schema contributes an empty component rather than
// failing. Column order of the output matches the input.
//
// An empty keySpec gives every row the same key and collapses the dataset
// to one row. Callers must reject an empty spec at their boundary; this
// function does not.
func Deduplicate(ds tabular.Dataset, keySpec []string) Result {
	index := ds.ColumnIndex()

	positions := make([]int, len(keySpec))
	for i, field := range keySpec {
		if pos, ok := index[field]; ok {
			positions[i] = pos
		} else {
			positions[i] = -1
		}
	}

	seen := make(map[string]struct{}, len(ds.Rows))
	kept := make([][]string, 0, len(ds.Rows))
	removed := 0

	for _, row := range ds.Rows {
		key := compositeKey(row, positions)
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}

	return Result{
		Dataset:           tabular.Dataset{Columns: ds.Columns, Rows: kept},
		OriginalCount:     len(ds.Rows),
		UniqueCount:       len(kept),
		DuplicatesRemoved: removed,
	}
}

func compositeKey(row []string, positions []int) string {
	parts := make([]string, len(positions))
	for i, pos := range positions {
		if pos >= 0 && pos < len(row) {
			parts[i] = row[pos]
		}
	}
	return strings.Join(parts, keyDelimiter)
}
