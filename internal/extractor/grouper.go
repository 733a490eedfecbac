package extractor

import (
	"sort"

	"github.com/loraworks/ttn-export/internal/models"
)

// GroupByDevice buckets records by device identifier. Within a bucket the
// records keep their extraction order, which downstream consumers rely on
// for frame-counter sequences. Empty input yields an empty map.
func GroupByDevice(records []models.Record) map[string][]models.Record {
	groups := make(map[string][]models.Record, 8)
	for _, record := range records {
		id := record.DeviceID()
		groups[id] = append(groups[id], record)
	}
	return groups
}

// SortedDeviceIDs returns the group keys in lexicographic order so callers
// can iterate groups deterministically.
func SortedDeviceIDs(groups map[string][]models.Record) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
