// Package archive packages per-device CSV files into a single zip stream.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
)

// DefaultName is the download filename for a packaged batch.
const DefaultName = "processed_data.zip"

// Build writes the filename to content mapping into a zip archive.
// Entries are added in sorted filename order so the same input always
// produces the same archive layout.
func Build(files map[string]string) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, name := range names {
		f, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := f.Write([]byte(files[name])); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
