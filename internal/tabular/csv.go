package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// MarshalCSV renders the dataset as UTF-8 CSV with the header row first.
// An empty dataset yields empty output.
func (d Dataset) MarshalCSV() ([]byte, error) {
	if len(d.Columns) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(d.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range d.Rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalCSV parses CSV text into a dataset, preserving the input's
// column order verbatim. Deduplication goes through here, which is why it
// never re-sorts columns the way Encode does.
func UnmarshalCSV(data []byte) (Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))

	header, err := r.Read()
	if err == io.EOF {
		return Dataset{}, nil
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("read header: %w", err)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	return Dataset{Columns: header, Rows: rows}, nil
}
