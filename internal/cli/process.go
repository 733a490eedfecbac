package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loraworks/ttn-export/internal/archive"
	"github.com/loraworks/ttn-export/internal/extractor"
	"github.com/loraworks/ttn-export/internal/tabular"
)

type deviceRow struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
	Records  int    `json:"records" yaml:"records"`
	Filename string `json:"filename" yaml:"filename"`
}

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process a JSON-lines export into per-device CSV files",
	Long: `Reads a TTN JSON-lines export (one JSON object per line) and writes
one CSV file per device. Unparseable lines are reported and skipped.`,
	Example: `  ttnx process uplinks.json
  ttnx process uplinks.json --out-dir ./csv --zip`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out-dir")
		asZip, _ := cmd.Flags().GetBool("zip")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()

		summary, err := writeDeviceFiles(f, outDir, asZip)
		if err != nil {
			return err
		}

		return renderDeviceSummary(summary)
	},
}

// writeDeviceFiles extracts a JSON-lines batch from r and writes one CSV
// file per device into outDir, or a single zip archive when asZip is set.
// Parse warnings go to stderr.
func writeDeviceFiles(r io.Reader, outDir string, asZip bool) ([]deviceRow, error) {
	records, failures, err := extractor.ExtractBatch(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	for _, failure := range failures {
		fmt.Fprintf(os.Stderr, "warning: could not parse line: %s (%s)\n", failure.Line, failure.Error)
	}

	groups := extractor.GroupByDevice(records)
	files := make(map[string]string, len(groups))
	var summary []deviceRow

	for _, deviceID := range extractor.SortedDeviceIDs(groups) {
		dataset := tabular.Encode(groups[deviceID])
		data, err := dataset.MarshalCSV()
		if err != nil {
			return nil, fmt.Errorf("encode device %s: %w", deviceID, err)
		}
		name := deviceID + "_data.csv"
		files[name] = string(data)
		summary = append(summary, deviceRow{DeviceID: deviceID, Records: len(groups[deviceID]), Filename: name})
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	if asZip {
		data, err := archive.Build(files)
		if err != nil {
			return nil, fmt.Errorf("build archive: %w", err)
		}
		path := filepath.Join(outDir, archive.DefaultName)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write archive: %w", err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d files)\n", path, len(files))
		return summary, nil
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	return summary, nil
}

func renderDeviceSummary(summary []deviceRow) error {
	return render(summary, []string{"DEVICE", "RECORDS", "FILE"}, func() [][]string {
		rows := make([][]string, 0, len(summary))
		for _, d := range summary {
			rows = append(rows, []string{d.DeviceID, strconv.Itoa(d.Records), d.Filename})
		}
		return rows
	})
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("out-dir", ".", "directory for output files")
	processCmd.Flags().Bool("zip", false, "write a single zip archive instead of individual files")
}
