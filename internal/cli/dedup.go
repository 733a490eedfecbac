package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loraworks/ttn-export/internal/dedup"
	"github.com/loraworks/ttn-export/internal/tabular"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <file.csv> [file.csv...]",
	Short: "Remove duplicate rows from CSV files",
	Long: `Removes rows whose identity-field values have been seen before,
keeping the first occurrence. Each input file is written back as
deduplicated_<name> next to the original.`,
	Example: `  ttnx dedup sensor1_data.csv
  ttnx dedup *.csv --fields f_cnt,received_at,device_id`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, _ := cmd.Flags().GetStringSlice("fields")
		if len(fields) == 0 {
			return fmt.Errorf("at least one identity field is required")
		}

		type fileRow struct {
			File              string `json:"file" yaml:"file"`
			OriginalCount     int    `json:"original_count" yaml:"original_count"`
			UniqueCount       int    `json:"unique_count" yaml:"unique_count"`
			DuplicatesRemoved int    `json:"duplicates_removed" yaml:"duplicates_removed"`
		}
		var summary []fileRow

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			dataset, err := tabular.UnmarshalCSV(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}

			res := dedup.Deduplicate(dataset, fields)

			out, err := res.Dataset.MarshalCSV()
			if err != nil {
				return fmt.Errorf("encode %s: %w", path, err)
			}

			outPath := filepath.Join(filepath.Dir(path), "deduplicated_"+filepath.Base(path))
			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}

			summary = append(summary, fileRow{
				File:              filepath.Base(path),
				OriginalCount:     res.OriginalCount,
				UniqueCount:       res.UniqueCount,
				DuplicatesRemoved: res.DuplicatesRemoved,
			})
		}

		return render(summary, []string{"FILE", "ORIGINAL", "UNIQUE", "REMOVED"}, func() [][]string {
			rows := make([][]string, 0, len(summary))
			for _, f := range summary {
				rows = append(rows, []string{
					f.File,
					strconv.Itoa(f.OriginalCount),
					strconv.Itoa(f.UniqueCount),
					strconv.Itoa(f.DuplicatesRemoved),
				})
			}
			return rows
		})
	},
}

func init() {
	rootCmd.AddCommand(dedupCmd)

	dedupCmd.Flags().StringSlice("fields", dedup.DefaultKeySpec(), "identity fields for duplicate detection")
}
