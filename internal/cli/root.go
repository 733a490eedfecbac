// Package cli implements the ttnx command line tool: local batch
// processing, CSV deduplication, and storage API fetches without running
// the HTTP service.
package cli

import (
	"github.com/spf13/cobra"
)

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "ttnx",
	Short: "TTN export toolbox",
	Long: `ttnx processes TTN JSON-lines exports into per-device CSV files,
removes duplicate rows from CSV exports, and fetches stored uplinks
from the TTN Storage Integration API.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json, yaml")
}
