package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/loraworks/ttn-export/internal/ttn"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch stored uplinks from the TTN Storage Integration API",
	Long: `Downloads stored uplink messages for an application over a bounded
lookback window (whole hours, 1h to 48h) and writes the raw JSON-lines
payload to a file, ready for 'ttnx process'.`,
	Example: `  ttnx fetch --app-id my-app --last 24h -o uplinks.json
  TTN_API_KEY=... ttnx fetch --app-id my-app --last 6h -o uplinks.json
  ttnx fetch --app-id my-app --last 24h -o uplinks.json --process`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, _ := cmd.Flags().GetString("app-id")
		lastRaw, _ := cmd.Flags().GetString("last")
		outPath, _ := cmd.Flags().GetString("out")
		baseURL, _ := cmd.Flags().GetString("base-url")
		apiKey, _ := cmd.Flags().GetString("api-key")

		if appID == "" {
			return fmt.Errorf("--app-id is required")
		}
		if apiKey == "" {
			apiKey = os.Getenv("TTN_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("an API key is required (use --api-key or TTN_API_KEY)")
		}

		last, err := time.ParseDuration(lastRaw)
		if err != nil {
			return fmt.Errorf("invalid --last duration: %w", err)
		}
		if err := ttn.ValidateWindow(last); err != nil {
			return err
		}

		client := ttn.New(baseURL, apiKey, 60*time.Second)
		data, err := client.FetchUplinks(cmd.Context(), appID, last)
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}

		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", outPath, len(data))

		if process, _ := cmd.Flags().GetBool("process"); process {
			summary, err := writeDeviceFiles(bytes.NewReader(data), filepath.Dir(outPath), false)
			if err != nil {
				return err
			}
			return renderDeviceSummary(summary)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("app-id", "", "TTN application ID")
	fetchCmd.Flags().String("last", "24h", "lookback window (whole hours, 1h-48h)")
	fetchCmd.Flags().StringP("out", "o", "uplinks.json", "output file")
	fetchCmd.Flags().String("base-url", "https://eu1.cloud.thethings.network", "TTN cluster address")
	fetchCmd.Flags().String("api-key", "", "application API key with storage read rights")
	fetchCmd.Flags().Bool("process", false, "also process the download into per-device CSV files")
}
