package cmd

import (
	"context"
	"fmt"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/dataset"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download and extract the face dataset",
	Long: `Download the dataset archives from the configured base URL and extract
them into the dataset directory.

Archives already present on disk are skipped, so the command can be
re-run after a partial download. Defaults target the Tufts Face
Database RGB emotion set (TD_RGB_E).

Examples:
  # Download with default concurrency
  facebench download

  # Limit parallel downloads
  facebench download --concurrency 2`,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().Int("concurrency", 4, "Number of parallel downloads")
}

func runDownload(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	cfg := config.Load()

	fmt.Printf("Downloading %d archives from %s\n", len(cfg.Dataset.Archives), cfg.Dataset.BaseURL)

	fetcher := dataset.NewFetcher(&cfg.Dataset)
	if err := fetcher.FetchAll(context.Background(), concurrency); err != nil {
		return fmt.Errorf("dataset download failed: %w", err)
	}

	fmt.Printf("\nDataset ready in %s\n", cfg.Dataset.ExtractDir)
	return nil
}
