package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/embedding"
	"github.com/jsvoboda/facebench/internal/experiment"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Precompute embeddings for the current split",
	Long: `Compute and cache embeddings for every template and probe image of the
current split.

Images already cached for the configured model are skipped, so the
command can resume after an interruption. A warmed cache makes
"facebench run" skip the embedding service entirely.

Examples:
  # Warm the cache with default concurrency
  facebench cache sync

  # Limit parallel embedding requests
  facebench cache sync --concurrency 2`,
	RunE: runCacheSync,
}

func init() {
	cacheCmd.AddCommand(cacheSyncCmd)

	cacheSyncCmd.Flags().Int("concurrency", 4, "Number of parallel embedding requests")
}

func runCacheSync(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	repo, pool, err := requireCache(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	templates, err := experiment.LoadSet(filepath.Join(cfg.Experiment.Dir, "templatedb.json"))
	if err != nil {
		return fmt.Errorf("failed to load template set: %w", err)
	}
	probes, err := experiment.LoadSet(filepath.Join(cfg.Experiment.Dir, "probes.json"))
	if err != nil {
		return fmt.Errorf("failed to load probe set: %w", err)
	}

	var images []string
	for _, db := range []experiment.SetDB{templates, probes} {
		for _, subject := range db.Subjects() {
			images = append(images, db[subject]...)
		}
	}

	model := cfg.Embedding.Model
	client := embedding.NewClient(cfg.Embedding.URL, model)

	fmt.Printf("Syncing %d images for model %s\n\n", len(images), model)

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Computing embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var computed, skipped, errorCount int64
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, imagePath := range images {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			cached, err := repo.Has(ctx, path, model)
			if err != nil {
				atomic.AddInt64(&errorCount, 1)
				return
			}
			if cached {
				atomic.AddInt64(&skipped, 1)
				return
			}

			result, err := client.Represent(ctx, path)
			if err != nil {
				atomic.AddInt64(&errorCount, 1)
				return
			}
			if err := repo.Save(ctx, path, model, result.Embedding); err != nil {
				atomic.AddInt64(&errorCount, 1)
				return
			}
			atomic.AddInt64(&computed, 1)
		}(imagePath)
	}

	wg.Wait()
	fmt.Println()

	fmt.Println("\nSync complete!")
	fmt.Printf("  Computed: %d\n", computed)
	fmt.Printf("  Cached:   %d\n", skipped)
	if errorCount > 0 {
		fmt.Printf("  Errors:   %d\n", errorCount)
	}
	fmt.Printf("  Duration: %s\n", time.Since(startTime).Round(time.Second))

	return nil
}
