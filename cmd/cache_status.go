package cmd

import (
	"context"
	"fmt"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/spf13/cobra"
)

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show embedding cache statistics",
	RunE:  runCacheStatus,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	repo, pool, err := requireCache(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	total, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count embeddings: %w", err)
	}

	fmt.Printf("Cached embeddings: %d\n", total)
	for _, model := range cfg.ModelNames() {
		count, err := repo.CountModel(ctx, model)
		if err != nil {
			return fmt.Errorf("failed to count embeddings for %s: %w", model, err)
		}
		if count > 0 {
			fmt.Printf("  %-12s %d\n", model, count)
		}
	}

	return nil
}
