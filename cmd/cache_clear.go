package cmd

import (
	"context"
	"fmt"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/spf13/cobra"
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached embeddings for a model",
	Long: `Delete all cached embeddings computed with one model.

Use this after switching the embedding service to a new model version,
when the cached vectors are no longer comparable.

Examples:
  # Clear the configured model's embeddings
  facebench cache clear

  # Clear a specific model
  facebench cache clear --model ArcFace`,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().String("model", "", "Model to clear (defaults to the configured model)")
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	model := mustGetString(cmd, "model")
	if model == "" {
		model = cfg.Embedding.Model
	}

	repo, pool, err := requireCache(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	deleted, err := repo.ClearModel(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}

	fmt.Printf("Deleted %d cached embeddings for model %s\n", deleted, model)
	return nil
}
