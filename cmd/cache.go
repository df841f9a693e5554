package cmd

import (
	"fmt"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/store/postgres"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Embedding cache management commands",
	Long:  `Commands for managing the local PostgreSQL embedding cache.`,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

// openCache connects to the Postgres embedding cache. Both return
// values are nil when DATABASE_URL is unset, which disables caching.
func openCache(cfg *config.Config) (*postgres.EmbeddingRepository, *postgres.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, nil, nil
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return postgres.NewEmbeddingRepository(pool), pool, nil
}

// requireCache is openCache for the cache subcommands, where a missing
// DATABASE_URL is an error rather than a fallback.
func requireCache(cfg *config.Config) (*postgres.EmbeddingRepository, *postgres.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return openCache(cfg)
}
