package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingRepository caches embeddings by (image content hash, model).
// Hashing the content instead of the path keeps cache hits stable when
// the dataset is re-extracted to a different location.
type EmbeddingRepository struct {
	pool *Pool
}

// NewEmbeddingRepository creates a repository on the given pool.
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// hashFile computes the SHA-256 of a file's contents as a hex string.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open image %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cannot hash image %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves a cached embedding for an image and model.
// Returns nil without error on a cache miss.
func (r *EmbeddingRepository) Get(ctx context.Context, imagePath, model string) ([]float32, error) {
	hash, err := hashFile(imagePath)
	if err != nil {
		return nil, err
	}

	var vec pgvector.Vector
	err = r.pool.QueryRow(ctx,
		"SELECT embedding FROM embeddings WHERE image_hash = $1 AND model = $2",
		hash, model,
	).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	return vec.Slice(), nil
}

// Save stores an embedding, replacing any previous entry for the same
// image and model.
func (r *EmbeddingRepository) Save(ctx context.Context, imagePath, model string, embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("refusing to cache empty embedding")
	}

	hash, err := hashFile(imagePath)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO embeddings (image_hash, model, image_path, embedding, dim)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (image_hash, model)
		DO UPDATE SET image_path = EXCLUDED.image_path, embedding = EXCLUDED.embedding, dim = EXCLUDED.dim
	`, hash, model, imagePath, pgvector.NewVector(embedding), len(embedding))
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// Has checks whether an embedding is cached for the image and model.
func (r *EmbeddingRepository) Has(ctx context.Context, imagePath, model string) (bool, error) {
	hash, err := hashFile(imagePath)
	if err != nil {
		return false, err
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM embeddings WHERE image_hash = $1 AND model = $2)",
		hash, model,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embedding exists: %w", err)
	}
	return exists, nil
}

// Count returns the total number of cached embeddings.
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// CountModel returns the number of cached embeddings for one model.
func (r *EmbeddingRepository) CountModel(ctx context.Context, model string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM embeddings WHERE model = $1", model,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings for model: %w", err)
	}
	return count, nil
}

// ClearModel deletes all cached embeddings for one model and returns
// how many rows were removed.
func (r *EmbeddingRepository) ClearModel(ctx context.Context, model string) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM embeddings WHERE model = $1", model)
	if err != nil {
		return 0, fmt.Errorf("clear embeddings for model: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
