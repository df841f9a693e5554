package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/coder/hnsw"
	"github.com/jsvoboda/facebench/internal/embedding"
	"github.com/jsvoboda/facebench/internal/metric"
	"github.com/schollz/progressbar/v3"
)

// HNSW index parameters for the template graph.
const (
	hnswMaxNeighbors = 16
	// Candidates pulled from the index before exact re-ranking with the
	// configured metric. The graph is built with cosine distance, so the
	// euclidean metrics need a wide candidate pool.
	hnswSearchK = 100
)

// Embedder computes face embeddings for images. Satisfied by
// *embedding.Client.
type Embedder interface {
	Represent(ctx context.Context, imagePath string) (*embedding.Result, error)
	Model() string
}

// EmbeddingCache stores computed embeddings between runs. Satisfied by
// the postgres store. A nil cache disables caching.
type EmbeddingCache interface {
	Get(ctx context.Context, imagePath, model string) ([]float32, error)
	Save(ctx context.Context, imagePath, model string, vec []float32) error
}

// templateEntry is one enrolled template image.
type templateEntry struct {
	id        int64
	subjectID string
	imagePath string
	embedding []float32
}

// Gallery holds the enrolled template embeddings and answers
// identification queries against them.
type Gallery struct {
	embedder Embedder
	metric   metric.Metric
	cache    EmbeddingCache

	entries map[int64]*templateEntry
	graph   *hnsw.Graph[int64]
}

// NewGallery creates an empty gallery. cache may be nil.
func NewGallery(embedder Embedder, m metric.Metric, cache EmbeddingCache) *Gallery {
	return &Gallery{
		embedder: embedder,
		metric:   m,
		cache:    cache,
		entries:  make(map[int64]*templateEntry),
	}
}

// Metric returns the configured distance metric.
func (g *Gallery) Metric() metric.Metric {
	return g.metric
}

// Size returns the number of enrolled template images.
func (g *Gallery) Size() int {
	return len(g.entries)
}

// Subjects returns the enrolled identity labels in sorted order.
func (g *Gallery) Subjects() []string {
	seen := make(map[string]bool)
	for _, entry := range g.entries {
		seen[entry.subjectID] = true
	}
	subjects := make([]string, 0, len(seen))
	for subject := range seen {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// Enroll computes an embedding for every template image and indexes it.
// With showProgress a progress bar tracks the embedding calls, which
// dominate enrollment time.
func (g *Gallery) Enroll(ctx context.Context, templates SetDB, showProgress bool) error {
	total := templates.ImageCount()
	if total == 0 {
		return errors.New("template set is empty")
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Enrolling templates"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	graph := hnsw.NewGraph[int64]()
	graph.M = hnswMaxNeighbors
	graph.Ml = 1.0 / float64(hnswMaxNeighbors)
	graph.Distance = hnsw.CosineDistance

	var nextID int64
	for _, subject := range templates.Subjects() {
		for _, imagePath := range templates[subject] {
			vec, err := g.embed(ctx, imagePath)
			if err != nil {
				return fmt.Errorf("failed to enroll template %s for identity %q: %w", imagePath, subject, err)
			}

			entry := &templateEntry{
				id:        nextID,
				subjectID: subject,
				imagePath: imagePath,
				embedding: vec,
			}
			g.entries[entry.id] = entry
			graph.Add(hnsw.MakeNode(entry.id, vec))
			nextID++

			if bar != nil {
				bar.Add(1)
			}
		}
	}
	if bar != nil {
		fmt.Println()
	}

	g.graph = graph
	return nil
}

// embed returns the embedding for an image, consulting the cache first.
func (g *Gallery) embed(ctx context.Context, imagePath string) ([]float32, error) {
	model := g.embedder.Model()

	if g.cache != nil {
		vec, err := g.cache.Get(ctx, imagePath, model)
		if err != nil {
			return nil, fmt.Errorf("embedding cache lookup failed: %w", err)
		}
		if vec != nil {
			return vec, nil
		}
	}

	result, err := g.embedder.Represent(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Save(ctx, imagePath, model, result.Embedding); err != nil {
			return nil, fmt.Errorf("embedding cache save failed: %w", err)
		}
	}
	return result.Embedding, nil
}

// Rank compares an image against the gallery and returns the closest
// templates ordered by the configured metric, at most limit entries.
func (g *Gallery) Rank(ctx context.Context, imagePath string, limit int) ([]Candidate, error) {
	if g.graph == nil {
		return nil, errors.New("gallery has no enrolled templates")
	}
	if limit < 1 {
		limit = 1
	}

	vec, err := g.embed(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	// The graph is ordered by cosine distance; pull a wide candidate
	// pool and re-rank exactly with the configured metric.
	searchK := max(limit, hnswSearchK)
	searchK = min(searchK, len(g.entries))

	neighbors := g.graph.Search(vec, searchK)

	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		entry, ok := g.entries[n.Key]
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			SubjectID:    entry.subjectID,
			TemplatePath: entry.imagePath,
			Distance:     g.metric.Distance(vec, entry.embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Identify finds the closest template for an image and applies the
// acceptance threshold. A nil threshold accepts every match. The
// subject is cleared on rejection so callers never mistake a rejected
// candidate for an identification.
func (g *Gallery) Identify(ctx context.Context, imagePath string, threshold *float64) (*Match, error) {
	candidates, err := g.Rank(ctx, imagePath, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no match candidates returned")
	}

	best := candidates[0]
	match := &Match{
		TemplatePath: best.TemplatePath,
		Distance:     best.Distance,
		Accepted:     threshold == nil || best.Distance <= *threshold,
	}
	if match.Accepted {
		match.SubjectID = best.SubjectID
	}
	return match, nil
}
