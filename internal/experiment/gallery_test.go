package experiment

import (
	"context"
	"fmt"
	"testing"

	"github.com/jsvoboda/facebench/internal/embedding"
	"github.com/jsvoboda/facebench/internal/metric"
)

// fakeEmbedder returns a fixed vector per image path.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) Represent(_ context.Context, imagePath string) (*embedding.Result, error) {
	f.calls++
	vec, ok := f.vectors[imagePath]
	if !ok {
		return nil, fmt.Errorf("no face detected in %s", imagePath)
	}
	return &embedding.Result{Embedding: vec, Model: "test-model", Dim: len(vec)}, nil
}

func (f *fakeEmbedder) Model() string {
	return "test-model"
}

// memoryCache is an in-memory EmbeddingCache for tests.
type memoryCache struct {
	entries map[string][]float32
	saves   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]float32)}
}

func (c *memoryCache) Get(_ context.Context, imagePath, model string) ([]float32, error) {
	return c.entries[model+"|"+imagePath], nil
}

func (c *memoryCache) Save(_ context.Context, imagePath, model string, vec []float32) error {
	c.saves++
	c.entries[model+"|"+imagePath] = vec
	return nil
}

// testVectors builds well-separated unit vectors for two identities
// with one template and one probe each.
func testVectors() map[string][]float32 {
	return map[string][]float32{
		"t/alice.jpg": {1, 0, 0, 0},
		"p/alice.jpg": {0.99, 0.1, 0, 0},
		"t/bob.jpg":   {0, 1, 0, 0},
		"p/bob.jpg":   {0.1, 0.99, 0, 0},
	}
}

func testTemplates() SetDB {
	return SetDB{
		"alice": {"t/alice.jpg"},
		"bob":   {"t/bob.jpg"},
	}
}

func TestGallery_EnrollAndIdentify(t *testing.T) {
	embedder := &fakeEmbedder{vectors: testVectors()}
	gallery := NewGallery(embedder, metric.Cosine, nil)

	if err := gallery.Enroll(context.Background(), testTemplates(), false); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	if gallery.Size() != 2 {
		t.Errorf("expected 2 enrolled templates, got %d", gallery.Size())
	}

	match, err := gallery.Identify(context.Background(), "p/alice.jpg", nil)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}

	if match.SubjectID != "alice" {
		t.Errorf("expected match 'alice', got %q", match.SubjectID)
	}
	if !match.Accepted {
		t.Error("nil threshold must accept every match")
	}
	if match.TemplatePath != "t/alice.jpg" {
		t.Errorf("unexpected template path %q", match.TemplatePath)
	}
}

func TestGallery_IdentifyThreshold(t *testing.T) {
	embedder := &fakeEmbedder{vectors: testVectors()}
	gallery := NewGallery(embedder, metric.Cosine, nil)

	if err := gallery.Enroll(context.Background(), testTemplates(), false); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	// Tight threshold rejects and clears the subject.
	tight := 1e-6
	match, err := gallery.Identify(context.Background(), "p/bob.jpg", &tight)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if match.Accepted {
		t.Error("expected rejection under tight threshold")
	}
	if match.SubjectID != "" {
		t.Errorf("rejected match must have empty subject, got %q", match.SubjectID)
	}

	// Loose threshold accepts the same probe.
	loose := 0.5
	match, err = gallery.Identify(context.Background(), "p/bob.jpg", &loose)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if !match.Accepted || match.SubjectID != "bob" {
		t.Errorf("expected accepted match 'bob', got %+v", match)
	}
}

// Raising the threshold can only turn rejections into acceptances,
// never the other way around.
func TestGallery_ThresholdMonotonic(t *testing.T) {
	embedder := &fakeEmbedder{vectors: testVectors()}
	gallery := NewGallery(embedder, metric.Cosine, nil)

	if err := gallery.Enroll(context.Background(), testTemplates(), false); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	thresholds := []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1.0}
	prevAccepted := false
	for _, threshold := range thresholds {
		th := threshold
		match, err := gallery.Identify(context.Background(), "p/alice.jpg", &th)
		if err != nil {
			t.Fatalf("Identify failed at threshold %f: %v", threshold, err)
		}
		if prevAccepted && !match.Accepted {
			t.Errorf("accept flipped to reject when threshold grew to %f", threshold)
		}
		prevAccepted = match.Accepted
	}
	if !prevAccepted {
		t.Error("expected acceptance at the loosest threshold")
	}
}

func TestGallery_Rank(t *testing.T) {
	embedder := &fakeEmbedder{vectors: testVectors()}
	gallery := NewGallery(embedder, metric.Euclidean, nil)

	if err := gallery.Enroll(context.Background(), testTemplates(), false); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	candidates, err := gallery.Rank(context.Background(), "p/alice.jpg", 10)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].SubjectID != "alice" {
		t.Errorf("expected closest candidate 'alice', got %q", candidates[0].SubjectID)
	}
	if candidates[0].Distance > candidates[1].Distance {
		t.Error("candidates not ordered by distance")
	}
}

func TestGallery_EnrollEmpty(t *testing.T) {
	gallery := NewGallery(&fakeEmbedder{}, metric.Cosine, nil)

	if err := gallery.Enroll(context.Background(), SetDB{}, false); err == nil {
		t.Error("expected error for empty template set")
	}
}

func TestGallery_EnrollFailsOnBadTemplate(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	gallery := NewGallery(embedder, metric.Cosine, nil)

	err := gallery.Enroll(context.Background(), SetDB{"x": {"missing.jpg"}}, false)
	if err == nil {
		t.Error("expected error when a template image cannot be embedded")
	}
}

func TestGallery_UsesCache(t *testing.T) {
	cache := newMemoryCache()
	embedder := &fakeEmbedder{vectors: testVectors()}

	first := NewGallery(embedder, metric.Cosine, cache)
	if err := first.Enroll(context.Background(), testTemplates(), false); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	if cache.saves != 2 {
		t.Errorf("expected 2 cache saves, got %d", cache.saves)
	}
	callsAfterFirst := embedder.calls

	// Second gallery with the same cache must not call the embedder
	// for templates again.
	second := NewGallery(embedder, metric.Cosine, cache)
	if err := second.Enroll(context.Background(), testTemplates(), false); err != nil {
		t.Fatalf("second Enroll failed: %v", err)
	}

	if embedder.calls != callsAfterFirst {
		t.Errorf("expected cached enrollment, embedder called %d more times",
			embedder.calls-callsAfterFirst)
	}
}

func TestGallery_Subjects(t *testing.T) {
	embedder := &fakeEmbedder{vectors: testVectors()}
	gallery := NewGallery(embedder, metric.Cosine, nil)

	if err := gallery.Enroll(context.Background(), testTemplates(), false); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	subjects := gallery.Subjects()
	if len(subjects) != 2 || subjects[0] != "alice" || subjects[1] != "bob" {
		t.Errorf("unexpected subjects: %v", subjects)
	}
}
