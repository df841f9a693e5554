package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/embedding"
	"github.com/jsvoboda/facebench/internal/experiment"
	"github.com/jsvoboda/facebench/internal/metric"
	"github.com/jsvoboda/facebench/internal/subjects"
)

// fakeEmbedder returns canned vectors. Paths not in the map get the
// query vector, which covers the temp file the handler stages uploads
// into.
type fakeEmbedder struct {
	vectors map[string][]float32
	query   []float32
}

func (f *fakeEmbedder) Represent(_ context.Context, imagePath string) (*embedding.Result, error) {
	vec, ok := f.vectors[imagePath]
	if !ok {
		vec = f.query
	}
	return &embedding.Result{Embedding: vec, Model: "test-model", Dim: len(vec)}, nil
}

func (f *fakeEmbedder) Model() string {
	return "test-model"
}

func enrolledGallery(t *testing.T, query []float32) *experiment.Gallery {
	t.Helper()

	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"alice1.jpg": {1, 0, 0},
			"bob1.jpg":   {0, 1, 0},
		},
		query: query,
	}

	gallery := experiment.NewGallery(embedder, metric.Cosine, nil)
	templates := experiment.SetDB{
		"alice": {"alice1.jpg"},
		"bob":   {"bob1.jpg"},
	}
	if err := gallery.Enroll(context.Background(), templates, false); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	return gallery
}

func uploadRequest(t *testing.T, field string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, "probe.jpg")
	if err != nil {
		t.Fatalf("create form file failed: %v", err)
	}
	if _, err := part.Write([]byte("not a real jpeg, the embedder is fake")); err != nil {
		t.Fatalf("write part failed: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identify", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected JSON content type, got %q", got)
	}
}

func TestIdentify_Accepted(t *testing.T) {
	gallery := enrolledGallery(t, []float32{1, 0, 0})
	names, err := subjects.Load("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("load names failed: %v", err)
	}

	threshold := 0.4
	handler := NewIdentifyHandler(gallery, names, &threshold)

	rec := httptest.NewRecorder()
	handler.Identify(rec, uploadRequest(t, "file"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp identifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}

	if !resp.Accepted {
		t.Error("expected match to be accepted")
	}
	if resp.SubjectID != "alice" {
		t.Errorf("expected subject 'alice', got %q", resp.SubjectID)
	}
	if resp.Confidence == nil {
		t.Fatal("expected confidence for cosine metric")
	}
	if *resp.Confidence < 0.99 {
		t.Errorf("expected confidence near 1, got %f", *resp.Confidence)
	}
}

func TestIdentify_Rejected(t *testing.T) {
	// Query equidistant-ish from both subjects, beyond the threshold.
	gallery := enrolledGallery(t, []float32{0, 0, 1})
	names, err := subjects.Load("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("load names failed: %v", err)
	}

	threshold := 0.4
	handler := NewIdentifyHandler(gallery, names, &threshold)

	rec := httptest.NewRecorder()
	handler.Identify(rec, uploadRequest(t, "file"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp identifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}

	if resp.Accepted {
		t.Error("expected match to be rejected")
	}
	if resp.SubjectID != "" {
		t.Errorf("expected empty subject on rejection, got %q", resp.SubjectID)
	}
}

func TestIdentify_MissingFile(t *testing.T) {
	gallery := enrolledGallery(t, []float32{1, 0, 0})
	names, _ := subjects.Load("does-not-exist.yaml")
	handler := NewIdentifyHandler(gallery, names, nil)

	rec := httptest.NewRecorder()
	handler.Identify(rec, uploadRequest(t, "wrong-field"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing file upload") {
		t.Errorf("unexpected error body: %s", rec.Body.String())
	}
}

func TestConfig_Get(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "VGG-Face")

	gallery := enrolledGallery(t, []float32{1, 0, 0})
	cfg := config.Load()

	threshold := 0.4
	handler := NewConfigHandler(cfg, gallery, &threshold)

	rec := httptest.NewRecorder()
	handler.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp configResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}

	if resp.Metric != "cosine" {
		t.Errorf("expected metric 'cosine', got %q", resp.Metric)
	}
	if resp.EmbeddingDim != 4096 {
		t.Errorf("expected VGG-Face embedding dim 4096, got %d", resp.EmbeddingDim)
	}
	if resp.TemplateCount != 2 {
		t.Errorf("expected 2 templates, got %d", resp.TemplateCount)
	}
	if len(resp.EnrolledSubjects) != 2 || resp.EnrolledSubjects[0] != "alice" {
		t.Errorf("unexpected enrolled subjects: %v", resp.EnrolledSubjects)
	}
	if len(resp.SupportedModels) == 0 {
		t.Error("expected at least one supported model")
	}
}
