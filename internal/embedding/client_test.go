package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRepresentBytes(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/represent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		gotModel = r.FormValue("model")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		file.Close()

		json.NewEncoder(w).Encode(representResponse{
			Dim:       3,
			Embedding: []float32{0.1, 0.2, 0.3},
			Model:     "Facenet",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "Facenet")

	result, err := client.RepresentBytes(context.Background(), testJPEG(t, 10, 10))
	if err != nil {
		t.Fatalf("RepresentBytes failed: %v", err)
	}

	if gotModel != "Facenet" {
		t.Errorf("expected model field 'Facenet', got %q", gotModel)
	}

	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-dim embedding, got %d", len(result.Embedding))
	}

	if result.Model != "Facenet" {
		t.Errorf("expected model 'Facenet', got %q", result.Model)
	}
}

func TestRepresentBytes_EmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(representResponse{Model: "VGG-Face"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	_, err := client.RepresentBytes(context.Background(), testJPEG(t, 10, 10))
	if err == nil {
		t.Error("expected error for empty embedding")
	}
}

func TestRepresentBytes_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no face detected", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	_, err := client.RepresentBytes(context.Background(), testJPEG(t, 10, 10))
	if err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient("", "")

	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %q", client.baseURL)
	}

	if client.Model() != defaultModel {
		t.Errorf("expected default model, got %q", client.Model())
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0, 0}, "image/gif"},
		{"short", []byte{0x01}, "application/octet-stream"},
		{"unknown", []byte{1, 2, 3, 4, 5, 6, 7, 8}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.expected {
				t.Errorf("detectMIMEType() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDownscale_SmallImageUntouched(t *testing.T) {
	data := testJPEG(t, 20, 20)

	out, err := Downscale(data, 100)
	if err != nil {
		t.Fatalf("Downscale failed: %v", err)
	}

	if !bytes.Equal(out, data) {
		t.Error("expected small image to pass through unchanged")
	}
}

func TestDownscale_LargeImageResized(t *testing.T) {
	data := testJPEG(t, 300, 100)

	out, err := Downscale(data, 100)
	if err != nil {
		t.Fatalf("Downscale failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}

	if img.Bounds().Dx() != 100 {
		t.Errorf("expected width 100, got %d", img.Bounds().Dx())
	}

	// Aspect ratio preserved: 300x100 -> 100x33.
	if h := img.Bounds().Dy(); h < 30 || h > 36 {
		t.Errorf("expected height around 33, got %d", h)
	}
}

func TestDownscale_InvalidData(t *testing.T) {
	_, err := Downscale([]byte("not an image"), 100)
	if err == nil {
		t.Error("expected error for invalid image data")
	}
}

// testJPEG encodes a blank JPEG image of the given size.
func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}
