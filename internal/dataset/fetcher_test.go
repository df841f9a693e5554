package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsvoboda/facebench/internal/config"
)

// buildZip creates a zip archive with the given entries on disk.
func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create failed: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close failed: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip failed: %v", err)
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "set1.zip")
	buildZip(t, archive, map[string]string{
		"1/TD_RGB_E_1.jpg": "image-one",
		"2/TD_RGB_E_1.jpg": "image-two",
	})

	dest := filepath.Join(dir, "extracted")
	if err := Extract(archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "1", "TD_RGB_E_1.jpg"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(data) != "image-one" {
		t.Errorf("unexpected file content: %q", data)
	}
}

func TestExtract_ZipSlip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	buildZip(t, archive, map[string]string{
		"../escape.txt": "nope",
	})

	if err := Extract(archive, filepath.Join(dir, "extracted")); err == nil {
		t.Error("expected error for entry escaping destination")
	}
}

func TestFetchAll(t *testing.T) {
	archive := new(bytes.Buffer)
	w := zip.NewWriter(archive)
	f, _ := w.Create("7/TD_RGB_E_1.jpg")
	f.Write([]byte("img"))
	w.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/TD_RGB_E_Set1.zip" {
			http.NotFound(w, r)
			return
		}
		w.Write(archive.Bytes())
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := &config.DatasetConfig{
		BaseURL:     server.URL,
		Archives:    []string{"TD_RGB_E_Set1.zip"},
		DownloadDir: filepath.Join(dir, "downloaded"),
		ExtractDir:  filepath.Join(dir, "extracted"),
	}

	fetcher := NewFetcher(cfg)
	if err := fetcher.FetchAll(context.Background(), 2); err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.DownloadDir, "TD_RGB_E_Set1.zip")); err != nil {
		t.Errorf("downloaded archive missing: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.ExtractDir, "7", "TD_RGB_E_1.jpg")); err != nil {
		t.Errorf("extracted image missing: %v", err)
	}
}

func TestFetchAll_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	dir := t.TempDir()
	cfg := &config.DatasetConfig{
		BaseURL:     server.URL,
		Archives:    []string{"missing.zip"},
		DownloadDir: filepath.Join(dir, "downloaded"),
		ExtractDir:  filepath.Join(dir, "extracted"),
	}

	if err := NewFetcher(cfg).FetchAll(context.Background(), 1); err == nil {
		t.Error("expected error when no archive downloads succeed")
	}
}

func TestFetchAll_SkipsExisting(t *testing.T) {
	dir := t.TempDir()
	downloadDir := filepath.Join(dir, "downloaded")
	archivePath := filepath.Join(downloadDir, "set.zip")
	buildZip(t, archivePath, map[string]string{"9/a.jpg": "img"})

	// Server that fails every request: the fetcher must not hit it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected download request for existing archive")
		http.NotFound(w, r)
	}))
	defer server.Close()

	cfg := &config.DatasetConfig{
		BaseURL:     server.URL,
		Archives:    []string{"set.zip"},
		DownloadDir: downloadDir,
		ExtractDir:  filepath.Join(dir, "extracted"),
	}

	if err := NewFetcher(cfg).FetchAll(context.Background(), 1); err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
}
