// Package dataset downloads and extracts the face image archives and
// scans the extracted directory tree for identities.
package dataset

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/schollz/progressbar/v3"
)

// Fetcher downloads dataset archives and extracts them to local disk.
type Fetcher struct {
	cfg    *config.DatasetConfig
	client *http.Client
}

// NewFetcher creates a fetcher for the configured dataset.
func NewFetcher(cfg *config.DatasetConfig) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// FetchAll downloads every configured archive and extracts it.
// Downloads run concurrently, bounded by workers. Already-downloaded
// archives are skipped. There is no retry policy: a failed archive is
// reported and the rest continue.
func (f *Fetcher) FetchAll(ctx context.Context, workers int) error {
	if len(f.cfg.Archives) == 0 {
		return fmt.Errorf("no dataset archives configured")
	}
	if workers < 1 {
		workers = 1
	}

	if err := os.MkdirAll(f.cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("cannot create download directory: %w", err)
	}
	if err := os.MkdirAll(f.cfg.ExtractDir, 0o755); err != nil {
		return fmt.Errorf("cannot create extract directory: %w", err)
	}

	fmt.Printf("Downloading %d archive(s) from %s\n", len(f.cfg.Archives), f.cfg.BaseURL)

	var (
		mu         sync.Mutex
		downloaded []string
		failures   []string
		wg         sync.WaitGroup
		sem        = make(chan struct{}, workers)
	)

	for _, name := range f.cfg.Archives {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			path, err := f.download(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
				return
			}
			downloaded = append(downloaded, path)
		}(name)
	}
	wg.Wait()

	for _, msg := range failures {
		fmt.Printf("Failed: %s\n", msg)
	}
	if len(downloaded) == 0 {
		return fmt.Errorf("no archives were downloaded successfully")
	}

	fmt.Printf("\nExtracting %d archive(s) to %s\n", len(downloaded), f.cfg.ExtractDir)
	for _, path := range downloaded {
		if err := Extract(path, f.cfg.ExtractDir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d archives failed to download", len(failures), len(f.cfg.Archives))
	}
	return nil
}

// download fetches a single archive into the download directory.
// Returns the local path. Existing files are not re-downloaded.
func (f *Fetcher) download(ctx context.Context, name string) (string, error) {
	path := filepath.Join(f.cfg.DownloadDir, name)

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Archive %s already exists, skipping download\n", name)
		return path, nil
	}

	url := strings.TrimSuffix(f.cfg.BaseURL, "/") + "/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	// Download to a temp file first so an interrupted transfer never
	// leaves a half-written archive that would be skipped next run.
	tmp, err := os.CreateTemp(f.cfg.DownloadDir, name+".partial-*")
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bar := progressbar.DefaultBytes(resp.ContentLength, name)
	if _, err := io.Copy(io.MultiWriter(tmp, bar), resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("download interrupted: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("could not move archive into place: %w", err)
	}
	return path, nil
}

// Extract unpacks a zip archive into destDir.
func Extract(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("could not open archive: %w", err)
	}
	defer r.Close()

	for _, file := range r.File {
		if err := extractFile(file, destDir); err != nil {
			return err
		}
	}

	fmt.Printf("Extracted %s (%d files)\n", filepath.Base(archivePath), len(r.File))
	return nil
}

func extractFile(file *zip.File, destDir string) error {
	// Guard against zip-slip.
	dest := filepath.Join(destDir, file.Name) //nolint:gosec // checked below
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry escapes destination: %s", file.Name)
	}

	if file.FileInfo().IsDir() {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", dest, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", dest, err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("could not open archive entry %s: %w", file.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil { //nolint:gosec // archives come from the configured dataset mirror
		return fmt.Errorf("could not write %s: %w", dest, err)
	}
	return nil
}
