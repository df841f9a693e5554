package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// isImageFile checks if a file has a supported image extension.
func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	supported := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
	}
	return supported[ext]
}

// Identity is a person in the dataset: a label plus their images.
type Identity struct {
	Label  string
	Images []string // absolute or root-relative image paths, sorted
}

// ScanIdentities lists identity directories under root. Each direct
// subdirectory is one identity; its image files become the identity's
// images. Labels in excluded are skipped.
func ScanIdentities(root string, excluded []string) ([]Identity, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cannot read dataset directory %s: %w", root, err)
	}

	skip := make(map[string]bool, len(excluded))
	for _, label := range excluded {
		skip[label] = true
	}

	var identities []Identity
	for _, entry := range entries {
		if !entry.IsDir() || skip[entry.Name()] {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read identity directory %s: %w", dir, err)
		}

		var images []string
		for _, f := range files {
			if !f.IsDir() && isImageFile(f.Name()) {
				images = append(images, filepath.Join(dir, f.Name()))
			}
		}
		if len(images) == 0 {
			continue
		}
		sort.Strings(images)

		identities = append(identities, Identity{Label: entry.Name(), Images: images})
	}

	sort.Slice(identities, func(i, j int) bool {
		return identities[i].Label < identities[j].Label
	})
	return identities, nil
}

// ExcludedParticipants parses the dataset readme for participants who
// withdrew consent. Lines mentioning "withdraw" name the participant
// as "#<id> ...".
func ExcludedParticipants(readmePath string) ([]string, error) {
	f, err := os.Open(readmePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot open readme %s: %w", readmePath, err)
	}
	defer f.Close()

	var excluded []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(strings.ToLower(line), "withdraw") {
			continue
		}
		parts := strings.Split(line, "#")
		if len(parts) < 2 {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) > 0 {
			excluded = append(excluded, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read readme: %w", err)
	}
	return excluded, nil
}
