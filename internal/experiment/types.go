// Package experiment builds template/probe splits and runs
// identification experiments against a template gallery.
package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SetDB maps an identity label to its image paths. Both the template
// database and the probe set use this shape, stored as JSON on disk.
type SetDB map[string][]string

// LoadSet reads a set database from a JSON file.
func LoadSet(path string) (SetDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read set database %s: %w", path, err)
	}

	var db SetDB
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("cannot parse set database %s: %w", path, err)
	}
	return db, nil
}

// SaveSet writes a set database as indented JSON, creating parent
// directories as needed.
func SaveSet(path string, db SetDB) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal set database: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write set database %s: %w", path, err)
	}
	return nil
}

// Subjects returns the identity labels in sorted order.
func (db SetDB) Subjects() []string {
	subjects := make([]string, 0, len(db))
	for label := range db {
		subjects = append(subjects, label)
	}
	sort.Strings(subjects)
	return subjects
}

// ImageCount returns the total number of images across all identities.
func (db SetDB) ImageCount() int {
	var n int
	for _, images := range db {
		n += len(images)
	}
	return n
}

// ValidateSplit checks the closed-world invariants between a template
// database and a probe set: every probe identity must exist in the
// template set, and no image may appear in both sets for the same
// identity.
func ValidateSplit(templates, probes SetDB) error {
	for subject, probeImages := range probes {
		templateImages, ok := templates[subject]
		if !ok {
			return fmt.Errorf("probe identity %q is missing from the template set", subject)
		}

		inTemplate := make(map[string]bool, len(templateImages))
		for _, img := range templateImages {
			inTemplate[img] = true
		}
		for _, img := range probeImages {
			if inTemplate[img] {
				return fmt.Errorf("image %s of identity %q appears in both template and probe sets", img, subject)
			}
		}
	}
	return nil
}

// Match is the outcome of identifying one image against the gallery.
type Match struct {
	SubjectID    string  // matched identity, empty when rejected
	TemplatePath string  // best matching template image
	Distance     float64 // distance to the best template
	Accepted     bool    // whether the match passed the threshold
}

// Candidate is a ranked template comparison result.
type Candidate struct {
	SubjectID    string
	TemplatePath string
	Distance     float64
}
