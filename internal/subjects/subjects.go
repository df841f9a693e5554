// Package subjects maps identity labels to human display names.
// The dataset uses numeric participant labels; an optional names.yaml
// in the experiment directory assigns readable names to them.
package subjects

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Names maps identity labels to display names.
type Names struct {
	byLabel map[string]string
}

// namesFile is the YAML shape of names.yaml.
type namesFile struct {
	Names map[string]string `yaml:"names"`
}

// Load reads a names.yaml file. A missing file yields an empty mapping,
// not an error, since naming subjects is optional.
func Load(path string) (*Names, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Names{byLabel: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("cannot read names file %s: %w", path, err)
	}

	var file namesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse names file %s: %w", path, err)
	}
	if file.Names == nil {
		file.Names = map[string]string{}
	}

	return &Names{byLabel: file.Names}, nil
}

// DisplayName returns the display name for a label, falling back to the
// label itself.
func (n *Names) DisplayName(label string) string {
	if name, ok := n.byLabel[label]; ok {
		return name
	}
	return label
}

// FindLabel resolves a user-supplied name or label to an identity
// label. Matching is insensitive to case, diacritics, and dashes, so
// "jiri" finds a subject named "Jiří". Returns false when nothing
// matches.
func (n *Names) FindLabel(query string) (string, bool) {
	normalized := NormalizeName(query)

	for label, name := range n.byLabel {
		if label == query || NormalizeName(name) == normalized {
			return label, true
		}
	}
	return "", false
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName normalizes a name for comparison (lowercase, no
// diacritics, spaces for dashes).
func NormalizeName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
