package experiment

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/jsvoboda/facebench/internal/dataset"
)

// SplitOptions controls how the template/probe split is built.
type SplitOptions struct {
	Identities         int   // how many identities to sample
	TemplatesPerPerson int   // reference images per identity
	ProbesPerPerson    int   // query images per identity
	Seed               int64 // shuffle seed, fixed for reproducible splits
}

// Maker partitions an extracted dataset into template and probe sets.
type Maker struct {
	extractDir string
	excluded   []string
}

// NewMaker creates a maker for the extracted dataset directory.
// Participants listed as withdrawn in the dataset readme are excluded.
func NewMaker(extractDir string) (*Maker, error) {
	excluded, err := dataset.ExcludedParticipants(filepath.Join(extractDir, "readme.txt"))
	if err != nil {
		return nil, err
	}
	return &Maker{extractDir: extractDir, excluded: excluded}, nil
}

// Excluded returns the withdrawn participant labels.
func (m *Maker) Excluded() []string {
	return m.excluded
}

// CreateSets samples identities from the dataset and splits each
// identity's images into a template group and a probe group. The two
// groups are disjoint and every probe identity is also enrolled as a
// template (closed-world). An identity with fewer images than the
// requested split is an error.
func (m *Maker) CreateSets(opts SplitOptions) (templates, probes SetDB, err error) {
	if opts.TemplatesPerPerson < 1 {
		return nil, nil, fmt.Errorf("at least one template image per identity is required")
	}
	if opts.ProbesPerPerson < 1 {
		return nil, nil, fmt.Errorf("at least one probe image per identity is required")
	}

	identities, err := dataset.ScanIdentities(m.extractDir, m.excluded)
	if err != nil {
		return nil, nil, err
	}
	if len(identities) == 0 {
		return nil, nil, fmt.Errorf("no identities found in %s", m.extractDir)
	}

	count := opts.Identities
	if count <= 0 || count > len(identities) {
		if count > len(identities) {
			fmt.Printf("Warning: only %d identities available, requested %d\n", len(identities), count)
		}
		count = len(identities)
	}

	rng := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec // reproducible experiment sampling, not crypto

	// Sample identities, then shuffle each identity's images and cut
	// the template group off the front and the probe group after it.
	sampled := make([]dataset.Identity, len(identities))
	copy(sampled, identities)
	rng.Shuffle(len(sampled), func(i, j int) {
		sampled[i], sampled[j] = sampled[j], sampled[i]
	})
	sampled = sampled[:count]

	need := opts.TemplatesPerPerson + opts.ProbesPerPerson
	templates = make(SetDB, count)
	probes = make(SetDB, count)

	for _, identity := range sampled {
		if len(identity.Images) < need {
			return nil, nil, fmt.Errorf("identity %q has only %d images, need at least %d",
				identity.Label, len(identity.Images), need)
		}

		images := make([]string, len(identity.Images))
		copy(images, identity.Images)
		rng.Shuffle(len(images), func(i, j int) {
			images[i], images[j] = images[j], images[i]
		})

		templates[identity.Label] = images[:opts.TemplatesPerPerson]
		probes[identity.Label] = images[opts.TemplatesPerPerson:need]
	}

	return templates, probes, nil
}
