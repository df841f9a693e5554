package config

import (
	_ "embed"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Embedding  EmbeddingConfig
	Dataset    DatasetConfig
	Experiment ExperimentConfig
	Database   DatabaseConfig
	Models     ModelsConfig
}

type EmbeddingConfig struct {
	URL   string // embedding service base URL, defaults to http://localhost:8000
	Model string // recognition model name, defaults to VGG-Face
}

type DatasetConfig struct {
	BaseURL     string   // archive download base URL
	Archives    []string // archive file names appended to BaseURL
	DownloadDir string   // where archives are stored
	ExtractDir  string   // where archives are extracted
}

type ExperimentConfig struct {
	Dir        string // directory holding templatedb.json and probes.json
	ResultsDir string // directory for experiment result files
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL for the embedding cache (optional)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ModelsConfig struct {
	Models map[string]ModelSpec `yaml:"models"`
}

type ModelSpec struct {
	Dim        int                `yaml:"dim"`
	Thresholds map[string]float64 `yaml:"thresholds"`
}

const (
	defaultDatasetBaseURL = "https://tdface.ece.tufts.edu/downloads/TD_RGB_E/"
	defaultModel          = "VGG-Face"
)

var defaultArchives = []string{
	"TD_RGB_E_Set1.zip",
	"TD_RGB_E_Set2.zip",
	"TD_RGB_E_Set3.zip",
	"TD_RGB_E_Set4.zip",
}

// envStr reads an environment variable with a default fallback.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// Embedded file, this should never happen in practice.
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	archives := defaultArchives
	if s := os.Getenv("DATASET_ARCHIVES"); s != "" {
		archives = nil
		for _, a := range strings.Split(s, ",") {
			if a = strings.TrimSpace(a); a != "" {
				archives = append(archives, a)
			}
		}
	}

	return &Config{
		Embedding: EmbeddingConfig{
			URL:   envStr("EMBEDDING_URL", "http://localhost:8000"),
			Model: envStr("EMBEDDING_MODEL", defaultModel),
		},
		Dataset: DatasetConfig{
			BaseURL:     envStr("DATASET_BASE_URL", defaultDatasetBaseURL),
			Archives:    archives,
			DownloadDir: envStr("DATASET_DOWNLOAD_DIR", "data/downloaded"),
			ExtractDir:  envStr("DATASET_EXTRACT_DIR", "data/extracted"),
		},
		Experiment: ExperimentConfig{
			Dir:        envStr("EXPERIMENT_DIR", "data/experiment"),
			ResultsDir: envStr("RESULTS_DIR", "data/experiment/results"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Models: models,
	}
}

// KnownModel reports whether the model name is in the embedded model table.
func (c *Config) KnownModel(name string) bool {
	_, ok := c.Models.Models[name]
	return ok
}

// ModelNames returns the supported model names in sorted order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models.Models))
	for name := range c.Models.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelDim returns the embedding dimension for a model, or 0 if unknown.
func (c *Config) ModelDim(name string) int {
	if spec, ok := c.Models.Models[name]; ok {
		return spec.Dim
	}
	return 0
}

// DefaultThreshold returns the default acceptance threshold for a
// (model, metric) pair. Returns 0 and false if no default is known,
// in which case every match is accepted.
func (c *Config) DefaultThreshold(model, metric string) (float64, bool) {
	spec, ok := c.Models.Models[model]
	if !ok {
		return 0, false
	}
	threshold, ok := spec.Thresholds[metric]
	return threshold, ok
}
