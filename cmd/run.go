package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/embedding"
	"github.com/jsvoboda/facebench/internal/experiment"
	"github.com/jsvoboda/facebench/internal/metric"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the identification experiment",
	Long: `Evaluate every probe image against the enrolled template gallery and
aggregate accuracy, precision, rejection rate and the confusion counts.

The template and probe sets come from the experiment directory (see
"facebench split"). Results are written as a CSV of per-probe rows plus
a YAML metrics summary into a per-run directory under the results dir.

Examples:
  # Run with the configured model and default threshold
  facebench run

  # Euclidean distance with an explicit threshold
  facebench run --metric euclidean_l2 --threshold 0.9

  # Accept every match (no threshold)
  facebench run --no-threshold`,
	RunE: runExperiment,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("metric", "cosine", "Distance metric: cosine, euclidean or euclidean_l2")
	runCmd.Flags().Float64("threshold", 0, "Acceptance threshold (defaults to the model's known threshold)")
	runCmd.Flags().Bool("no-threshold", false, "Accept every match regardless of distance")
}

// resolveThreshold picks the acceptance threshold: an explicit flag
// wins, otherwise the model's default for the metric. Returns nil when
// every match should be accepted.
func resolveThreshold(cmd *cobra.Command, cfg *config.Config, metricName string) *float64 {
	if mustGetBool(cmd, "no-threshold") {
		return nil
	}
	if cmd.Flags().Changed("threshold") {
		t := mustGetFloat64(cmd, "threshold")
		return &t
	}
	if t, ok := cfg.DefaultThreshold(cfg.Embedding.Model, metricName); ok {
		return &t
	}
	fmt.Printf("Warning: no default threshold for %s/%s, accepting every match\n",
		cfg.Embedding.Model, metricName)
	return nil
}

// buildGallery loads the template set and enrolls it into a gallery
// using the configured embedding service, consulting the Postgres
// embedding cache when DATABASE_URL is set. The returned closer
// releases the cache connection and is safe to call always.
func buildGallery(ctx context.Context, cfg *config.Config, metricName string, showProgress bool) (*experiment.Gallery, func(), error) {
	m, err := metric.Parse(metricName)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.KnownModel(cfg.Embedding.Model) {
		fmt.Printf("Warning: unknown model %q, supported models: %v\n",
			cfg.Embedding.Model, cfg.ModelNames())
	}

	templates, err := experiment.LoadSet(filepath.Join(cfg.Experiment.Dir, "templatedb.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template set (run \"facebench split\" first): %w", err)
	}

	repo, pool, err := openCache(cfg)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if pool != nil {
			pool.Close()
		}
	}

	var cache experiment.EmbeddingCache
	if repo != nil {
		cache = repo
		fmt.Println("Using PostgreSQL embedding cache")
	}

	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model)
	gallery := experiment.NewGallery(client, m, cache)

	fmt.Printf("Enrolling %d templates for %d identities (model %s)\n",
		templates.ImageCount(), len(templates.Subjects()), cfg.Embedding.Model)
	if err := gallery.Enroll(ctx, templates, showProgress); err != nil {
		closer()
		return nil, nil, fmt.Errorf("enrollment failed: %w", err)
	}

	return gallery, closer, nil
}

func runExperiment(cmd *cobra.Command, args []string) error {
	metricName := mustGetString(cmd, "metric")

	ctx := context.Background()
	cfg := config.Load()

	probes, err := experiment.LoadSet(filepath.Join(cfg.Experiment.Dir, "probes.json"))
	if err != nil {
		return fmt.Errorf("failed to load probe set (run \"facebench split\" first): %w", err)
	}

	gallery, closeCache, err := buildGallery(ctx, cfg, metricName, true)
	if err != nil {
		return err
	}
	defer closeCache()

	threshold := resolveThreshold(cmd, cfg, metricName)

	runner := experiment.NewRunner(gallery, cfg.Experiment.ResultsDir)
	report, err := runner.Run(ctx, probes, threshold)
	if err != nil {
		return fmt.Errorf("experiment failed: %w", err)
	}

	dir, err := runner.Write(report)
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	report.PrintSummary()
	fmt.Printf("\nResults written to %s\n", dir)
	return nil
}
