package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/experiment"
	"github.com/spf13/cobra"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split the dataset into template and probe sets",
	Long: `Partition the extracted dataset into a template set (the enrolled
reference images) and a probe set (the query images used for
evaluation).

Every probe identity is also enrolled as a template (closed-world) and
no image appears in both sets. Participants withdrawn in the dataset
readme are excluded. The split is written as templatedb.json and
probes.json into the experiment directory.

Examples:
  # Split all identities, 4 template and 2 probe images each
  facebench split

  # Small experiment with a fixed shuffle seed
  facebench split --identities 20 --seed 7`,
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().Int("identities", 0, "Number of identities to sample (0 = all)")
	splitCmd.Flags().Int("template-images", 4, "Template images per identity")
	splitCmd.Flags().Int("probe-images", 2, "Probe images per identity")
	splitCmd.Flags().Int64("seed", 42, "Shuffle seed for reproducible splits")
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	maker, err := experiment.NewMaker(cfg.Dataset.ExtractDir)
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	if excluded := maker.Excluded(); len(excluded) > 0 {
		fmt.Printf("Excluding withdrawn participants: %s\n", strings.Join(excluded, ", "))
	}

	templates, probes, err := maker.CreateSets(experiment.SplitOptions{
		Identities:         mustGetInt(cmd, "identities"),
		TemplatesPerPerson: mustGetInt(cmd, "template-images"),
		ProbesPerPerson:    mustGetInt(cmd, "probe-images"),
		Seed:               mustGetInt64(cmd, "seed"),
	})
	if err != nil {
		return fmt.Errorf("failed to create split: %w", err)
	}

	if err := experiment.ValidateSplit(templates, probes); err != nil {
		return fmt.Errorf("split validation failed: %w", err)
	}

	templatePath := filepath.Join(cfg.Experiment.Dir, "templatedb.json")
	probePath := filepath.Join(cfg.Experiment.Dir, "probes.json")

	if err := experiment.SaveSet(templatePath, templates); err != nil {
		return fmt.Errorf("failed to write template set: %w", err)
	}
	if err := experiment.SaveSet(probePath, probes); err != nil {
		return fmt.Errorf("failed to write probe set: %w", err)
	}

	fmt.Println("Split complete!")
	fmt.Printf("  Identities:      %d\n", len(templates.Subjects()))
	fmt.Printf("  Template images: %d (%s)\n", templates.ImageCount(), templatePath)
	fmt.Printf("  Probe images:    %d (%s)\n", probes.ImageCount(), probePath)

	return nil
}
