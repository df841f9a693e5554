package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/subjects"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify a single photo against the template set",
	Long: `Match one photo against the enrolled template gallery and print the
ranked candidates plus the accepted identification.

This is the sanity check for a split: run it on a probe image before
launching a full experiment. With --subject the result is also checked
against a claimed identity (name lookups are diacritics-insensitive).

Examples:
  # Identify a photo with the model's default threshold
  facebench identify probe.jpg

  # Stricter threshold, more candidates
  facebench identify probe.jpg --threshold 0.3 --limit 10

  # Verify a claimed identity
  facebench identify probe.jpg --subject jiri`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("metric", "cosine", "Distance metric: cosine, euclidean or euclidean_l2")
	identifyCmd.Flags().Float64("threshold", 0, "Acceptance threshold (defaults to the model's known threshold)")
	identifyCmd.Flags().Bool("no-threshold", false, "Accept every match regardless of distance")
	identifyCmd.Flags().Int("limit", 5, "Number of ranked candidates to print")
	identifyCmd.Flags().String("subject", "", "Claimed identity to verify against (label or name)")
}

// resolveClaimedSubject maps a claimed identity to an enrolled gallery
// label. The names.yaml lookup runs first; a claim equal to an enrolled
// label works even when no names.yaml exists.
func resolveClaimedSubject(names *subjects.Names, enrolled []string, claim string) (string, bool) {
	if label, found := names.FindLabel(claim); found {
		return label, true
	}
	for _, label := range enrolled {
		if label == claim {
			return label, true
		}
	}
	return "", false
}

func runIdentify(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	metricName := mustGetString(cmd, "metric")
	limit := mustGetInt(cmd, "limit")

	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}

	ctx := context.Background()
	cfg := config.Load()

	names, err := subjects.Load(filepath.Join(cfg.Experiment.Dir, "names.yaml"))
	if err != nil {
		return fmt.Errorf("failed to load subject names: %w", err)
	}

	gallery, closeCache, err := buildGallery(ctx, cfg, metricName, true)
	if err != nil {
		return err
	}
	defer closeCache()

	threshold := resolveThreshold(cmd, cfg, metricName)

	candidates, err := gallery.Rank(ctx, imagePath, limit)
	if err != nil {
		return fmt.Errorf("identification failed: %w", err)
	}

	fmt.Printf("\nTop candidates for %s:\n\n", imagePath)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSUBJECT\tNAME\tDISTANCE\tTEMPLATE")
	for i, c := range candidates {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%s\n",
			i+1, c.SubjectID, names.DisplayName(c.SubjectID), c.Distance, filepath.Base(c.TemplatePath))
	}
	w.Flush()

	match, err := gallery.Identify(ctx, imagePath, threshold)
	if err != nil {
		return fmt.Errorf("identification failed: %w", err)
	}

	fmt.Println()
	if match.Accepted {
		fmt.Printf("Identified as %s (%s), distance %.4f\n",
			names.DisplayName(match.SubjectID), match.SubjectID, match.Distance)
	} else {
		fmt.Printf("No match: best distance %.4f exceeds threshold %.4f\n",
			match.Distance, *threshold)
	}

	if claim := mustGetString(cmd, "subject"); claim != "" {
		label, found := resolveClaimedSubject(names, gallery.Subjects(), claim)
		if !found {
			return fmt.Errorf("unknown subject %q", claim)
		}
		if match.Accepted && match.SubjectID == label {
			fmt.Printf("Claimed identity %s (%s) confirmed\n", names.DisplayName(label), label)
		} else {
			fmt.Printf("Claimed identity %s (%s) NOT confirmed\n", names.DisplayName(label), label)
		}
	}

	return nil
}
