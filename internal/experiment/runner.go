package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"
)

// MatchResult is one probe evaluation row.
type MatchResult struct {
	ProbeImage  string
	TrueSubject string
	// BestSubject is the closest template's identity regardless of the
	// threshold decision; Predicted is empty when the match was rejected.
	BestSubject string
	Predicted   string
	Distance    float64
	Accepted    bool
	Err         string
}

// SubjectMetrics aggregates per-identity performance.
type SubjectMetrics struct {
	Accuracy float64 `yaml:"accuracy"`
	Count    int     `yaml:"count"`
}

// Metrics summarizes an experiment run.
type Metrics struct {
	TotalProbes    int     `yaml:"total_probes"`
	Errors         int     `yaml:"errors"`
	Accuracy       float64 `yaml:"accuracy"`        // accepted correct matches / total
	Precision      float64 `yaml:"precision"`       // correct matches / accepted matches
	RejectionRate  float64 `yaml:"rejection_rate"`  // rejected / total
	TruePositives  int     `yaml:"true_positives"`  // correct and accepted
	FalsePositives int     `yaml:"false_positives"` // wrong identity but accepted
	TrueNegatives  int     `yaml:"true_negatives"`  // wrong identity and rejected
	FalseNegatives int     `yaml:"false_negatives"` // correct identity but rejected

	PerSubject   map[string]SubjectMetrics `yaml:"per_subject"`
	BestSubject  string                    `yaml:"best_subject"`
	WorstSubject string                    `yaml:"worst_subject"`
}

// Report is the complete outcome of one experiment run.
type Report struct {
	RunID     string
	Model     string
	Metric    string
	Threshold *float64
	Results   []MatchResult
	Metrics   Metrics
}

// Runner evaluates every probe against the gallery and aggregates
// accuracy metrics.
type Runner struct {
	gallery    *Gallery
	resultsDir string
}

// NewRunner creates a runner writing into resultsDir.
func NewRunner(gallery *Gallery, resultsDir string) *Runner {
	return &Runner{gallery: gallery, resultsDir: resultsDir}
}

// Run identifies every probe image against the enrolled gallery,
// applies the threshold, and aggregates metrics. Probes that fail to
// embed are recorded with their error and counted as rejected rather
// than aborting the run.
func (r *Runner) Run(ctx context.Context, probes SetDB, threshold *float64) (*Report, error) {
	if err := validateProbes(r.gallery, probes); err != nil {
		return nil, err
	}

	total := probes.ImageCount()
	if total == 0 {
		return nil, fmt.Errorf("probe set is empty")
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Evaluating probes"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("probes"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	report := &Report{
		RunID:     uuid.NewString(),
		Model:     r.gallery.embedder.Model(),
		Metric:    r.gallery.Metric().String(),
		Threshold: threshold,
	}

	for _, subject := range probes.Subjects() {
		for _, imagePath := range probes[subject] {
			result := MatchResult{
				ProbeImage:  imagePath,
				TrueSubject: subject,
			}

			candidates, err := r.gallery.Rank(ctx, imagePath, 1)
			switch {
			case err != nil:
				result.Err = err.Error()
			case len(candidates) == 0:
				result.Err = "no match candidates returned"
			default:
				best := candidates[0]
				result.BestSubject = best.SubjectID
				result.Distance = best.Distance
				result.Accepted = threshold == nil || best.Distance <= *threshold
				if result.Accepted {
					result.Predicted = best.SubjectID
				}
			}

			report.Results = append(report.Results, result)
			bar.Add(1)
		}
	}
	fmt.Println()

	report.Metrics = calculateMetrics(report.Results)
	return report, nil
}

// validateProbes enforces the closed-world invariant: every probe
// identity must be enrolled in the gallery.
func validateProbes(gallery *Gallery, probes SetDB) error {
	enrolled := make(map[string]bool)
	for _, subject := range gallery.Subjects() {
		enrolled[subject] = true
	}
	for _, subject := range probes.Subjects() {
		if !enrolled[subject] {
			return fmt.Errorf("probe identity %q is not enrolled in the template gallery", subject)
		}
	}
	return nil
}

func calculateMetrics(results []MatchResult) Metrics {
	m := Metrics{
		TotalProbes: len(results),
		PerSubject:  make(map[string]SubjectMetrics),
	}

	correctBySubject := make(map[string]int)
	countBySubject := make(map[string]int)

	for _, result := range results {
		if result.Err != "" {
			m.Errors++
		}

		correct := result.BestSubject != "" && result.BestSubject == result.TrueSubject
		switch {
		case correct && result.Accepted:
			m.TruePositives++
		case !correct && result.Accepted:
			m.FalsePositives++
		case !correct && !result.Accepted:
			m.TrueNegatives++
		case correct && !result.Accepted:
			m.FalseNegatives++
		}

		countBySubject[result.TrueSubject]++
		if correct && result.Accepted {
			correctBySubject[result.TrueSubject]++
		}
	}

	total := float64(m.TotalProbes)
	accepted := m.TruePositives + m.FalsePositives
	m.Accuracy = float64(m.TruePositives) / total
	if accepted > 0 {
		m.Precision = float64(m.TruePositives) / float64(accepted)
	}
	m.RejectionRate = float64(m.TrueNegatives+m.FalseNegatives) / total

	for subject, count := range countBySubject {
		m.PerSubject[subject] = SubjectMetrics{
			Accuracy: float64(correctBySubject[subject]) / float64(count),
			Count:    count,
		}
	}

	// Deterministic best/worst selection: ties resolve to the smaller label.
	subjects := make([]string, 0, len(m.PerSubject))
	for subject := range m.PerSubject {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	for _, subject := range subjects {
		acc := m.PerSubject[subject].Accuracy
		if m.BestSubject == "" || acc > m.PerSubject[m.BestSubject].Accuracy {
			m.BestSubject = subject
		}
		if m.WorstSubject == "" || acc < m.PerSubject[m.WorstSubject].Accuracy {
			m.WorstSubject = subject
		}
	}

	return m
}

// Write stores the report in resultsDir/<run-id>/ as a CSV of per-probe
// rows plus a YAML metrics summary. Returns the run directory.
func (r *Runner) Write(report *Report) (string, error) {
	runDir := filepath.Join(r.resultsDir, report.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create results directory: %w", err)
	}

	csvPath := filepath.Join(runDir, fmt.Sprintf("results_%s_%s.csv", report.Model, report.Metric))
	if err := writeResultsCSV(csvPath, report); err != nil {
		return "", err
	}

	yamlPath := filepath.Join(runDir, fmt.Sprintf("metrics_%s_%s.yaml", report.Model, report.Metric))
	if err := writeMetricsYAML(yamlPath, report); err != nil {
		return "", err
	}

	return runDir, nil
}

func writeResultsCSV(path string, report *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"run_id", "probe_image", "true_subject", "predicted_subject", "distance", "accepted", "error"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("cannot write CSV header: %w", err)
	}

	for _, result := range report.Results {
		distance := ""
		if result.Err == "" {
			distance = strconv.FormatFloat(result.Distance, 'f', 6, 64)
		}
		row := []string{
			report.RunID,
			result.ProbeImage,
			result.TrueSubject,
			result.Predicted,
			distance,
			strconv.FormatBool(result.Accepted),
			result.Err,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("cannot write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("cannot flush CSV: %w", err)
	}
	return nil
}

// metricsDocument is the on-disk YAML shape of a run summary.
type metricsDocument struct {
	RunID     string   `yaml:"run_id"`
	Model     string   `yaml:"model"`
	Metric    string   `yaml:"metric"`
	Threshold *float64 `yaml:"threshold"`
	Metrics   Metrics  `yaml:"metrics"`
}

func writeMetricsYAML(path string, report *Report) error {
	doc := metricsDocument{
		RunID:     report.RunID,
		Model:     report.Model,
		Metric:    report.Metric,
		Threshold: report.Threshold,
		Metrics:   report.Metrics,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write metrics file: %w", err)
	}
	return nil
}

// PrintSummary prints the experiment results block to stdout.
func (report *Report) PrintSummary() {
	m := report.Metrics
	total := float64(m.TotalProbes)

	fmt.Println("\n===== EXPERIMENT RESULTS =====")
	fmt.Printf("Run ID: %s\n", report.RunID)
	fmt.Printf("Model: %s, metric: %s\n", report.Model, report.Metric)
	if report.Threshold != nil {
		fmt.Printf("Threshold: %.4f\n", *report.Threshold)
	} else {
		fmt.Println("Threshold: none (all matches accepted)")
	}
	fmt.Printf("Total probe images: %d\n", m.TotalProbes)
	if m.Errors > 0 {
		fmt.Printf("Probe errors: %d\n", m.Errors)
	}
	fmt.Printf("Overall accuracy: %.2f%%\n", m.Accuracy*100)
	fmt.Printf("Precision of accepted matches: %.2f%%\n", m.Precision*100)
	fmt.Printf("Match rejection rate: %.2f%%\n", m.RejectionRate*100)

	fmt.Println("\n----- Confusion Matrix -----")
	fmt.Printf("True Positives: %d (%.2f%%)\n", m.TruePositives, float64(m.TruePositives)/total*100)
	fmt.Printf("False Positives: %d (%.2f%%)\n", m.FalsePositives, float64(m.FalsePositives)/total*100)
	fmt.Printf("True Negatives: %d (%.2f%%)\n", m.TrueNegatives, float64(m.TrueNegatives)/total*100)
	fmt.Printf("False Negatives: %d (%.2f%%)\n", m.FalseNegatives, float64(m.FalseNegatives)/total*100)

	if m.BestSubject != "" {
		fmt.Println("\n----- Performance by Identity -----")
		fmt.Printf("Best recognized identity: %s (%.2f%%)\n", m.BestSubject, m.PerSubject[m.BestSubject].Accuracy*100)
		fmt.Printf("Worst recognized identity: %s (%.2f%%)\n", m.WorstSubject, m.PerSubject[m.WorstSubject].Accuracy*100)

		var sum float64
		for _, sm := range m.PerSubject {
			sum += sm.Accuracy
		}
		fmt.Printf("Average per-identity accuracy: %.2f%%\n", sum/float64(len(m.PerSubject))*100)
	}
}
