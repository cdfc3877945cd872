package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"
)

// Reporter formats and outputs evaluation results.
type Reporter struct {
	writer io.Writer
}

// NewReporter creates a new reporter that writes to the given writer.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{writer: w}
}

// PrintSummary prints a human-readable summary of a run.
func (r *Reporter) PrintSummary(result *EvalResult) {
	w := r.writer

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║              Link Prediction Evaluation Results                ║")
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "🆔 Run:      %s\n", result.RunID)
	fmt.Fprintf(w, "🌱 Seed:     %d\n", result.Seed)
	fmt.Fprintf(w, "📐 Geometry: %s (directed=%t)\n", result.Metric, result.Directed)
	fmt.Fprintf(w, "📅 Time:     %s\n", result.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "⏱️  Duration: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "📊 Embedding: %d nodes × %d dims\n", result.Nodes, result.Dimensions)
	fmt.Fprintf(w, "🔗 Test pairs: %d edges, %d non-edges\n", result.Edges, result.NonEdges)
	if result.OffManifold > 0 {
		fmt.Fprintf(w, "⚠️  %d rows off the manifold (clamped)\n", result.OffManifold)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "┌─────────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                         Metrics                                 │")
	fmt.Fprintln(w, "├─────────────────────────────────────────────────────────────────┤")

	// Mean rank is unbounded; show it against the worst possible rank.
	worst := float64(result.NonEdges + 1)
	rankScore := 0.0
	if worst > 1 {
		rankScore = (worst - result.Metrics.MeanRank) / (worst - 1)
	}
	fmt.Fprintf(w, "│   %-14s %s %.3f (of %d)\n", "Mean Rank", r.progressBar(rankScore, 20),
		result.Metrics.MeanRank, result.NonEdges+1)
	r.printMetricRow(w, "AP", result.Metrics.AveragePrecision)
	r.printMetricRow(w, "ROC-AUC", result.Metrics.ROCAUC)

	fmt.Fprintln(w, "└─────────────────────────────────────────────────────────────────┘")
	if result.ResultsPath != "" {
		fmt.Fprintf(w, "💾 Saved to %s\n", result.ResultsPath)
	}
	fmt.Fprintln(w)
}

// printMetricRow prints a single metric in [0, 1] with a bar.
func (r *Reporter) printMetricRow(w io.Writer, name string, value float64) {
	fmt.Fprintf(w, "│   %-14s %s %.3f\n", name, r.progressBar(value, 20), value)
}

// progressBar creates a visual progress bar.
func (r *Reporter) progressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 || math.IsNaN(value) {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s]", bar)
}

// PrintJSON outputs results as JSON.
func (r *Reporter) PrintJSON(result *EvalResult) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// SaveJSON saves results to a JSON file.
func (r *Reporter) SaveJSON(result *EvalResult, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// PrintCompact prints the one-line metric summary.
func (r *Reporter) PrintCompact(result *EvalResult) {
	fmt.Fprintf(r.writer, "MEAN RANK = %v AP = %v AUROC = %v\n",
		result.Metrics.MeanRank,
		result.Metrics.AveragePrecision,
		result.Metrics.ROCAUC,
	)
}

// Print writes result in the named format: summary, compact or json.
func (r *Reporter) Print(result *EvalResult, format string) error {
	switch strings.ToLower(format) {
	case "", "compact":
		r.PrintCompact(result)
	case "summary":
		r.PrintSummary(result)
	case "json":
		return r.PrintJSON(result)
	default:
		return fmt.Errorf("unknown report format %q (want summary, compact or json)", format)
	}
	return nil
}
