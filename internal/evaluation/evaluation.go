package evaluation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"gopkg.in/yaml.v3"
)

// Analyzer produces a proposal for a stored photo
type Analyzer interface {
	Analyze(ctx context.Context, imagePath string) (models.Proposal, error)
}

// Options controls an evaluation run
type Options struct {
	Provider string
	Model    string
	// Limit caps the number of items evaluated; zero means all.
	Limit int
	// Concurrency bounds the analyses in flight; values below 1 mean 1.
	Concurrency int
	// Category restricts the run to items in one category.
	Category string
	Logger   *slog.Logger
}

// Result is the outcome for a single item
type Result struct {
	ItemID         int64         `yaml:"itemid"`
	ImageLocation  string        `yaml:"imagelocation"`
	Comparison     *Comparison   `yaml:"comparison,omitempty"`
	Confidence     float64       `yaml:"confidence"`
	ProcessingTime time.Duration `yaml:"processingtime"`
	Error          string        `yaml:"error,omitempty"`
}

// FieldStats contains statistics for one compared field
type FieldStats struct {
	ExactMatches   int     `yaml:"exactmatches"`
	PartialMatches int     `yaml:"partialmatches"`
	NoMatches      int     `yaml:"nomatches"`
	MissingFields  int     `yaml:"missingfields"`
	AverageScore   float64 `yaml:"averagescore"`
}

// Summary aggregates every successful result
type Summary struct {
	TotalItems            int           `yaml:"totalitems"`
	SuccessCount          int           `yaml:"successcount"`
	FailureCount          int           `yaml:"failurecount"`
	Title                 FieldStats    `yaml:"title"`
	Category              FieldStats    `yaml:"category"`
	Tags                  FieldStats    `yaml:"tags"`
	OverallScore          float64       `yaml:"overallscore"`
	AverageProcessingTime time.Duration `yaml:"averageprocessingtime"`
}

// Config records how the run was made
type Config struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Category  string `yaml:"category,omitempty"`
	Timestamp string `yaml:"timestamp"`
}

// Report is a complete evaluation run
type Report struct {
	Config  Config   `yaml:"config"`
	Summary Summary  `yaml:"summary"`
	Results []Result `yaml:"results"`
}

// Run re-analyzes the photo of each item and compares the proposal with the
// metadata that was confirmed for it. Failed analyses are recorded in the
// report. Results keep the order of items.
func Run(ctx context.Context, analyzer Analyzer, items []models.Item, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	filter := models.Filter{Category: opts.Category}
	var selected []models.Item
	for _, item := range items {
		if !filter.Matches(item) {
			continue
		}
		selected = append(selected, item)
		if opts.Limit > 0 && len(selected) == opts.Limit {
			break
		}
	}

	report := &Report{
		Config: Config{
			Provider:  opts.Provider,
			Model:     opts.Model,
			Category:  opts.Category,
			Timestamp: time.Now().Format("2006-01-02_15-04-05"),
		},
	}

	concurrency := max(opts.Concurrency, 1)
	semaphore := make(chan struct{}, concurrency)
	results := make([]Result, len(selected))
	var wg sync.WaitGroup

	for i, item := range selected {
		wg.Add(1)
		go func(idx int, item models.Item) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			results[idx] = evaluateItem(ctx, analyzer, item, logger)
			logger.Info("Evaluated item", "progress", fmt.Sprintf("%d/%d", idx+1, len(selected)), "id", item.ID)
		}(i, item)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluation cancelled: %w", err)
	}
	report.Results = results
	report.Summary = Aggregate(report.Results)
	return report, nil
}

func evaluateItem(ctx context.Context, analyzer Analyzer, item models.Item, logger *slog.Logger) Result {
	result := Result{
		ItemID:        item.ID,
		ImageLocation: item.ImageLocation,
	}
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	proposal, err := analyzer.Analyze(ctx, item.ImageLocation)
	result.ProcessingTime = time.Since(start)
	if err != nil {
		logger.Warn("Analysis failed", "id", item.ID, "err", err)
		result.Error = err.Error()
		return result
	}

	comparison := Compare(item, proposal)
	result.Comparison = &comparison
	result.Confidence = proposal.Confidence
	logger.Debug("Item scored", "id", item.ID, "score", comparison.OverallScore)
	return result
}

// Aggregate summarizes results.
func Aggregate(results []Result) Summary {
	s := Summary{TotalItems: len(results)}

	var titleTotal, categoryTotal, tagTotal, overallTotal float64
	var duration time.Duration
	for _, r := range results {
		if r.Error != "" || r.Comparison == nil {
			s.FailureCount++
			continue
		}
		s.SuccessCount++
		duration += r.ProcessingTime

		aggregateFieldStats(&s.Title, r.Comparison.Title)
		aggregateFieldStats(&s.Category, r.Comparison.Category)
		aggregateFieldStats(&s.Tags, r.Comparison.Tags)
		titleTotal += r.Comparison.Title.Score
		categoryTotal += r.Comparison.Category.Score
		tagTotal += r.Comparison.Tags.Score
		overallTotal += r.Comparison.OverallScore
	}

	if s.SuccessCount > 0 {
		n := float64(s.SuccessCount)
		s.Title.AverageScore = titleTotal / n
		s.Category.AverageScore = categoryTotal / n
		s.Tags.AverageScore = tagTotal / n
		s.OverallScore = overallTotal / n
		s.AverageProcessingTime = duration / time.Duration(s.SuccessCount)
	}
	return s
}

func aggregateFieldStats(stats *FieldStats, match FieldMatch) {
	switch match.Method {
	case "exact", "both_missing":
		stats.ExactMatches++
	case "fuzzy_high", "fuzzy_medium", "overlap":
		stats.PartialMatches++
	case "no_match":
		stats.NoMatches++
	case "actual_missing", "expected_missing":
		stats.MissingFields++
	}
}

// SaveYAML writes the report to dir as <model>-<timestamp>.yaml and returns
// the file path.
func SaveYAML(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create evals directory: %w", err)
	}

	model := strings.NewReplacer("/", "_", ":", "_").Replace(report.Config.Model)
	if model == "" {
		model = "eval"
	}
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", model, report.Config.Timestamp))

	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return filename, nil
}

// PrintSummary writes a human-readable summary of the report
func (r *Report) PrintSummary(w io.Writer) {
	s := r.Summary
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "ASSIST EVALUATION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Provider: %s\n", r.Config.Provider)
	fmt.Fprintf(w, "Model: %s\n", r.Config.Model)
	fmt.Fprintf(w, "Items: %d (succeeded %d, failed %d)\n", s.TotalItems, s.SuccessCount, s.FailureCount)
	fmt.Fprintf(w, "Average Processing Time: %s\n", s.AverageProcessingTime)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	printFieldStats(w, "Title", s.Title)
	printFieldStats(w, "Category", s.Category)
	printFieldStats(w, "Tags", s.Tags)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Overall Score: %.2f%% (%.3f)\n", s.OverallScore*100, s.OverallScore)
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func printFieldStats(w io.Writer, name string, stats FieldStats) {
	fmt.Fprintf(w, "%-9s avg %.3f  exact %d  partial %d  none %d  missing %d\n",
		name, stats.AverageScore, stats.ExactMatches, stats.PartialMatches, stats.NoMatches, stats.MissingFields)
}
