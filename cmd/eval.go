package cmd

import (
	"fmt"

	"github.com/lehigh-university-libraries/lifeindex/internal/evaluation"
	"github.com/spf13/cobra"
)

func newEvalCmd(a *app) *cobra.Command {
	var limit int
	var category string
	var concurrency int
	var outputDir string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure how well the assist model describes cataloged items",
		Long: `Sends the stored photo of each cataloged item back to the configured
vision model and compares its proposal with the title, category and tags
that were confirmed when the item was saved.

Titles are scored by Levenshtein similarity, categories by exact match and
tags by set overlap. A YAML report is written to the output directory.`,
		Example: `  # Evaluate the 20 newest items with the default provider
  lifeindex eval --limit 20

  # Compare another model on clothes only
  ASSIST_PROVIDER=openai ASSIST_MODEL=gpt-4o lifeindex eval --category clothes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Assist.Provider == "none" {
				return fmt.Errorf("eval needs an assist provider; set ASSIST_PROVIDER")
			}

			ctx := cmd.Context()
			cat, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer cat.Close()

			assistant, err := a.newAssistant()
			if err != nil {
				return err
			}

			items, err := cat.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list items: %w", err)
			}

			a.logger.Info("Starting evaluation run", "provider", a.cfg.Assist.Provider, "model", a.cfg.Assist.Model, "items", len(items))
			report, err := evaluation.Run(ctx, assistant, items, evaluation.Options{
				Provider:    a.cfg.Assist.Provider,
				Model:       a.cfg.Assist.Model,
				Limit:       limit,
				Category:    category,
				Concurrency: concurrency,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}

			report.PrintSummary(cmd.OutOrStdout())
			path, err := evaluation.SaveYAML(report, outputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nEvaluation results saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Evaluate at most this many items (0 for all)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only evaluate items in this category")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of concurrent model calls")
	cmd.Flags().StringVar(&outputDir, "output", "evals", "Directory for the YAML report")

	return cmd
}
