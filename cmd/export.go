package cmd

import (
	"fmt"

	"github.com/lehigh-university-libraries/lifeindex/internal/export"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/query"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var format string
	var category string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the catalog to a Parquet or YAML file",
		Example: `  # Format from the extension
  lifeindex export catalog.parquet

  # Only tools, as YAML
  lifeindex export tools.out --format yaml --category tools`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var f export.Format
			var err error
			if format != "" {
				f, err = export.ParseFormat(format)
			} else {
				f, err = export.FormatFromPath(path)
			}
			if err != nil {
				return err
			}

			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer cat.Close()

			items, err := cat.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list items: %w", err)
			}
			items = query.Apply(items, models.Filter{Category: category})

			if err := export.ToFile(path, f, items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d items to %s\n", len(items), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format (parquet, yaml); inferred from the file extension when empty")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only export items in this category")

	return cmd
}
