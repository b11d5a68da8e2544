package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/lifeindex/internal/cataloging"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/query"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newListCmd(a *app) *cobra.Command {
	var category string
	var search string
	var format string
	var counts bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cataloged items, newest first",
		Example: `  # Everything
  lifeindex list

  # Blue things among the clothes
  lifeindex list --category clothes --query blue

  # Items per category
  lifeindex list --counts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer cat.Close()

			items, err := cat.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list items: %w", err)
			}

			out := cmd.OutOrStdout()
			if counts {
				return writeCategoryCounts(out, query.Categories(items), format)
			}
			filter := models.Filter{Category: category, SearchText: search}
			return writeItems(out, query.Apply(items, filter), format)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only items in this category")
	cmd.Flags().StringVarP(&search, "query", "q", "", "Only items whose title or tags contain this text")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVar(&counts, "counts", false, "Print the number of items per category instead")

	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer cat.Close()

			item, err := cat.GetByID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load item: %w", err)
			}
			if item == nil {
				return fmt.Errorf("item #%d not found", id)
			}
			if format == "table" {
				format = "yaml"
			}
			return writeItems(cmd.OutOrStdout(), []models.Item{*item}, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json, table)")

	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var title string
	var category string
	var tags []string
	var addTags []string
	var removeTags []string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the title, category or tags of an item",
		Example: `  lifeindex edit 12 --title "Cordless Drill" --tag makita
  lifeindex edit 12 --tags power,cordless`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var edit cataloging.ItemEdit
			if cmd.Flags().Changed("title") {
				edit.Title = &title
			}
			if cmd.Flags().Changed("category") {
				edit.Category = &category
			}
			if cmd.Flags().Changed("tags") {
				replaced := models.Tags(tags)
				edit.Tags = &replaced
			}
			edit.AddTags = addTags
			edit.RemoveTags = removeTags

			service, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			item, err := service.UpdateItem(cmd.Context(), id, edit)
			if err != nil {
				return fmt.Errorf("failed to update item: %w", err)
			}
			if item == nil {
				return fmt.Errorf("item #%d not found", id)
			}
			return writeItems(cmd.OutOrStdout(), []models.Item{*item}, "yaml")
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&category, "category", "", "New category")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Replace all tags (comma separated)")
	cmd.Flags().StringArrayVar(&addTags, "tag", nil, "Tag to add (repeatable)")
	cmd.Flags().StringArrayVar(&removeTags, "untag", nil, "Tag to remove (repeatable)")

	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item and its photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			service, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			deleted, err := service.DeleteItem(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to delete item: %w", err)
			}
			if !deleted {
				return fmt.Errorf("item #%d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted item #%d\n", id)
			return nil
		},
	}

	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func writeItems(out io.Writer, items []models.Item, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(items)
	case "yaml":
		return yaml.NewEncoder(out).Encode(items)
	case "table":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tTAGS\tCREATED")
		for _, item := range items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				item.ID, item.Title, item.Category, strings.Join(item.Tags, ", "), item.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q (supported: table, json, yaml)", format)
	}
}

func writeCategoryCounts(out io.Writer, counts []query.CategoryCount, format string) error {
	switch format {
	case "json":
		if counts == nil {
			counts = []query.CategoryCount{}
		}
		return json.NewEncoder(out).Encode(counts)
	case "yaml":
		return yaml.NewEncoder(out).Encode(counts)
	case "table":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tITEMS")
		for _, c := range counts {
			fmt.Fprintf(tw, "%s\t%d\n", c.Category, c.Count)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q (supported: table, json, yaml)", format)
	}
}
