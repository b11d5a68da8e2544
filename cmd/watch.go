package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/query"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var category string
	var search string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Browse the catalog with a live filter",
		Long: `Prints the filtered item list and prints it again whenever the filter
changes. Commands are read from standard input:

  category <name>   show one category (All for every category)
  search <text>     match titles and tags containing text
  clear             remove both filters
  quit              stop watching`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer cat.Close()

			out := cmd.OutOrStdout()
			view := query.Open(cat, models.Filter{Category: category, SearchText: search})
			defer view.Dispose()

			sub := view.Subscribe(func(items []models.Item) {
				printWatchFrame(out, view.Filter(), items)
			})
			defer sub.Close()

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					select {
					case lines <- scanner.Text():
					case <-ctx.Done():
						return
					}
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if done := applyWatchCommand(out, view, line); done {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Initial category filter")
	cmd.Flags().StringVarP(&search, "query", "q", "", "Initial search text")

	return cmd
}

// applyWatchCommand runs one input line against view and reports whether
// watching should stop.
func applyWatchCommand(out io.Writer, view *query.View, line string) bool {
	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToLower(command) {
	case "":
	case "category":
		err = view.SetCategory(arg)
	case "search":
		err = view.SetSearchText(arg)
	case "clear":
		err = view.SetFilter(models.Filter{})
	case "quit", "exit":
		return true
	default:
		fmt.Fprintln(out, "Commands: category <name>, search <text>, clear, quit")
	}
	if err != nil {
		fmt.Fprintf(out, "Filter not applied: %v\n", err)
		return true
	}
	return false
}

func printWatchFrame(out io.Writer, filter models.Filter, items []models.Item) {
	category := filter.Category
	if filter.AllCategories() {
		category = models.CategoryAll
	}
	fmt.Fprintf(out, "\n[%s] %q: %d items\n", category, filter.SearchText, len(items))
	if len(items) > 0 {
		_ = writeItems(out, items, "table")
	}
}
