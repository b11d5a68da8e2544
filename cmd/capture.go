package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/lifeindex/internal/capture"
	"github.com/lehigh-university-libraries/lifeindex/internal/images"
	"github.com/lehigh-university-libraries/lifeindex/internal/storage"
	"github.com/spf13/cobra"
)

func newCaptureCmd(a *app) *cobra.Command {
	var title string
	var category string
	var tags []string
	var yes bool

	cmd := &cobra.Command{
		Use:   "capture <image-or-url>",
		Short: "Catalog a photographed object",
		Long: `Copies the photo into the store, asks the configured vision model for a
title, category and tags, and lets you confirm or edit them before saving.

Without --yes an interactive prompt accepts:
  title <text>      replace the title
  category <name>   set the category
  tag <text>        add a tag
  untag <text>      remove a tag
  save              save the item
  cancel            discard the capture`,
		Example: `  # Capture interactively
  lifeindex capture ~/Pictures/drill.jpg

  # Accept the proposal with one extra tag
  lifeindex capture shirt.jpg --tag summer --yes

  # Capture a photo from the web
  lifeindex capture https://example.com/lamp.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			service, closeFn, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			var session *storage.Session
			if images.IsURL(args[0]) {
				data, ext, fetchErr := images.NewFetcher(a.cfg.Server.MaxUploadSize).Fetch(ctx, args[0])
				if fetchErr != nil {
					return fetchErr
				}
				session, err = service.StartCapture(ctx, bytes.NewReader(data), ext)
			} else {
				session, err = service.StartCaptureFromFile(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to start capture: %w", err)
			}
			workflow := session.Workflow
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Analyzing photo...")
			snap, err := waitForConfirming(ctx, workflow)
			if err != nil {
				workflow.Reset()
				return err
			}
			if snap.AssistErr != "" {
				fmt.Fprintf(out, "No suggestion available (%s)\n", snap.AssistErr)
			}

			if cmd.Flags().Changed("title") {
				workflow.EditTitle(title)
			}
			if cmd.Flags().Changed("category") {
				workflow.EditCategory(category)
			}
			for _, tag := range tags {
				workflow.AddTag(tag)
			}
			printDraft(out, workflow.Snapshot())

			if yes {
				id, err := workflow.Commit(ctx)
				if err != nil {
					return fmt.Errorf("failed to save item: %w", err)
				}
				fmt.Fprintf(out, "Saved item #%d\n", id)
				return nil
			}
			return confirmLoop(ctx, cmd.InOrStdin(), out, workflow)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title to use instead of the proposal")
	cmd.Flags().StringVar(&category, "category", "", "Category to use instead of the proposal")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag to add (repeatable)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Save without prompting")

	return cmd
}

// waitForConfirming blocks until the analysis step has settled.
func waitForConfirming(ctx context.Context, workflow *capture.Workflow) (capture.Snapshot, error) {
	ready := make(chan capture.Snapshot, 1)
	sub := workflow.Subscribe(func(s capture.Snapshot) {
		if s.State == capture.Confirming {
			select {
			case ready <- s:
			default:
			}
		}
	})
	defer sub.Close()

	select {
	case snap := <-ready:
		return snap, nil
	case <-ctx.Done():
		return capture.Snapshot{}, ctx.Err()
	}
}

func confirmLoop(ctx context.Context, in io.Reader, out io.Writer, workflow *capture.Workflow) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		command, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(command) {
		case "":
		case "title":
			workflow.EditTitle(arg)
			printDraft(out, workflow.Snapshot())
		case "category":
			workflow.EditCategory(arg)
			printDraft(out, workflow.Snapshot())
		case "tag":
			workflow.AddTag(arg)
			printDraft(out, workflow.Snapshot())
		case "untag":
			workflow.RemoveTag(arg)
			printDraft(out, workflow.Snapshot())
		case "save":
			id, err := workflow.Commit(ctx)
			var failed *capture.CommitFailedError
			switch {
			case errors.As(err, &failed):
				fmt.Fprintf(out, "Save failed: %v\nType save to retry or cancel to discard.\n", failed)
			case err != nil:
				return fmt.Errorf("failed to save item: %w", err)
			default:
				fmt.Fprintf(out, "Saved item #%d\n", id)
				return nil
			}
		case "cancel":
			workflow.Reset()
			fmt.Fprintln(out, "Capture discarded")
			return nil
		default:
			fmt.Fprintln(out, "Commands: title, category, tag, untag, save, cancel")
		}
		fmt.Fprint(out, "> ")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	// input closed without a decision
	workflow.Reset()
	fmt.Fprintln(out, "\nCapture discarded")
	return nil
}

func printDraft(out io.Writer, snap capture.Snapshot) {
	d := snap.Draft
	fmt.Fprintf(out, "  Title:      %s\n", d.Title)
	fmt.Fprintf(out, "  Category:   %s\n", d.Category)
	fmt.Fprintf(out, "  Tags:       %s\n", strings.Join(d.Tags, ", "))
	fmt.Fprintf(out, "  Confidence: %.2f\n", d.Confidence)
}
