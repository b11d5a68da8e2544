package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(a *app) *cobra.Command {
	var grace time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove photos that no item references",
		Long: `Deletes stored photos with no catalog item, left behind when a save was
interrupted after the photo was moved, and abandoned temporary captures.
Photos newer than the grace period are kept so a save still in progress is
never disturbed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("grace") {
				grace = a.cfg.Sweep.Grace
			}
			if grace < 0 {
				return fmt.Errorf("grace must not be negative, got %s", grace)
			}

			service, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if dryRun {
				orphans, err := service.Orphans(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to find orphans: %w", err)
				}
				for _, f := range orphans {
					fmt.Fprintf(out, "%s\t%s\n", f.ModTime.Format(time.RFC3339), f.Path)
				}
				fmt.Fprintf(out, "%d orphaned photos\n", len(orphans))
				return nil
			}

			result, err := service.Sweep(cmd.Context(), grace)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Fprintf(out, "Removed %d orphaned photos and %d temporary captures (%d kept inside the grace period)\n",
				result.Orphans, result.TempCapture, result.Skipped)
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", time.Hour, "Keep photos modified more recently than this (default from SWEEP_GRACE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List orphaned photos without deleting anything")

	return cmd
}
