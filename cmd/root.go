package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/lifeindex/internal/assist"
	"github.com/lehigh-university-libraries/lifeindex/internal/catalog"
	"github.com/lehigh-university-libraries/lifeindex/internal/cataloging"
	"github.com/lehigh-university-libraries/lifeindex/internal/config"
	"github.com/lehigh-university-libraries/lifeindex/internal/photostore"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	verbose bool
	dataDir string
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "lifeindex",
		Short: "Photograph, describe and find the things you own",
		Long: `Lifeindex is a personal inventory of physical belongings.

Photograph an object, let a vision LLM propose a title, category and tags,
confirm or edit them, and find the item again later by category or text.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if a.dataDir != "" {
				if os.Getenv("LIFEINDEX_DB") == "" {
					cfg.Storage.Database = filepath.Join(a.dataDir, "lifeindex.db")
				}
				cfg.Storage.Root = a.dataDir
			}

			level := cfg.LogLevel()
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(a.logger)
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Storage root (overrides LIFEINDEX_ROOT)")

	// Add subcommands
	cmd.AddCommand(newCaptureCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newShowCmd(a))
	cmd.AddCommand(newEditCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newSweepCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newEvalCmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}

// newAssistant builds the configured assist service. With provider "none"
// the service reports every analysis as unavailable.
func (a *app) newAssistant() (*assist.Service, error) {
	provider, err := assist.NewProvider(a.cfg.Assist.Provider, a.cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create assist provider: %w", err)
	}
	return assist.New(provider, a.cfg.Assist.Model, a.cfg.Assist.Temperature, a.logger), nil
}

// openCatalog opens only the catalog, for commands that never touch photos.
func (a *app) openCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.Database), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	cat, err := catalog.Open(ctx, a.cfg.Storage.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return cat, nil
}

// openService wires the photo store, catalog and assistant together. The
// returned close function discards open sessions and closes the catalog.
func (a *app) openService(ctx context.Context) (*cataloging.Service, func(), error) {
	store, err := photostore.New(a.cfg.Storage.Root, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open photo store: %w", err)
	}
	cat, err := a.openCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	assistant, err := a.newAssistant()
	if err != nil {
		cat.Close()
		return nil, nil, err
	}

	service := cataloging.NewService(store, cat, assistant, a.cfg.Assist.Timeout, a.logger)
	closeFn := func() {
		for _, session := range service.Sessions().GetAll() {
			service.Sessions().Delete(session.ID)
		}
		if err := cat.Close(); err != nil {
			a.logger.Error("Failed to close catalog", "err", err)
		}
	}
	return service, closeFn, nil
}
