package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/cataloging"
	"github.com/lehigh-university-libraries/lifeindex/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	var sessionTTL time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the lifeindex JSON API on the specified port.

Upload a photo to POST /api/captures, edit the proposed draft with
PUT /api/captures/{id} and save it with POST /api/captures/{id}/commit.
Items are listed and edited under /api/items and photos are served from
/images/{name}.`,
		Example: `  # Start server on the configured port (default 8888)
  lifeindex serve

  # Start server on custom port
  lifeindex serve --port 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}

			service, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			mux := http.NewServeMux()
			handlers.New(service, a.cfg.Server.MaxUploadSize).Routes(mux)

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			janitorCtx, stopJanitor := context.WithCancel(cmd.Context())
			defer stopJanitor()
			go runJanitor(janitorCtx, service, sessionTTL, a.cfg.Sweep.Grace)

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Lifeindex API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on (default from SERVER_PORT)")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", time.Hour, "Discard capture sessions left open longer than this")

	return cmd
}

// runJanitor periodically drops stale capture sessions and sweeps orphaned
// photos until ctx is done.
func runJanitor(ctx context.Context, service *cataloging.Service, sessionTTL, grace time.Duration) {
	interval := max(min(sessionTTL, grace)/2, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := service.Sessions().Expire(time.Now().Add(-sessionTTL)); n > 0 {
				slog.Info("Expired capture sessions", "count", n)
			}
			result, err := service.Sweep(ctx, grace)
			if err != nil {
				slog.Error("Sweep failed", "err", err)
				continue
			}
			if result.Orphans > 0 || result.TempCapture > 0 {
				slog.Info("Swept photos", "orphans", result.Orphans, "temp_captures", result.TempCapture)
			}
		}
	}
}
