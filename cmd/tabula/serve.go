package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/tabula/server"
	"github.com/tailored-agentic-units/tabula/source"
	"github.com/tailored-agentic-units/tabula/tabula"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve datasets and queries over HTTP",
		Long: `Start the HTTP server. Datasets listed in the config are loaded before
the server starts accepting requests. SIGINT or SIGTERM shuts it down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			t, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			if err := t.Preload(ctx); err != nil && !errors.Is(err, tabula.ErrNoDatasets) {
				slog.Warn("preload failed", "error", err)
			}

			cfg := a.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}

			opts := []server.Option{server.WithObserver(t.Observer())}
			if lister, ok := t.Source().(source.Lister); ok {
				opts = append(opts, server.WithLister(lister))
			}
			srv := server.New(t.Store(), cfg, opts...)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down server")
			if err := srv.Shutdown(context.Background()); err != nil {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}
