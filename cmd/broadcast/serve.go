package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			h := api.NewHandler(a.broadcaster, a.audit).WithAllowedOrigins(c.cfg.Server.AllowedOrigins...)
			metricsHandler := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})

			srv := &http.Server{
				Addr:              c.cfg.Server.Address,
				Handler:           loggingMiddleware(api.Router(h, metricsHandler)),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				slog.Info("http server starting", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				slog.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := a.broadcaster.Shutdown(shutdownCtx); err != nil {
					slog.Warn("broadcast did not stop in time", "err", err)
				}
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}
