package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/middleware/auth"
	"github.com/preslavrachev/sitebase/provider"
	"github.com/preslavrachev/sitebase/ui"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = c.cfg.Addr
			}
			c.cfg.LogSummary(c.logger)

			p := c.newProvider()
			defer p.Close(context.WithoutCancel(ctx))

			// the API can still switch or reconnect if this fails
			if _, err := p.Adapter(ctx); err != nil {
				c.logger.Warn("initial connection failed", "mode", p.Mode(), "error", err)
			}

			if c.cfg.Features.Realtime {
				unsubscribe := watchChanges(ctx, p, c.logger)
				defer unsubscribe()
			}

			return listenAndServe(ctx, c.newServer(addr, p), c.logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $SITEBASE_ADDR or :8080)")
	return cmd
}

// newServer wires the admin API behind Basic auth
func (c *cli) newServer(addr string, p *provider.Provider) *http.Server {
	authConfig := auth.FromConfig(c.cfg.Auth)
	if !authConfig.Enabled {
		c.logger.Warn("admin API authentication disabled, set SITEBASE_ADMIN_PASS to enable it")
	}

	mux := http.NewServeMux()
	mux.Handle(ui.DefaultBasePath+"/", ui.Handler(p, ui.Options{
		BasePath: ui.DefaultBasePath,
		Auth:     &authConfig,
		Features: c.cfg.Features,
		Logger:   c.logger,
	}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// watchChanges logs row changes on every domain table when the active
// backend supports realtime. Subscriptions belong to the adapter connected
// at startup and end when it is switched away.
func watchChanges(ctx context.Context, p *provider.Provider, logger *slog.Logger) func() {
	adapter, err := p.Adapter(ctx)
	if err != nil || !adapter.Capabilities().Realtime {
		return func() {}
	}

	var unsubscribes []core.Unsubscribe
	for _, table := range core.ExportTables {
		res := adapter.Subscribe(ctx, table, func(ev core.ChangeEvent) {
			logger.Info("row changed", "table", ev.Table, "type", ev.Type, "id", ev.Record[core.PrimaryKey])
		})
		if !res.OK() {
			logger.Warn("failed to subscribe", "table", table, "error", res.Error)
			continue
		}
		unsubscribes = append(unsubscribes, res.Data)
	}

	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}

// listenAndServe runs srv until ctx is cancelled, then shuts it down
func listenAndServe(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
