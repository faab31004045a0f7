package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/sawpanic/nicheradar/internal/interfaces/http"
	"github.com/sawpanic/nicheradar/internal/interfaces/http/handlers"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var (
		port    int
		host    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over HTTP",
		Long: `Start the HTTP API:
  GET /api/trends?topic=<topic>   report JSON (topic defaults to Next.js)
  GET /health                     metrics snapshot, breaker, rate limit, budget, cache and history store status
  GET /metrics                    Prometheus metrics

Measured reports are cached unless --no-cache is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.HTTP.Host = host
			}

			a, err := newApp(cmd.Context(), cfg, !noCache)
			if err != nil {
				return err
			}
			defer a.Close()

			h := handlers.NewHandlers(a.analyzer, a.metrics, a.db.Health(), cfg.HTTP.DefaultTopic).
				WithGuards(a.limiter, a.quota).
				WithCache(a.cache)
			server, err := httpapi.NewServer(cfg.HTTP, h, a.metrics)
			if err != nil {
				return err
			}
			return serveUntilDone(cmd.Context(), server)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides http.port and HTTP_PORT)")
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides http.host)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the measured report cache")
	return cmd
}

func serveUntilDone(ctx context.Context, server *httpapi.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		return err
	}
	return <-errCh
}
