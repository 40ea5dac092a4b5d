package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/internal/metrics"
	"github.com/cgast/tracegen/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the context store, matrix builder and exporter over HTTP.

Endpoints:
  GET  /health
  POST /api/contexts                 GET /api/contexts
  GET  /api/contexts/{id}
  POST /api/contexts/{id}/updates    POST /api/contexts/{id}/feedback
  POST /api/matrix                   POST /api/export
  GET  /api/formats                  GET /api/events[/stream]
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(cmd, opts, func(a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Addr
				}
				m := metrics.New()
				m.TrackDrops(a.bus)
				go m.Watch(ctx, a.bus)

				srv := server.New(server.Config{
					Store:          a.store,
					Exporter:       a.exporter,
					Bus:            a.bus,
					Metrics:        m,
					Logger:         a.log,
					AllowedOrigins: a.cfg.Server.AllowedOrigins,
				})
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}
