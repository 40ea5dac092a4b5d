package main

import (
	"github.com/spf13/cobra"

	"github.com/cgast/tracegen/pkg/protocol"
)

func newRPCCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Serve JSON-RPC 2.0 on stdin/stdout",
		Long: `Read one JSON-RPC 2.0 request per line from stdin and write one
response per line to stdout.

Methods: context.create, context.get, context.build, context.feedback,
context.list, matrix.build, export, formats.list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				h := protocol.NewHandler()
				protocol.RegisterMethods(h, protocol.Services{
					Store:    a.store,
					Exporter: a.exporter,
					Events:   a.bus,
				})
				a.log.Debug("rpc ready", "methods", h.Methods())
				return h.Serve(cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}
