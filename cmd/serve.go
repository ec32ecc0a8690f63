package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API, the cycle worker and the cron schedule",
		Long: `Starts the HTTP API on server.port, a worker that drains cycle requests
one at a time, and the schedule.cron trigger. Stops gracefully on SIGINT or
SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt Runtime) error {
				return rt.Serve(ctx)
			})
		},
	}
}
