package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wisbric/launchpad/internal/app"
)

func newAPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				return app.RunAPI(ctx, s)
			})
		},
	}
}

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the reconcile worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				return app.RunWorker(ctx, s)
			})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				// NewSetup already migrated; reaching here means success.
				s.Logger.Info("database is up to date")
				return nil
			})
		},
	}
}
