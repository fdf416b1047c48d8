package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wisbric/launchpad/internal/app"
	"github.com/wisbric/launchpad/pkg/job"
)

func jobCommands() []*cobra.Command {
	var (
		status       string
		deploymentID int64
		limit        int
	)
	listCmd := &cobra.Command{
		Use:   "list-jobs",
		Short: "List reconcile jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				items, err := job.NewStore(s.DB).List(ctx, status, deploymentID, limit)
				if err != nil {
					return err
				}
				return printYAML(items)
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by job status")
	listCmd.Flags().Int64Var(&deploymentID, "deployment-id", 0, "filter by deployment")
	listCmd.Flags().IntVar(&limit, "limit", 100, "maximum rows returned")

	var lease int
	sweepCmd := &cobra.Command{
		Use:   "requeue-stale-jobs",
		Short: "Return running jobs with expired worker leases to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				n, err := job.NewStore(s.DB).RequeueStale(ctx, minutes(lease))
				if err != nil {
					return err
				}
				s.Logger.Info("requeued stale jobs", "count", n)
				return nil
			})
		},
	}
	sweepCmd.Flags().IntVar(&lease, "lease-minutes", 15, "lease age before a running job counts as stale")

	var dedupeDeploymentID int64
	dedupeCmd := &cobra.Command{
		Use:   "dedupe-jobs",
		Short: "Remove duplicate open jobs for a deployment, keeping the earliest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				n, err := job.NewStore(s.DB).DedupeOpen(ctx, dedupeDeploymentID)
				if err != nil {
					return err
				}
				s.Logger.Info("removed duplicate open jobs", "count", n)
				return nil
			})
		},
	}
	dedupeCmd.Flags().Int64Var(&dedupeDeploymentID, "deployment-id", 0, "deployment to repair")
	_ = dedupeCmd.MarkFlagRequired("deployment-id")

	return []*cobra.Command{listCmd, sweepCmd, dedupeCmd}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
