package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/wisbric/launchpad/internal/app"
	"github.com/wisbric/launchpad/pkg/deployment"
	"github.com/wisbric/launchpad/pkg/provision"
	"github.com/wisbric/launchpad/pkg/reconcile"
)

func deploymentCommands() []*cobra.Command {
	var userValues string
	createCmd := &cobra.Command{
		Use:   "create-deployment USER_ID TEMPLATE_ID DOMAINNAME",
		Short: "Create a deployment and enqueue its reconcile job",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "USER_ID")
			if err != nil {
				return err
			}
			templateID, err := parseID(args[1], "TEMPLATE_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				parsed, err := parseJSONObject("--values", userValues)
				if err != nil {
					return err
				}
				d, err := deployment.NewService(s.DB, s.Logger).Create(ctx, deployment.CreateRequest{
					UserID:            userID,
					DesiredTemplateID: templateID,
					Domainname:        args[2],
					UserValues:        parsed,
				})
				if err != nil {
					return err
				}
				return printYAML(d)
			})
		},
	}
	createCmd.Flags().StringVar(&userValues, "values", "", "user-scoped values as inline JSON")

	listCmd := &cobra.Command{
		Use:   "list-deployments USER_ID",
		Short: "List a user's deployments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "USER_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				items, err := deployment.NewService(s.DB, s.Logger).List(ctx, userID)
				if err != nil {
					return err
				}
				return printYAML(items)
			})
		},
	}

	getCmd := &cobra.Command{
		Use:   "get-deployment USER_ID DEPLOYMENT_ID",
		Short: "Show a deployment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "USER_ID")
			if err != nil {
				return err
			}
			deploymentID, err := parseID(args[1], "DEPLOYMENT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				d, err := deployment.NewService(s.DB, s.Logger).Get(ctx, deploymentID, userID)
				if err != nil {
					return err
				}
				return printYAML(d)
			})
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update-deployment USER_ID DEPLOYMENT_ID TEMPLATE_ID",
		Short: "Upgrade a deployment to a newer template version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "USER_ID")
			if err != nil {
				return err
			}
			deploymentID, err := parseID(args[1], "DEPLOYMENT_ID")
			if err != nil {
				return err
			}
			templateID, err := parseID(args[2], "TEMPLATE_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				d, err := deployment.NewService(s.DB, s.Logger).Update(ctx, deployment.UpdateRequest{
					ID:                deploymentID,
					UserID:            userID,
					DesiredTemplateID: templateID,
				})
				if err != nil {
					return err
				}
				return printYAML(d)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete-deployment USER_ID DEPLOYMENT_ID",
		Short: "Mark a deployment for asynchronous deletion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "USER_ID")
			if err != nil {
				return err
			}
			deploymentID, err := parseID(args[1], "DEPLOYMENT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				d, err := deployment.NewService(s.DB, s.Logger).Delete(ctx, deploymentID, userID)
				if err != nil {
					return err
				}
				return printYAML(d)
			})
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile DEPLOYMENT_ID",
		Short: "Run one reconcile pass for a deployment, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deploymentID, err := parseID(args[0], "DEPLOYMENT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				prov := provision.NewCLIProvisioner(nil)
				rec := reconcile.NewReconciler(s.DB, prov, s.Logger)
				outcome, err := rec.ReconcileDeployment(ctx, deploymentID)
				if err != nil {
					if outcome.LastError != nil {
						return errors.New(*outcome.LastError)
					}
					return err
				}
				return printYAML(outcome)
			})
		},
	}

	return []*cobra.Command{createCmd, listCmd, getCmd, updateCmd, deleteCmd, reconcileCmd}
}
