package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wisbric/launchpad/internal/app"
	"github.com/wisbric/launchpad/pkg/user"
)

func parseID(arg, name string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, &invalidArgError{name: name, value: arg}
	}
	return id, nil
}

type invalidArgError struct {
	name  string
	value string
}

func (e *invalidArgError) Error() string {
	return e.name + " must be an integer, got " + strconv.Quote(e.value)
}

func userCommands() []*cobra.Command {
	var isAdmin bool
	createCmd := &cobra.Command{
		Use:   "create-user EMAIL",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				u, err := user.NewService(s.DB, s.Logger).Create(ctx, user.CreateRequest{
					Email:   args[0],
					IsAdmin: isAdmin,
				})
				if err != nil {
					return err
				}
				return printYAML(u)
			})
		},
	}
	createCmd.Flags().BoolVar(&isAdmin, "admin", false, "grant the user admin rights")

	getCmd := &cobra.Command{
		Use:   "get-user USER_ID",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "USER_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				u, err := user.NewService(s.DB, s.Logger).Get(ctx, id)
				if err != nil {
					return err
				}
				return printYAML(u)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list-users",
		Short: "List active users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				items, err := user.NewService(s.DB, s.Logger).List(ctx)
				if err != nil {
					return err
				}
				return printYAML(items)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete-user USER_ID",
		Short: "Soft-delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "USER_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				return user.NewService(s.DB, s.Logger).Delete(ctx, id)
			})
		},
	}

	return []*cobra.Command{createCmd, getCmd, listCmd, deleteCmd}
}
