// Package cli implements the launchpad command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/wisbric/launchpad/internal/app"
	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/config"
)

var errorPrefix = color.New(color.FgRed, color.Bold)

// NewRootCommand builds the launchpad command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "launchpad",
		Short:         "Provision per-user instances of packaged web applications onto Kubernetes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAPICommand(),
		newWorkerCommand(),
		newMigrateCommand(),
	)
	root.AddCommand(userCommands()...)
	root.AddCommand(catalogCommands()...)
	root.AddCommand(deploymentCommands()...)
	root.AddCommand(jobCommands()...)

	return root
}

// Execute runs the command tree, printing any error with an "Error: "
// prefix and mapping domain error kinds to the exit code. fatih/color
// suppresses the color when NO_COLOR is set or stderr is not a terminal.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		errorPrefix.Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err.Error())
		if apperr.IsKind(err, apperr.KindNotFound) {
			return 4
		}
		if apperr.IsKind(err, apperr.KindIntegrity) || apperr.IsKind(err, apperr.KindInProgress) {
			return 3
		}
		return 1
	}
	return 0
}

// withSetup loads config, connects shared infrastructure, runs fn,
// and tears down.
func withSetup(ctx context.Context, fn func(ctx context.Context, s *app.Setup) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s, err := app.NewSetup(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// printYAML renders an entity the way the management commands report
// results.
func printYAML(entity any) error {
	out, err := yaml.Marshal(entity)
	if err != nil {
		return fmt.Errorf("rendering output: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// parseJSONObject validates an optional inline JSON object argument.
func parseJSONObject(name, raw string) (json.RawMessage, error) {
	if raw == "" {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, apperr.Integrityf("%s must be a JSON object: %v", name, err)
	}
	return json.RawMessage(raw), nil
}
