// Package cli builds the cobra command tree the CLI surface names:
// pipeline, batch, status, reset-status, script, template-configs, and
// one generated subcommand per registered entry point. Grounded on
// ignatij-goflow's internal/cli/cli.go for the multi-command cobra shape;
// the flag-based internal/cli/cli.go contributes the
// ExitError{Code, Message} classified-exit pattern, adapted here to map
// from errkind.Kind instead of a flag-parsing failure.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/ctxlog"
	"github.com/nrel-gaps/ridge/internal/errkind"
)

// ExitError is a classified command failure carrying the process exit
// code main.go should use, mirroring the internal/cli.ExitError.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// classify wraps err in an ExitError whose Code reflects err's errkind.Kind,
// or a generic failure code if err is not a classified error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := errkind.KindOf(err)
	if !ok {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	code := 1
	switch kind {
	case errkind.Config:
		code = 2
	case errkind.Submission:
		code = 3
	case errkind.Runtime:
		code = 4
	case errkind.Reconciliation:
		code = 5
	case errkind.Consistency:
		code = 6
	}
	return &ExitError{Code: code, Message: err.Error()}
}

// NewRootCommand assembles the full command tree against a, including one
// dynamically generated subcommand per entry point a.Registry() carries.
func NewRootCommand(a *app.App) *cobra.Command {
	root := &cobra.Command{
		Use:           a.Program(),
		Short:         a.Program() + " drives geospatial HPC pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(ctxlog.WithLogger(context.Background(), a.Logger()))
			return nil
		},
	}

	root.AddCommand(
		newPipelineCommand(a),
		newBatchCommand(a),
		newStatusCommand(a),
		newResetStatusCommand(a),
		newScriptCommand(a),
		newTemplateConfigsCommand(a),
	)
	for _, name := range a.Registry().Names() {
		ep, _ := a.Registry().Lookup(name)
		root.AddCommand(newEntryPointCommand(a, ep))
	}
	return root
}
