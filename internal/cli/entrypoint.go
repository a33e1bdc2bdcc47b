package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/registry"
	"github.com/nrel-gaps/ridge/internal/status"
)

// newEntryPointCommand builds the leaf subcommand a Submission Backend
// invokes on a cluster node for ep. It loads the task config the
// Dispatcher wrote, wraps ep.Run in status.Store.TrackRun so the task's
// own completion is self-reported into the Status Store, and constructs
// the RunContext from the --step/--tag identity and the platform flags
// ep declared interest in.
func newEntryPointCommand(a *app.App, ep *registry.EntryPoint) *cobra.Command {
	var configPath string
	var step string
	var tag string
	var outDir string
	var outFpath string
	var jobName string
	var logDir string
	var verbose bool

	cmd := &cobra.Command{
		Use:   ep.Name,
		Short: fmt.Sprintf("Run the %q entry point for one task", ep.Name),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if step == "" {
				return classify(errkind.Configf("cli."+ep.Name, "", "--step is required"))
			}

			taskConfig, err := config.LoadResolved(configPath)
			if err != nil {
				return classify(errkind.Configf("cli."+ep.Name, configPath, "%w", err))
			}

			projectDir := projectDirOf(configPath)
			store, err := status.Open(ctx, projectDir)
			if err != nil {
				return classify(err)
			}

			if jobName == "" {
				jobName = step
			}

			err = store.TrackRun(ctx, step, tag, func() (string, error) {
				return ep.Run(registry.RunContext{
					Context:      ctx,
					Config:       taskConfig,
					Tag:          tag,
					JobName:      jobName,
					LogDirectory: logDir,
					OutDir:       outDir,
					OutFpath:     outFpath,
					Verbose:      verbose,
				})
			})
			return classify(err)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to this task's config file")
	cmd.Flags().StringVar(&step, "step", "", "pipeline step alias this task belongs to")
	cmd.Flags().StringVar(&tag, "tag", "", "task tag within the step (empty for an unsplit step)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "output directory injected param")
	cmd.Flags().StringVar(&outFpath, "out-fpath", "", "output file path injected param, without extension")
	cmd.Flags().StringVar(&jobName, "job-name", "", "job name injected param (defaults to --step)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "log directory injected param")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose injected param")
	cmd.MarkFlagRequired("config")
	return cmd
}
