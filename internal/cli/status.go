package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/status"
)

func newStatusCommand(a *app.App) *cobra.Command {
	var configPath string
	var steps []string
	var states []string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the aggregated task status for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := loadExecutor(a, configPath)
			if err != nil {
				return classify(err)
			}
			filter := status.Filter{Steps: steps}
			for _, s := range states {
				filter.States = append(filter.States, status.State(s))
			}
			printSnapshot(a, exec.Store.Summarize(filter))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultPipelineConfigName, "path to the pipeline config file")
	cmd.Flags().StringSliceVarP(&steps, "step", "s", nil, "restrict to these step aliases (repeatable)")
	cmd.Flags().StringSliceVar(&states, "state", nil, "restrict to these job states (repeatable)")
	return cmd
}

func printSnapshot(a *app.App, snap status.Snapshot) {
	steps := make([]string, 0, len(snap))
	for step := range snap {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		tags := snap[step]
		tagNames := make([]string, 0, len(tags))
		for tag := range tags {
			tagNames = append(tagNames, tag)
		}
		sort.Strings(tagNames)
		for _, tag := range tagNames {
			e := tags[tag]
			label := tag
			if label == "" {
				label = "-"
			}
			fmt.Fprintf(a.Out(), "%-20s %-20s %-12s job_id=%s hardware=%s out_file=%s\n",
				step, label, e.JobStatus, e.JobID, e.Hardware, e.OutFile)
		}
	}
}
