package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/batch"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/model"
)

func newBatchCommand(a *app.App) *cobra.Command {
	var configPath string
	var pipelineConfigPath string
	var dryRun bool
	var deleteAll bool
	var background bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Expand a batch config into sibling project directories and drive each one",
		RunE: func(cmd *cobra.Command, args []string) error {
			rootDir := filepath.Dir(configPath)
			if deleteAll {
				return classify(batch.Delete(rootDir))
			}

			entries, pcPath, err := loadBatchEntries(configPath, pipelineConfigPath)
			if err != nil {
				return classify(err)
			}
			if len(entries) == 0 {
				return classify(errkind.Configf("cli.batch", configPath, "batch config produced zero subdirectories"))
			}

			fmt.Fprintf(a.Out(), "batch: expanded %d subdirector%s from %s\n", len(entries), pluralIes(len(entries)), configPath)
			if dryRun {
				for _, e := range entries {
					fmt.Fprintf(a.Out(), "  %s\n", e.DirName)
				}
				return nil
			}

			ctx := cmd.Context()
			if err := batch.Materialize(ctx, rootDir, entries); err != nil {
				return classify(err)
			}
			for _, e := range entries {
				subConfigPath := filepath.Join(rootDir, e.DirName, filepath.Base(pcPath))
				if err := runPipelineOnce(ctx, a, subConfigPath, false, background, false); err != nil {
					return classify(err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "batch_config.json", "path to the batch config file (mapping-style or tabular, by extension)")
	cmd.Flags().StringVar(&pipelineConfigPath, "pipeline-config", "", "pipeline config whose file name is driven in each generated subdirectory (tabular input only; default: config_pipeline.json next to --config)")
	cmd.Flags().BoolVar(&dryRun, "dry", false, "list the subdirectories that would be generated without writing anything")
	cmd.Flags().BoolVar(&deleteAll, "delete", false, "delete every subdirectory named in the batch index and the index itself")
	cmd.Flags().BoolVar(&background, "monitor-background", false, "drive each generated subdirectory's pipeline with a detached background monitor")
	return cmd
}

// loadBatchEntries dispatches on file extension: a .csv file is the
// tabular input, the Batch Expander's "equivalent table" alternative to
// the mapping-style "sets" config every other extension decodes as.
func loadBatchEntries(configPath, pipelineConfigPathFlag string) ([]batch.Entry, string, error) {
	if strings.EqualFold(filepath.Ext(configPath), ".csv") {
		entries, err := batch.ParseTable(configPath)
		if err != nil {
			return nil, "", err
		}
		pcPath := pipelineConfigPathFlag
		if pcPath == "" {
			pcPath = filepath.Join(filepath.Dir(configPath), defaultPipelineConfigName)
		}
		return entries, pcPath, nil
	}

	v, err := config.Load(configPath)
	if err != nil {
		return nil, "", errkind.Configf("cli.batch", configPath, "%w", err)
	}
	bc, err := model.ParseBatchConfig(v)
	if err != nil {
		return nil, "", err
	}
	entries, err := batch.Expand(bc)
	if err != nil {
		return nil, "", err
	}
	pcPath := bc.PipelineConfigPath
	if pcPath == "" {
		pcPath = filepath.Join(filepath.Dir(configPath), defaultPipelineConfigName)
	}
	return entries, pcPath, nil
}

func pluralIes(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
