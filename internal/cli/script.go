package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/backend"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/model"
)

// newScriptCommand previews the submission artifact a step's backend
// would hand to the scheduler, without submitting it.
func newScriptCommand(a *app.App) *cobra.Command {
	var configPath string
	var step string
	var command string
	var tag string

	cmd := &cobra.Command{
		Use:   "script",
		Short: "Print the submission script a step would generate, without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			stepConfig, err := config.LoadResolved(configPath)
			if err != nil {
				return classify(errkind.Configf("cli.script", configPath, "%w", err))
			}
			ec, err := model.ParseExecutionControl(stepConfig)
			if err != nil {
				return classify(err)
			}
			be, err := backend.ByName(ec.Option)
			if err != nil {
				return classify(errkind.Configf("cli.script", configPath, "%w", err))
			}
			if step == "" {
				step = filepath.Base(configPath)
			}
			if command == "" {
				command = step
			}

			cmdLine := fmt.Sprintf("%s %s -c %s --step %s", a.Program(), command, configPath, step)
			if tag != "" {
				cmdLine += " --tag " + tag
			}

			spec := backend.SubmitSpec{
				JobName:    step + tag,
				Command:    cmdLine,
				WorkDir:    filepath.Dir(configPath),
				StdoutPath: filepath.Dir(configPath),
				Resources: backend.Resources{
					Allocation:  ec.Allocation,
					WalltimeHrs: ec.WalltimeHrs,
					QOS:         ec.QOS,
					MemoryGB:    ec.MemoryGB,
					Feature:     ec.Feature,
					CondaEnv:    ec.CondaEnv,
					Module:      ec.Module,
					ShScript:    ec.ShScript,
					Queue:       ec.Queue,
				},
			}
			out, err := be.Script(spec)
			if err != nil {
				return classify(err)
			}
			fmt.Fprint(a.Out(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the step config file to preview")
	cmd.Flags().StringVar(&step, "step", "", "pipeline step alias (default: config file base name)")
	cmd.Flags().StringVar(&command, "command", "", "registered entry point command name (default: --step)")
	cmd.Flags().StringVar(&tag, "tag", "", "task tag to embed in the preview")
	cmd.MarkFlagRequired("config")
	return cmd
}
