package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/registry"
)

// newTemplateConfigsCommand generates a placeholder-filled step config
// template for one or more registered entry points: a list placeholder
// per declared split key and the execution_control block every step
// needs, in a chosen config file format.
func newTemplateConfigsCommand(a *app.App) *cobra.Command {
	var format string
	var outDir string

	cmd := &cobra.Command{
		Use:   "template-configs [entry-point...]",
		Short: "Generate placeholder step config templates for registered entry points",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = a.Registry().Names()
			}
			for _, name := range names {
				ep, ok := a.Registry().Lookup(name)
				if !ok {
					return classify(errkind.Configf("cli.template-configs", name, "no registered entry point named %q", name))
				}
				tmpl := buildTemplate(ep)
				if outDir == "" {
					h, err := config.HandlerFor(format)
					if err != nil {
						return classify(errkind.Configf("cli.template-configs", format, "%w", err))
					}
					out, err := h.Dumps(tmpl)
					if err != nil {
						return classify(err)
					}
					fmt.Fprintf(a.Out(), "# %s.%s\n%s\n", name, format, out)
					continue
				}
				path := filepath.Join(outDir, name+"."+format)
				if err := config.Dump(path, tmpl); err != nil {
					return classify(err)
				}
				fmt.Fprintf(a.Out(), "template-configs: wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "t", "json", "output format: json, yaml, or toml")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write templates to this directory instead of stdout")
	return cmd
}

func buildTemplate(ep *registry.EntryPoint) *config.Value {
	v := config.Map()
	for _, group := range ep.SplitKeys {
		for _, key := range group.Keys {
			if key == "project_points" {
				v.Set(key, config.String(config.PlaceholderRequired))
				continue
			}
			v.Set(key, config.List(config.String(config.PlaceholderRequired)))
		}
	}
	ec := config.Map()
	ec.Set("option", config.String("local"))
	ec.Set("allocation", config.String(config.PlaceholderRequired))
	ec.Set("walltime", config.Number(1))
	ec.Set("nodes", config.Number(1))
	v.Set("execution_control", ec)
	return v
}
