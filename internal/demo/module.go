// Package demo provides a minimal, fully wired entry point (spatially
// split by project_points) used to exercise the Step Dispatcher and
// Pipeline Executor end-to-end, grounded on the self-registration idiom
// of modules/print/module.go: a Module implementing registry.Module,
// registering one *registry.EntryPoint.
package demo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nrel-gaps/ridge/internal/registry"
)

// Module registers the "generate" entry point: a trivial per-site
// compute that writes one line per gid in its assigned range to an
// output file, demonstrating the project_points split key, the tag
// injected param, and the out_fpath convention.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	_ = r.Register(&registry.EntryPoint{
		Name: "generate",
		SplitKeys: []registry.SplitKeyGroup{
			{Keys: []string{"project_points"}},
		},
		InjectedParams: []string{"tag", "out_fpath"},
		Run:            Run,
	})
}

// Run writes one line per site in the task's assigned
// project_points_split_range to RunContext.OutFpath + ".csv", and
// returns that path as its out_file.
func Run(rctx registry.RunContext) (string, error) {
	startVal, ok := rctx.Config.Lookup("project_points_split_range")
	start, end := 0, 0
	if ok {
		items, err := startVal.AsList()
		if err != nil || len(items) != 2 {
			return "", fmt.Errorf("demo.Run: malformed project_points_split_range")
		}
		s, err := items[0].AsInt()
		if err != nil {
			return "", err
		}
		e, err := items[1].AsInt()
		if err != nil {
			return "", err
		}
		start, end = s, e
	}

	outPath := rctx.OutFpath
	if outPath == "" {
		outPath = filepath.Join(rctx.OutDir, rctx.JobName)
	}
	outPath += ".csv"

	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("demo.Run: creating output file: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "gid")
	for gid := start; gid < end; gid++ {
		fmt.Fprintln(f, gid)
	}
	return outPath, nil
}
