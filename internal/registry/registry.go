// Package registry implements the entry-point registration structure:
// rather than introspecting a user function's Python signature to discover
// split keys and injected parameters, every entry point self-registers an
// explicit *EntryPoint descriptor into a process-wide Registry, mirroring a
// self-registering module idiom
// (internal/registry/registry.go, modules/print/module.go).
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/nrel-gaps/ridge/internal/config"
)

// SplitKeyGroup is one axis of enumeration a Step Dispatcher walks: either
// a single product key, or several keys that must advance together in
// lock-step (a zipped tuple).
type SplitKeyGroup struct {
	// Keys holds one key name for a product axis, or more than one for a
	// zipped group that must share length.
	Keys []string
	// Zipped is true when len(Keys) > 1 and the keys advance together.
	Zipped bool
}

// PreprocessContext carries the platform-supplied parameters a
// pre-processor may ask for via EntryPoint.InjectedParams: current job name, log directory, verbosity.
type PreprocessContext struct {
	JobName      string
	LogDirectory string
	Verbose      bool
}

// RunContext carries the resolved, per-task inputs handed to an entry
// point's Run function when it executes on a cluster node.
type RunContext struct {
	Context      context.Context
	Config       *config.Value
	Tag          string
	JobName      string
	LogDirectory string
	OutDir       string
	OutFpath     string
	Verbose      bool
}

// EntryPoint describes one registered, runnable command: its declared
// split keys, the platform parameters it wants injected, and its
// pre-processing and execution hooks. This is the Go analogue of a gaps
// CLI command built from `CLICommandFromFunction`, made explicit instead
// of introspected.
type EntryPoint struct {
	// Name is the registered command name (matches a PipelineStep.Command
	// or, absent a command override, a PipelineStep.Alias).
	Name string
	// SplitKeys lists the config keys this entry point treats as split
	// axes, in declared order.
	SplitKeys []SplitKeyGroup
	// InjectedParams names platform parameters this entry point's
	// pre-processor or runner wants: "job_name", "log_directory",
	// "verbose", "tag", "out_dir", "out_fpath".
	InjectedParams []string
	// Preprocessor optionally mutates the step config before dispatch. A
	// returned error aborts dispatch before any submission.
	Preprocessor func(ctx PreprocessContext, cfg *config.Value) error
	// Run is the user compute function invoked on a cluster node (or in
	// a local child process for the local backend). The returned string is the
	// output file path, if any, recorded by status.Store.TrackRun as
	// the task's out_file on success; it is ignored on error.
	Run func(ctx RunContext) (string, error)
}

// HasSplitKey reports whether key appears in any of ep's declared split
// key groups.
func (ep *EntryPoint) HasSplitKey(key string) bool {
	for _, g := range ep.SplitKeys {
		for _, k := range g.Keys {
			if k == key {
				return true
			}
		}
	}
	return false
}

// WantsParam reports whether ep declared interest in an injected
// parameter, e.g. "tag".
func (ep *EntryPoint) WantsParam(name string) bool {
	for _, p := range ep.InjectedParams {
		if p == name {
			return true
		}
	}
	return false
}

// Module is implemented by packages that self-register one or more entry
// points, mirroring the registry.Module interface.
type Module interface {
	Register(r *Registry)
}

// Registry is the process-wide map from command name to *EntryPoint.
type Registry struct {
	entryPoints map[string]*EntryPoint
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entryPoints: map[string]*EntryPoint{}}
}

// Register adds ep under ep.Name, returning an error if the name is
// already registered (a programming error in the entry-point package, not
// a user input error).
func (r *Registry) Register(ep *EntryPoint) error {
	if ep.Name == "" {
		return fmt.Errorf("registry: entry point has no Name")
	}
	if _, exists := r.entryPoints[ep.Name]; exists {
		return fmt.Errorf("registry: entry point %q already registered", ep.Name)
	}
	r.entryPoints[ep.Name] = ep
	return nil
}

// Lookup returns the entry point registered under name, if any.
func (r *Registry) Lookup(name string) (*EntryPoint, bool) {
	ep, ok := r.entryPoints[name]
	return ep, ok
}

// Names returns all registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entryPoints))
	for name := range r.entryPoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadModules calls Register on each Module against r. Module.Register
// has no error result, so a duplicate registration is handled (or
// ignored) by the Module itself; LoadModules does not report or panic on it.
func (r *Registry) LoadModules(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}
