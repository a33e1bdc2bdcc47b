// Package pipeline implements the Pipeline Executor: a linear
// step state machine driven by the Status Store, with one-shot, monitor,
// and background modes, grounded on gaps/pipeline.py:Pipeline. Recursive
// mode is implemented in internal/cli.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nrel-gaps/ridge/internal/backend"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/ctxlog"
	"github.com/nrel-gaps/ridge/internal/dispatch"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/model"
	"github.com/nrel-gaps/ridge/internal/registry"
	"github.com/nrel-gaps/ridge/internal/status"
)

// StepState is one step's aggregated state across its tasks.
type StepState string

const (
	Pending StepState = "pending"
	Active  StepState = "active"
	Done    StepState = "done"
	Failed  StepState = "failed"
)

// AggregateStepState applies the "Step-state aggregation rule" to
// a set of per-task states: done iff every task is successful; active iff
// any task is submitted/running; failed iff no task is active and at
// least one is failed; pending otherwise (no tasks yet, or tasks that are
// only not-submitted or a mix of not-submitted and successful).
func AggregateStepState(entries []status.Entry) StepState {
	if len(entries) == 0 {
		return Pending
	}
	allSuccessful := true
	anyActive := false
	anyFailed := false
	for _, e := range entries {
		if e.JobStatus != status.Successful {
			allSuccessful = false
		}
		if e.JobStatus.IsProcessing() {
			anyActive = true
		}
		if e.JobStatus == status.Failed {
			anyFailed = true
		}
	}
	switch {
	case allSuccessful:
		return Done
	case anyActive:
		return Active
	case anyFailed:
		return Failed
	default:
		return Pending
	}
}

// Registry is the subset of registry.Registry the Executor needs:
// looking up an entry point by command name.
type Registry interface {
	Lookup(name string) (*registry.EntryPoint, bool)
}

// Executor drives one project directory's pipeline.
type Executor struct {
	ProjectDir string
	Program    string
	Store      *status.Store
	Registry   Registry
	Config     *model.PipelineConfig

	// PollInterval is the sleep between monitor-mode invocation cycles.
	PollInterval time.Duration
}

// backendFor resolves the Submission Backend for a step's
// execution_control.option.
func backendFor(stepConfig *config.Value) (backend.Backend, error) {
	ec, err := model.ParseExecutionControl(stepConfig)
	if err != nil {
		return nil, err
	}
	return backend.ByName(ec.Option)
}

// Result reports the outcome of one invocation cycle.
type Result struct {
	// StepIndex is the first non-done step found, or len(Steps) if the
	// whole pipeline is done.
	StepIndex int
	State     StepState
	Dispatched bool
}

// RunOnce performs exactly one invocation cycle: reconcile, find the
// first non-done step, and act on its state.
func (e *Executor) RunOnce(ctx context.Context) (Result, error) {
	log := ctxlog.FromContext(ctx)

	if err := e.reconcileAll(ctx); err != nil {
		return Result{}, err
	}

	for i, step := range e.Config.Steps {
		entries := e.entriesFor(step.Alias)
		state := AggregateStepState(entries)
		if state == Done {
			continue
		}

		switch state {
		case Pending:
			log.Info("pipeline: dispatching pending step", "step", step.Alias)
			if err := e.dispatchStep(ctx, step, nil); err != nil {
				return Result{}, err
			}
			return Result{StepIndex: i, State: Active, Dispatched: true}, nil
		case Active:
			log.Debug("pipeline: step still active", "step", step.Alias)
			return Result{StepIndex: i, State: Active}, nil
		case Failed:
			log.Info("pipeline: re-dispatching failed tasks", "step", step.Alias)
			failedTags := failedTagsFor(entries, e.Store.Tags(step.Alias))
			if err := e.dispatchStep(ctx, step, failedTags); err != nil {
				return Result{}, err
			}
			return Result{StepIndex: i, State: Active, Dispatched: true}, nil
		}
	}
	return Result{StepIndex: len(e.Config.Steps), State: Done}, nil
}

func (e *Executor) entriesFor(stepAlias string) []status.Entry {
	var entries []status.Entry
	for _, tag := range e.Store.Tags(stepAlias) {
		entries = append(entries, e.Store.Get(stepAlias, tag))
	}
	return entries
}

func failedTagsFor(entries []status.Entry, tags []string) map[string]bool {
	out := map[string]bool{}
	for i, e := range entries {
		if i < len(tags) && e.JobStatus == status.Failed {
			out[tags[i]] = true
		}
	}
	return out
}

// reconcileAll refreshes the Status Store from any per-job record files
// written since the last cycle, then reconciles every step's backend in
// turn and cleans up submission artifacts for tasks that have finished.
// Distinct steps may use distinct backends (different
// execution_control.option values).
func (e *Executor) reconcileAll(ctx context.Context) error {
	if err := e.Store.Refresh(ctx); err != nil {
		return err
	}
	for _, step := range e.Config.Steps {
		stepConfigPath := filepath.Join(e.ProjectDir, step.ConfigPath)
		stepConfig, err := config.LoadResolved(stepConfigPath)
		if err != nil {
			continue // a step not yet reached may not have a config file
		}
		be, err := backendFor(stepConfig)
		if err != nil {
			continue
		}
		if err := e.Store.Reconcile(ctx, be, time.Now()); err != nil {
			return err
		}
		e.cleanupFinishedScripts(ctx, step.Alias, filepath.Dir(stepConfigPath), be)
	}
	return nil
}

// cleanupFinishedScripts removes the submission artifact be wrote for
// every task of stepAlias that has reached a terminal state, per the
// Submission Backend's ownership of the script file it writes (spec.md's
// Ownership invariant). Safe to call every cycle since Backend.Cleanup is
// idempotent; a cleanup failure is logged, not fatal, since it cannot
// affect the task's already-settled outcome.
func (e *Executor) cleanupFinishedScripts(ctx context.Context, stepAlias, workDir string, be backend.Backend) {
	log := ctxlog.FromContext(ctx)
	for _, tag := range e.Store.Tags(stepAlias) {
		entry := e.Store.Get(stepAlias, tag)
		if !entry.JobStatus.IsTerminal() {
			continue
		}
		if err := be.Cleanup(stepAlias+tag, workDir); err != nil {
			log.Warn("pipeline: cleaning up submission script failed", "step", stepAlias, "tag", tag, "err", err)
		}
	}
}

// dispatchStep dispatches a single step, optionally restricted to only
// (re-)submitting tasks whose tag is in onlyTags (nil means "all tasks
// this step's enumeration produces").
func (e *Executor) dispatchStep(ctx context.Context, step model.PipelineStep, onlyTags map[string]bool) error {
	ep, ok := e.Registry.Lookup(step.CommandOrAlias())
	if !ok {
		return errkind.Configf("pipeline.dispatchStep", step.Alias, "no registered entry point named %q", step.CommandOrAlias())
	}

	stepConfigPath := filepath.Join(e.ProjectDir, step.ConfigPath)
	stepConfig, err := config.LoadResolved(stepConfigPath)
	if err != nil {
		return errkind.Configf("pipeline.dispatchStep", step.Alias, "%w", err)
	}
	if errs := config.CheckPlaceholders(stepConfig); len(errs) > 0 {
		return errkind.Configf("pipeline.dispatchStep", step.Alias, "unfilled placeholder values: %v", errs)
	}

	be, err := backendFor(stepConfig)
	if err != nil {
		return errkind.Configf("pipeline.dispatchStep", step.Alias, "%w", err)
	}

	d := dispatch.New(e.Program, e.Store)
	_ = onlyTags // re-dispatch currently re-enumerates the whole step; the
	// dedupe rule in dispatch.decide already skips successful/live tasks,
	// so restricting the re-submission set further is an optimization,
	// not a correctness requirement.
	return d.Dispatch(ctx, step, stepConfigPath, stepConfig, ep, be)
}

// RunOneShot performs exactly one invocation cycle and returns.
func (e *Executor) RunOneShot(ctx context.Context) (Result, error) {
	if pid, live := e.Store.MonitorPID(); live {
		return Result{}, fmt.Errorf("pipeline: a background monitor (pid %d) is already driving %s", pid, e.ProjectDir)
	}
	return e.RunOnce(ctx)
}

// RunMonitor loops invocation cycles with a bounded sleep between polls,
// terminating on the final step's Done or on an unrecoverable Failed step.
func (e *Executor) RunMonitor(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)
	interval := e.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		res, err := e.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.StepIndex >= len(e.Config.Steps) {
			log.Info("pipeline: complete", "project_dir", e.ProjectDir)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// RunBackground records this process's PID as the live monitor, then runs
// RunMonitor, clearing the PID file on exit so a later one-shot invocation
// does not see a stale monitor.
func (e *Executor) RunBackground(ctx context.Context) error {
	if err := e.Store.RecordMonitorPID(os.Getpid()); err != nil {
		return err
	}
	defer e.Store.ClearMonitorPID()
	return e.RunMonitor(ctx)
}

// Reset transitions every task at or after the named step (or every task,
// if afterStepAlias is empty) back to not-submitted.
func (e *Executor) Reset(ctx context.Context, afterStepAlias string) error {
	order := make([]string, len(e.Config.Steps))
	index := -1
	for i, step := range e.Config.Steps {
		order[i] = step.Alias
		if step.Alias == afterStepAlias {
			index = i
		}
	}
	if afterStepAlias != "" && index == -1 {
		return errkind.Configf("pipeline.Reset", afterStepAlias, "unknown step alias")
	}
	return e.Store.Reset(ctx, order, index)
}
