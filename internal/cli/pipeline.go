package cli

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/ctxlog"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/model"
	"github.com/nrel-gaps/ridge/internal/pipeline"
	"github.com/nrel-gaps/ridge/internal/status"
)

const defaultPipelineConfigName = "config_pipeline.json"

// internalMonitorChildFlag is not advertised on the command: it marks the
// self-exec'd child a --background invocation spawns, telling it to run
// the monitor loop in its own foreground rather than spawning a
// grandchild. gaps/cli/pipeline.py's _kickoff_background forks and
// setsids instead of re-exec'ing, which Go's runtime cannot do safely
// once goroutines exist; re-exec'ing the binary with Setsid is the
// idiomatic Go equivalent of that fork+setsid.
const internalMonitorChildFlag = "internal-monitor-child"

// loadExecutor opens the Status Store and pipeline config rooted at
// configPath's directory and builds an Executor against a's registry.
func loadExecutor(a *app.App, configPath string) (*pipeline.Executor, error) {
	projectDir := projectDirOf(configPath)
	v, err := config.Load(configPath)
	if err != nil {
		return nil, errkind.Configf("cli.loadExecutor", configPath, "%w", err)
	}
	pc, err := model.ParsePipelineConfig(v)
	if err != nil {
		return nil, err
	}
	store, err := status.Open(context.Background(), projectDir)
	if err != nil {
		return nil, err
	}
	return &pipeline.Executor{
		ProjectDir: projectDir,
		Program:    a.Program(),
		Store:      store,
		Registry:   a.Registry(),
		Config:     pc,
	}, nil
}

func newPipelineCommand(a *app.App) *cobra.Command {
	var configPath string
	var recursive bool
	var monitor bool
	var background bool
	var monitorChild bool

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Drive a project's pipeline through one or more invocation cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if monitor && background {
				return classify(errkind.Configf("cli.pipeline", "", "--monitor and --background are mutually exclusive"))
			}
			ctx := cmd.Context()
			if recursive {
				return classify(runPipelineRecursive(ctx, a, configPath, monitor, background))
			}
			return classify(runPipelineOnce(ctx, a, configPath, monitor, background, monitorChild))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultPipelineConfigName, "path to the pipeline config file")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "locate and drive every subdirectory's pipeline config")
	cmd.Flags().BoolVar(&monitor, "monitor", false, "loop invocation cycles in the foreground until done or failed")
	cmd.Flags().BoolVar(&background, "background", false, "detach a background monitor and return immediately")
	cmd.Flags().BoolVar(&monitorChild, internalMonitorChildFlag, false, "run the monitor loop in this process (used internally by --background's self-exec)")
	_ = cmd.Flags().MarkHidden(internalMonitorChildFlag)
	return cmd
}

func runPipelineOnce(ctx context.Context, a *app.App, configPath string, monitor, background, monitorChild bool) error {
	exec, err := loadExecutor(a, configPath)
	if err != nil {
		return err
	}
	switch {
	case monitorChild:
		// This process IS the detached child spawned below. Record its
		// own real PID and run the monitor loop to completion in the
		// foreground; there is no further process to spawn.
		return exec.RunBackground(ctx)
	case background:
		pid, err := spawnDetachedMonitor(a.Program(), exec.ProjectDir, configPath)
		if err != nil {
			return errkind.Runtimef("cli.pipeline", configPath, "spawning background monitor: %w", err)
		}
		if err := exec.Store.RecordMonitorPID(pid); err != nil {
			return err
		}
		fmt.Fprintf(a.Out(), "pipeline: background monitor pid=%d started for %s\n", pid, exec.ProjectDir)
		return nil
	case monitor:
		return exec.RunMonitor(ctx)
	default:
		res, err := exec.RunOneShot(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out(), "pipeline: %s state=%s dispatched=%v\n", exec.ProjectDir, res.State, res.Dispatched)
		return nil
	}
}

// spawnDetachedMonitor re-execs this binary as a session-leader child
// (SysProcAttr.Setsid) running "pipeline --config configPath
// --internal-monitor-child", so the monitor loop survives the launching
// shell exiting, matching gaps/cli/pipeline.py:_kickoff_background's
// fork+setsid. The child's stdout/stderr go to pipeline_monitor.log next
// to the project's pipeline config, since there is no longer a terminal
// attached to report through. It returns the child's real OS PID so the
// caller can record it via Store.RecordMonitorPID before returning.
func spawnDetachedMonitor(program, projectDir, configPath string) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, err
	}
	logPath := filepath.Join(projectDir, "pipeline_monitor.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	cmd := osexec.Command(self, "--program", program, "pipeline", "--config", configPath, "--"+internalMonitorChildFlag)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Detach: this process will exit long before the monitor does; once
	// it exits, the child (a session leader through Setsid) is reparented
	// to init rather than left a zombie under this short-lived process.
	if err := cmd.Process.Release(); err != nil {
		return 0, err
	}
	return pid, nil
}

// runPipelineRecursive implements the "Recursive mode": locate
// each subdirectory of root containing exactly one file matching
// configName, and run the Executor in that subdirectory. Subdirectories
// with zero or multiple matches are skipped with a warning.
func runPipelineRecursive(ctx context.Context, a *app.App, configPath string, monitor, background bool) error {
	log := ctxlog.FromContext(ctx)
	configName := filepath.Base(configPath)
	root := filepath.Dir(configPath)

	entries, err := os.ReadDir(root)
	if err != nil {
		return errkind.Configf("cli.runPipelineRecursive", root, "%w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		subDir := filepath.Join(root, e.Name())
		matches, err := filepath.Glob(filepath.Join(subDir, configName))
		if err != nil {
			return err
		}
		switch len(matches) {
		case 0:
			log.Warn("pipeline: skipping subdirectory with no pipeline config", "dir", subDir)
			continue
		case 1:
			if err := runPipelineOnce(ctx, a, matches[0], monitor, background, false); err != nil {
				return err
			}
		default:
			log.Warn("pipeline: skipping subdirectory with multiple pipeline configs", "dir", subDir, "count", len(matches))
		}
	}
	return nil
}

func newResetStatusCommand(a *app.App) *cobra.Command {
	var configPath string
	var afterStep string
	var hard bool

	cmd := &cobra.Command{
		Use:   "reset-status",
		Short: "Reset task status back to not-submitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := loadExecutor(a, configPath)
			if err != nil {
				return classify(err)
			}
			if hard {
				return classify(exec.Store.Purge())
			}
			return classify(exec.Reset(cmd.Context(), afterStep))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultPipelineConfigName, "path to the pipeline config file")
	cmd.Flags().StringVar(&afterStep, "after-step", "", "reset only steps at or after this alias (default: reset every step)")
	cmd.Flags().BoolVar(&hard, "hard", false, "also delete the status store directory outright")
	return cmd
}
