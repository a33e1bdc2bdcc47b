// Package app wires together the process-wide dependencies a ridge
// invocation needs: a configured logger and a populated entry-point
// registry, mirroring the internal/app.App/NewApp shape
// (logger + registry construction, modules registered up front).
package app

import (
	"io"
	"log/slog"

	"github.com/nrel-gaps/ridge/internal/registry"
)

// Config holds the ambient settings every subcommand shares: how to log
// and what the binary calls itself in generated command lines.
type Config struct {
	LogFormat string
	LogLevel  string
	// Program is the binary name embedded in generated submission
	// command lines.
	Program string
}

// App encapsulates the logger and registry shared by every CLI command.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	program  string
}

// New constructs an App: configures the logger, then registers modules
// into a fresh Registry.
func New(outW io.Writer, cfg Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)

	reg := registry.New()
	reg.LoadModules(modules...)
	logger.Debug("entry points registered", "count", len(reg.Names()))

	program := cfg.Program
	if program == "" {
		program = "ridge"
	}

	return &App{outW: outW, logger: logger, registry: reg, program: program}
}

// Logger returns the app's configured logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Registry returns the app's populated entry-point registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Program returns the binary name embedded in generated command lines.
func (a *App) Program() string { return a.program }

// Out returns the writer command output is written to.
func (a *App) Out() io.Writer { return a.outW }
