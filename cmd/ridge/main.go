package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nrel-gaps/ridge/internal/app"
	"github.com/nrel-gaps/ridge/internal/cli"
	"github.com/nrel-gaps/ridge/internal/demo"
)

// main is the entrypoint for the ridge application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and
// error handling.
func run(outW io.Writer, args []string) error {
	cfg := preParseGlobals(args)

	a := app.New(outW, cfg, demo.Module{})
	root := cli.NewRootCommand(a)
	root.SetArgs(stripGlobalFlags(args))
	root.SetOut(outW)
	return root.Execute()
}

// preParseGlobals scans args for the handful of global flags that must be
// known before app.New builds the logger and registry a cobra command
// tree is assembled against: --log-level, --log-format, and --program.
// Unlike the rest of the command tree, these are not declared as cobra
// flags on the root command, since the root command itself does not
// exist until after the App it depends on is constructed.
func preParseGlobals(args []string) app.Config {
	cfg := app.Config{LogFormat: "text", LogLevel: "info", Program: "ridge"}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--log-level":
			if i+1 < len(args) {
				cfg.LogLevel = args[i+1]
			}
		case "--log-format":
			if i+1 < len(args) {
				cfg.LogFormat = args[i+1]
			}
		case "--program":
			if i+1 < len(args) {
				cfg.Program = args[i+1]
			}
		}
	}
	return cfg
}

// stripGlobalFlags removes the global flags preParseGlobals consumed so
// cobra does not see them as unrecognized flags on whichever subcommand
// follows.
func stripGlobalFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--log-level", "--log-format", "--program":
			i++ // skip the value too
		default:
			out = append(out, args[i])
		}
	}
	return out
}
