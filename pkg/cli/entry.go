// Package cli is the command-line surface over the runner. Embedders
// register their suites and hand control to Entry from their own main.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/testrig/testrig/internal/report"
	"github.com/testrig/testrig/internal/runner"
	"github.com/testrig/testrig/pkg/invoke"
)

// Entry parses args, loads configuration, runs the registered suites and
// returns the process exit code: 0 on success, 1 when any case failed, 2 on
// usage or configuration errors.
func Entry(reg *runner.Registry, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("testrig", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to testrig.yaml (default: search upward from the working directory)")
	list := fs.Bool("list", false, "list discovered cases and exit")
	filter := fs.String("run", "", "only run cases matching this pattern (suite name or Suite.Case glob)")
	repeat := fs.Int("repeat", 0, "run every case this many times (overrides config)")
	timeout := fs.Duration("timeout", 0, "per-case timeout (overrides config)")
	workers := fs.Int("workers", 0, "suites run in parallel (overrides config)")
	history := fs.String("history", "", "sqlite file to append run history to (overrides config)")
	noColor := fs.Bool("no-color", false, "disable coloured output")
	verbose := fs.Bool("v", false, "verbose output")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if *filter != "" {
		cfg.Include = append(cfg.Include, *filter)
	}
	if *repeat > 0 {
		cfg.Repeat = *repeat
	}
	if *timeout > 0 {
		cfg.Timeout = runner.Duration(*timeout)
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *history != "" {
		cfg.History = *history
	}
	if *noColor {
		cfg.NoColor = true
	}
	if *verbose {
		cfg.Verbose = true
	}

	if *list {
		for _, s := range reg.Suites() {
			for _, c := range s.Cases {
				if cfg.Selected(c.Suite, c.Name) {
					fmt.Fprintf(stdout, "%s.%s\n", c.Suite, c.Name)
				}
			}
		}
		return 0
	}

	var engineOpts []invoke.Option
	if cfg.Verbose {
		engineOpts = append(engineOpts, invoke.WithCompileHook(func(shape string) {
			fmt.Fprintf(stderr, "[rig] compiled invoker for %s\n", shape)
		}))
	}
	engine := invoke.NewEngine(engineOpts...)

	consoleOpts := []report.ConsoleOption{report.WithVerbose(cfg.Verbose)}
	if cfg.NoColor {
		consoleOpts = append(consoleOpts, report.WithColor(false))
	}
	console := report.NewConsole(stdout, consoleOpts...)

	run, err := runner.New(engine, cfg, console).Run(context.Background(), reg)
	if err != nil {
		fmt.Fprintf(stderr, "run aborted: %v\n", err)
		return 2
	}

	if cfg.History != "" {
		if err := recordHistory(cfg.History, run); err != nil {
			fmt.Fprintf(stderr, "[rig] warning: %v\n", err)
		} else if cfg.Verbose {
			fmt.Fprintf(stderr, "[rig] run %s recorded to %s\n", run.ID, cfg.History)
		}
	}

	if run.Failed() {
		return 1
	}
	return 0
}

func loadConfig(path string) (*runner.Config, error) {
	if path != "" {
		return runner.LoadConfig(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	found, err := runner.FindConfig(wd)
	if err != nil {
		return nil, err
	}
	if found == "" {
		return runner.DefaultConfig(), nil
	}
	return runner.LoadConfig(found)
}

func recordHistory(path string, run *runner.Run) error {
	h, err := report.OpenHistory(path)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.RecordRun(run)
}
