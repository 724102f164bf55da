// Package report implements result consumers for the runner: a TTY-aware
// console reporter and a SQLite run-history sink.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/testrig/testrig/internal/runner"
)

const (
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiDim    = "\x1b[2m"
	ansiReset  = "\x1b[0m"
)

// Console prints per-case lines and a final summary. It implements
// runner.Reporter; the runner serializes calls, but Console also locks so it
// can be shared with out-of-band writers.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	color   bool
	verbose bool
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithColor overrides colour auto-detection.
func WithColor(on bool) ConsoleOption {
	return func(c *Console) { c.color = on }
}

// WithVerbose prints attempt numbers and per-case timing even for passes.
func WithVerbose(on bool) ConsoleOption {
	return func(c *Console) { c.verbose = on }
}

// NewConsole returns a reporter writing to w. Colour defaults to on when w
// is a terminal, respecting the NO_COLOR convention and TERM=dumb.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{w: w, color: detectColor(w)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func detectColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

func (c *Console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

func (c *Console) RunStarted(run *runner.Run, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "run %s: %d cases\n", run.ID, total)
}

func (c *Console) CaseFinished(res runner.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tag string
	switch res.Outcome {
	case runner.Passed:
		tag = c.paint(ansiGreen, "PASS")
	case runner.Failed:
		tag = c.paint(ansiRed, "FAIL")
	case runner.Skipped:
		tag = c.paint(ansiYellow, "SKIP")
	case runner.TimedOut:
		tag = c.paint(ansiRed, "TIME")
	}

	line := fmt.Sprintf("  %s %s", tag, res.Name())
	if res.Attempt > 1 || c.verbose {
		line += fmt.Sprintf(" %s", c.paint(ansiDim, fmt.Sprintf("(attempt %d, %s)", res.Attempt, res.Elapsed)))
	}
	fmt.Fprintln(c.w, line)

	if res.Err != nil && res.Outcome != runner.Skipped {
		for _, l := range strings.Split(res.Err.Error(), "\n") {
			fmt.Fprintf(c.w, "       %s\n", l)
		}
		if pe, ok := res.Err.(*runner.PanicError); ok && c.verbose {
			fmt.Fprintf(c.w, "%s\n", pe.Stack)
		}
	}
}

func (c *Console) RunFinished(run *runner.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := run.Counts()
	summary := fmt.Sprintf("%d passed, %d failed, %d skipped, %d timed out in %s",
		counts.Passed, counts.Failed, counts.Skipped, counts.TimedOut,
		run.Elapsed().Round(time.Millisecond))
	if run.Failed() {
		summary = c.paint(ansiRed, summary)
	} else {
		summary = c.paint(ansiGreen, summary)
	}
	fmt.Fprintln(c.w, summary)
}
