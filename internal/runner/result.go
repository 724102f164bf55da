package runner

import (
	"errors"
	"fmt"
	"time"
)

// ErrSkip marks a case as skipped rather than failed. Test methods return it
// (or an error wrapping it) to opt out at run time.
var ErrSkip = errors.New("test skipped")

// Outcome classifies one case execution.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	Skipped
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "pass"
	case Failed:
		return "fail"
	case Skipped:
		return "skip"
	case TimedOut:
		return "timeout"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// PanicError captures a panic that escaped a test case. The original panic
// value and stack are preserved so nothing about the failure site is lost;
// only the runner converts panics to results — the engine never does.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Result is the outcome of one case execution attempt.
type Result struct {
	Suite   string
	Case    string
	Attempt int // 1-based; interesting only when repeat > 1
	Outcome Outcome
	Err     error // nil for Passed
	Elapsed time.Duration
}

// Name returns the qualified "Suite.Case" form used for filtering and
// reporting.
func (r Result) Name() string {
	return r.Suite + "." + r.Case
}

// Counts aggregates result outcomes.
type Counts struct {
	Passed   int
	Failed   int
	Skipped  int
	TimedOut int
}

// Run aggregates one whole run.
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Results  []Result
}

func (r *Run) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		switch res.Outcome {
		case Passed:
			c.Passed++
		case Failed:
			c.Failed++
		case Skipped:
			c.Skipped++
		case TimedOut:
			c.TimedOut++
		}
	}
	return c
}

// Failed reports whether any case failed or timed out.
func (r *Run) Failed() bool {
	c := r.Counts()
	return c.Failed > 0 || c.TimedOut > 0
}

// Elapsed returns the wall-clock duration of the run.
func (r *Run) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}
