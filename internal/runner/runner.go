package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/testrig/testrig/pkg/invoke"
)

// Reporter receives run progress. Calls are serialized by the runner, so
// implementations need no locking of their own.
type Reporter interface {
	RunStarted(run *Run, total int)
	CaseFinished(res Result)
	RunFinished(run *Run)
}

// Runner drives registered suites through the invocation engine.
type Runner struct {
	engine    *invoke.Engine
	cfg       *Config
	reporters []Reporter

	mu  sync.Mutex // serializes result recording and reporter calls
	run *Run
}

func New(engine *invoke.Engine, cfg *Config, reporters ...Reporter) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Runner{engine: engine, cfg: cfg, reporters: reporters}
}

// Run executes every selected case of every registered suite and returns the
// aggregated run. Suites are distributed over cfg.Workers goroutines; cases
// within a suite run sequentially so setup and teardown stay ordered. The
// context cancels scheduling of further cases; cases already dispatched
// finish on their own.
func (r *Runner) Run(ctx context.Context, reg *Registry) (*Run, error) {
	run := &Run{ID: uuid.NewString(), Started: time.Now()}
	r.mu.Lock()
	r.run = run
	r.mu.Unlock()

	suites, total := r.selectWork(reg)
	for _, rep := range r.reporters {
		rep.RunStarted(run, total)
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	suiteCh := make(chan *selectedSuite)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range suiteCh {
				r.runSuite(ctx, s)
			}
		}()
	}

feed:
	for _, s := range suites {
		select {
		case suiteCh <- s:
		case <-ctx.Done():
			break feed
		}
	}
	close(suiteCh)
	wg.Wait()

	run.Finished = time.Now()
	for _, rep := range r.reporters {
		rep.RunFinished(run)
	}
	return run, ctx.Err()
}

// selectedSuite is a suite narrowed to the cases passing the filters.
type selectedSuite struct {
	*Suite
	cases []Case
}

func (r *Runner) selectWork(reg *Registry) ([]*selectedSuite, int) {
	var out []*selectedSuite
	total := 0
	for _, s := range reg.Suites() {
		sel := &selectedSuite{Suite: s}
		for _, c := range s.Cases {
			if r.cfg.Selected(c.Suite, c.Name) {
				sel.cases = append(sel.cases, c)
			}
		}
		if len(sel.cases) > 0 {
			out = append(out, sel)
			total += len(sel.cases) * r.cfg.repeatCount()
		}
	}
	return out, total
}

func (r *Runner) runSuite(ctx context.Context, s *selectedSuite) {
	if setup, ok := s.Instance.(SuiteSetup); ok {
		if err := setup.SetupSuite(); err != nil {
			// The whole suite is unrunnable; fail every selected case so
			// nothing silently disappears from the totals.
			for _, c := range s.cases {
				for attempt := 1; attempt <= r.cfg.repeatCount(); attempt++ {
					r.record(Result{
						Suite: c.Suite, Case: c.Name, Attempt: attempt,
						Outcome: Failed, Err: fmt.Errorf("suite setup: %w", err),
					})
				}
			}
			return
		}
	}

	for _, c := range s.cases {
		for attempt := 1; attempt <= r.cfg.repeatCount(); attempt++ {
			if ctx.Err() != nil {
				return
			}
			r.record(r.runCase(ctx, s.Instance, c, attempt))
		}
	}

	if teardown, ok := s.Instance.(SuiteTeardown); ok {
		if err := teardown.TeardownSuite(); err != nil {
			r.record(Result{
				Suite: s.Name, Case: "TeardownSuite", Attempt: 1,
				Outcome: Failed, Err: err,
			})
		}
	}
}

// caseReturn carries one invocation's outcome across the timeout race.
type caseReturn struct {
	err      error
	panicked bool
	panicVal any
	stack    []byte
}

// runCase executes one attempt: per-case setup, the invocation raced against
// the deadline, then teardown.
//
// The engine propagates target panics unwrapped; converting them to results
// happens here, at the orchestration layer, so one exploding case cannot
// take down the run while the engine's contract stays intact.
func (r *Runner) runCase(ctx context.Context, instance any, c Case, attempt int) Result {
	res := Result{Suite: c.Suite, Case: c.Name, Attempt: attempt}

	if setup, ok := instance.(CaseSetup); ok {
		if err := setup.Setup(); err != nil {
			res.Outcome = Failed
			res.Err = fmt.Errorf("setup: %w", err)
			return res
		}
	}

	start := time.Now()
	done := make(chan caseReturn, 1) // buffered so an abandoned case can still finish
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- caseReturn{panicked: true, panicVal: p, stack: debug.Stack()}
			}
		}()
		_, err := r.engine.InvokeDirect(c.Descriptor, instance, nil)
		done <- caseReturn{err: err}
	}()

	var deadline <-chan time.Time
	if t := r.cfg.Timeout.Std(); t > 0 {
		timer := time.NewTimer(t)
		defer timer.Stop()
		deadline = timer.C
	}

	var ret caseReturn
	timedOut := false
	select {
	case ret = <-done:
	case <-deadline:
		timedOut = true
	case <-ctx.Done():
		ret = caseReturn{err: ctx.Err()}
	}
	res.Elapsed = time.Since(start)

	switch {
	case timedOut:
		res.Outcome = TimedOut
		res.Err = fmt.Errorf("timed out after %s", r.cfg.Timeout.Std())
		// The invocation goroutine is abandoned, so running teardown now
		// would race the still-executing case. Skip it.
		return res
	case ret.panicked:
		res.Outcome = Failed
		res.Err = &PanicError{Value: ret.panicVal, Stack: ret.stack}
	case errors.Is(ret.err, ErrSkip):
		res.Outcome = Skipped
		res.Err = ret.err
	case ret.err != nil:
		res.Outcome = Failed
		res.Err = ret.err
	default:
		res.Outcome = Passed
	}

	if teardown, ok := instance.(CaseTeardown); ok {
		if err := teardown.Teardown(); err != nil && res.Outcome == Passed {
			res.Outcome = Failed
			res.Err = fmt.Errorf("teardown: %w", err)
		}
	}
	return res
}

func (r *Runner) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.Results = append(r.run.Results, res)
	for _, rep := range r.reporters {
		rep.CaseFinished(res)
	}
}
