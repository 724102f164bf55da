// Package invoke implements direct dynamic invocation: calling a method
// resolved at run time from a descriptor so that any failure raised inside
// the target propagates to the caller exactly as a direct call would.
//
// The engine compiles a marshalling plan once per distinct call shape (same
// parameter types, same result types) and reuses it from concurrent callers;
// a test run invoking thousands of same-shaped methods pays for compilation
// once. Critically, nothing of the engine sits on the failure path: there is
// no recover anywhere in this package, target error returns are handed back
// verbatim, and a panic inside the target unwinds through InvokeDirect with
// its original value, so a debugger stops at the failure site and not at a
// wrapper frame.
package invoke

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/testrig/testrig/internal/signature"
)

// Engine is the invocation compiler and cache. Construct one with NewEngine
// and share it by reference; it is safe for concurrent use. The cache grows
// monotonically — shapes are bounded by the methods of the loaded program,
// so nothing is ever evicted.
//
// Engines are explicit values rather than a package global so that tests and
// embedders can hold isolated instances.
type Engine struct {
	cache     sync.Map // signature.Key -> *invoker
	compiles  atomic.Int64
	onCompile func(shape string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompileHook installs an instrumentation hook called once per
// compilation event with the human-readable shape. The hook runs on the
// invoking goroutine and must be fast.
func WithCompileHook(hook func(shape string)) Option {
	return func(e *Engine) { e.onCompile = hook }
}

// NewEngine returns an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompileCount returns the number of compilation events so far. Repeated
// invocations of same-shaped methods do not add to it.
func (e *Engine) CompileCount() int64 {
	return e.compiles.Load()
}

// InvokeDirect invokes the method named by d on instance with args.
//
// The result is what the target returned: its value result, or Void when the
// method returns no value. A non-nil trailing error return comes back as the
// error, untouched. A panic inside the target is not intercepted.
//
// Engine-side validation failures are reported through the sentinels in
// errors.go; all of them fire before the target runs. Instance must be nil
// exactly when d is static.
func (e *Engine) InvokeDirect(d *Descriptor, instance any, args []any) (any, error) {
	if d == nil {
		return nil, fmt.Errorf("invoke: nil descriptor")
	}
	if d.generic {
		return nil, fmt.Errorf("invoke %s: open generic definition: %w", d, ErrUnsupportedMethodShape)
	}
	if !d.static && instance == nil {
		return nil, fmt.Errorf("invoke %s: %w", d, ErrMissingInstance)
	}
	if d.static && instance != nil {
		return nil, fmt.Errorf("invoke %s: %w", d, ErrUnexpectedInstance)
	}
	if err := d.checkArity(len(args)); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", d, err)
	}

	key, err := signature.Normalize(d.shape())
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %v: %w", d, err, ErrUnsupportedMethodShape)
	}
	inv := e.invokerFor(key)

	in, err := inv.marshal(d, instance, args)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", d, err)
	}

	// The dispatch itself. No lock is held here, so a blocking target never
	// stalls lookups or compilations for unrelated shapes, and no recover
	// exists between the target and the caller.
	out := d.fn.Call(in)
	return inv.unmarshal(out)
}

// invokerFor returns the cached invoker for key, compiling on first use.
// Two goroutines racing to compile the same shape both produce correct,
// identical-shaped artifacts; LoadOrStore keeps one and the loser's copy is
// discarded, which is safe because compilation has no side effects.
func (e *Engine) invokerFor(key signature.Key) *invoker {
	if v, ok := e.cache.Load(key); ok {
		return v.(*invoker)
	}

	inv := compileInvoker(key)
	e.compiles.Add(1)
	if e.onCompile != nil {
		e.onCompile(key.String())
	}

	if prev, loaded := e.cache.LoadOrStore(key, inv); loaded {
		return prev.(*invoker)
	}
	return inv
}
