package invoke

import (
	"errors"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
)

// calc is the shared test target. Methods cover value returns, void returns,
// error returns, panics and variadic tails.
type calc struct {
	offset int
	notes  []string
}

func (c *calc) Add(a, b int) int { return a + b + c.offset }

func (c *calc) Sub(a, b int) int { return a - b }

func (c *calc) Div(a, b int) int { return a / b }

func (c *calc) Note(s string) { c.notes = append(c.notes, s) }

func (c *calc) Lookup(key string) *calc {
	if key == "self" {
		return c
	}
	return nil
}

var errBoom = errors.New("boom")

func (c *calc) Fail() error { return errBoom }

func (c *calc) Ping() error { return nil }

func (c *calc) FailWith(err error) error { return err }

type explosion struct{ reason string }

func (c *calc) Explode() { panic(explosion{reason: "deliberate"}) }

func mustMethod(t *testing.T, instance any, name string) *Descriptor {
	t.Helper()
	d, err := MethodOf(instance, name)
	if err != nil {
		t.Fatalf("MethodOf(%s): %v", name, err)
	}
	return d
}

func mustInvoke(t *testing.T, e *Engine, d *Descriptor, instance any, args ...any) any {
	t.Helper()
	res, err := e.InvokeDirect(d, instance, args)
	if err != nil {
		t.Fatalf("InvokeDirect(%s): %v", d, err)
	}
	return res
}

func TestInvokeDirect_ValueCorrectness(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Add")

	if got := mustInvoke(t, e, d, c, 2, 3); got != 5 {
		t.Errorf("Add(2, 3) = %v, want 5", got)
	}
}

func TestInvokeDirect_VoidMarker(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Note")

	res := mustInvoke(t, e, d, c, "hello")
	if res != Void {
		t.Errorf("void method returned %v, want the void marker", res)
	}
	if len(c.notes) != 1 || c.notes[0] != "hello" {
		t.Errorf("side effect missing: notes = %v", c.notes)
	}
}

func TestInvokeDirect_NilReturnIsNotVoid(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Lookup")

	res := mustInvoke(t, e, d, c, "nothing")
	if res == Void {
		t.Fatal("a real nil return must be distinguishable from the void marker")
	}
	if got, ok := res.(*calc); !ok || got != nil {
		t.Errorf("Lookup(nothing) = %v (%T), want typed nil *calc", res, res)
	}

	if got := mustInvoke(t, e, d, c, "self"); got != any(c) {
		t.Errorf("Lookup(self) = %v, want the receiver", got)
	}
}

func TestInvokeDirect_MissingInstance(t *testing.T) {
	e := NewEngine()
	d := mustMethod(t, &calc{}, "Add")

	_, err := e.InvokeDirect(d, nil, []any{2, 3})
	if !errors.Is(err, ErrMissingInstance) {
		t.Fatalf("expected ErrMissingInstance, got %v", err)
	}
}

func TestInvokeDirect_UnexpectedInstance(t *testing.T) {
	e := NewEngine()
	d, err := FuncOf(func(a, b int) int { return a + b }, "add")
	if err != nil {
		t.Fatalf("FuncOf: %v", err)
	}

	_, err = e.InvokeDirect(d, &calc{}, []any{2, 3})
	if !errors.Is(err, ErrUnexpectedInstance) {
		t.Fatalf("expected ErrUnexpectedInstance, got %v", err)
	}

	if got := mustInvoke(t, e, d, nil, 2, 3); got != 5 {
		t.Errorf("static add(2, 3) = %v, want 5", got)
	}
}

func TestInvokeDirect_ArityMismatch(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Add")

	for _, args := range [][]any{nil, {1}, {1, 2, 3}} {
		if _, err := e.InvokeDirect(d, c, args); !errors.Is(err, ErrArityMismatch) {
			t.Errorf("args %v: expected ErrArityMismatch, got %v", args, err)
		}
	}
}

func TestInvokeDirect_GenericDefinitionRejected(t *testing.T) {
	e := NewEngine()
	d := GenericOf(reflect.TypeOf(&calc{}), "Map")

	_, err := e.InvokeDirect(d, &calc{}, nil)
	if !errors.Is(err, ErrUnsupportedMethodShape) {
		t.Fatalf("expected ErrUnsupportedMethodShape, got %v", err)
	}
	if e.CompileCount() != 0 {
		t.Errorf("open generics must be rejected before compilation, got %d compiles", e.CompileCount())
	}
}

func TestInvokeDirect_ArgumentTypeMismatch(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Add")

	_, err := e.InvokeDirect(d, c, []any{"two", 3})
	if !errors.Is(err, ErrArgumentTypeMismatch) {
		t.Fatalf("expected ErrArgumentTypeMismatch, got %v", err)
	}
	var ate *ArgumentTypeError
	if !errors.As(err, &ate) {
		t.Fatalf("expected *ArgumentTypeError in the chain, got %v", err)
	}
	if ate.Position != 0 {
		t.Errorf("Position = %d, want 0", ate.Position)
	}
	if ate.Expected != reflect.TypeOf(0) {
		t.Errorf("Expected = %v, want int", ate.Expected)
	}
	if ate.Actual != reflect.TypeOf("") {
		t.Errorf("Actual = %v, want string", ate.Actual)
	}
}

func TestInvokeDirect_NilArguments(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "FailWith")

	// Untyped nil for a nil-able parameter becomes its zero value.
	res, err := e.InvokeDirect(d, c, []any{nil})
	if err != nil {
		t.Fatalf("nil error argument: %v", err)
	}
	if res != Void {
		t.Errorf("FailWith(nil) = %v, want void (no value result)", res)
	}

	// Untyped nil for a non-nil-able parameter is a type mismatch.
	add := mustMethod(t, c, "Add")
	_, err = e.InvokeDirect(add, c, []any{nil, 3})
	var ate *ArgumentTypeError
	if !errors.As(err, &ate) || ate.Actual != nil {
		t.Fatalf("expected nil-argument ArgumentTypeError, got %v", err)
	}
}

func TestInvokeDirect_NumericNarrowing(t *testing.T) {
	e := NewEngine()
	d, err := FuncOf(func(b int8) int8 { return b * 2 }, "double")
	if err != nil {
		t.Fatalf("FuncOf: %v", err)
	}

	if got := mustInvoke(t, e, d, nil, int64(20)); got != int8(40) {
		t.Errorf("double(int64(20)) = %v, want int8(40)", got)
	}

	_, err = e.InvokeDirect(d, nil, []any{int64(1000)})
	if !errors.Is(err, ErrArgumentTypeMismatch) {
		t.Fatalf("narrowing int64(1000) to int8 must fail, got %v", err)
	}

	fd, err := FuncOf(func(f float64) float64 { return f / 2 }, "half")
	if err != nil {
		t.Fatalf("FuncOf: %v", err)
	}
	if got := mustInvoke(t, e, fd, nil, 8); got != 4.0 {
		t.Errorf("half(8) = %v, want 4", got)
	}
}

func TestInvokeDirect_ReceiverTypeMismatch(t *testing.T) {
	e := NewEngine()
	d := mustMethod(t, &calc{}, "Add")

	type other struct{}
	_, err := e.InvokeDirect(d, &other{}, []any{2, 3})
	var ate *ArgumentTypeError
	if !errors.As(err, &ate) {
		t.Fatalf("expected *ArgumentTypeError, got %v", err)
	}
	if ate.Position != ReceiverPosition {
		t.Errorf("Position = %d, want ReceiverPosition", ate.Position)
	}
}

func TestInvokeDirect_TargetErrorPassthrough(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Fail")

	_, err := e.InvokeDirect(d, c, nil)
	if err != errBoom {
		t.Fatalf("target error must come back verbatim: got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Error("errors.Is against the target's own sentinel must hold")
	}
}

func TestInvokeDirect_UnwrappedPanicPropagation(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Div")

	defer func() {
		p := recover()
		if p == nil {
			t.Fatal("expected the division panic to unwind through InvokeDirect")
		}
		re, ok := p.(runtime.Error)
		if !ok {
			t.Fatalf("panic value is %T, want the original runtime.Error", p)
		}
		if !strings.Contains(re.Error(), "divide by zero") {
			t.Errorf("panic message = %q, want the original divide-by-zero text", re.Error())
		}
	}()
	e.InvokeDirect(d, c, []any{1, 0})
}

func TestInvokeDirect_PanicValueIdentityPreserved(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Explode")

	defer func() {
		p := recover()
		ex, ok := p.(explosion)
		if !ok {
			t.Fatalf("panic value is %T, want the target's own explosion value", p)
		}
		if ex.reason != "deliberate" {
			t.Errorf("panic payload = %+v, want the original payload", ex)
		}
	}()
	e.InvokeDirect(d, c, nil)
}

func TestEngine_SignatureReuse(t *testing.T) {
	var shapes []string
	e := NewEngine(WithCompileHook(func(shape string) { shapes = append(shapes, shape) }))
	c := &calc{}

	add := mustMethod(t, c, "Add")
	sub := mustMethod(t, c, "Sub")

	if got := mustInvoke(t, e, add, c, 2, 3); got != 5 {
		t.Errorf("Add = %v, want 5", got)
	}
	if got := mustInvoke(t, e, sub, c, 7, 3); got != 4 {
		t.Errorf("Sub = %v, want 4", got)
	}

	if e.CompileCount() != 1 {
		t.Errorf("two same-shaped methods caused %d compilations, want 1", e.CompileCount())
	}
	if len(shapes) != 1 || shapes[0] != "func(int, int) int" {
		t.Errorf("compile hook saw %v, want one func(int, int) int event", shapes)
	}
}

func TestEngine_ShapeDistinction(t *testing.T) {
	e := NewEngine()
	c := &calc{}

	for _, name := range []string{"Add", "Note", "Ping", "Lookup"} {
		d := mustMethod(t, c, name)
		args := make([]any, d.NumParams())
		for i := range args {
			args[i] = reflect.Zero(d.Param(i)).Interface()
		}
		if _, err := e.InvokeDirect(d, c, args); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	if e.CompileCount() != 4 {
		t.Errorf("four distinct shapes caused %d compilations, want 4", e.CompileCount())
	}
}

func TestEngine_CacheIdempotence(t *testing.T) {
	e := NewEngine()
	c := &calc{}
	d := mustMethod(t, c, "Add")

	for i := 0; i < 1000; i++ {
		if got := mustInvoke(t, e, d, c, i, i); got != i*2 {
			t.Fatalf("iteration %d: Add(%d, %d) = %v", i, i, i, got)
		}
	}
	if e.CompileCount() != 1 {
		t.Errorf("1000 invocations caused %d compilations, want 1", e.CompileCount())
	}
}

func TestEngine_ConcurrentFirstUse(t *testing.T) {
	e := NewEngine()
	a := &calc{offset: 100}
	b := &calc{offset: 200}
	da := mustMethod(t, a, "Add")
	db := mustMethod(t, b, "Sub")

	const callers = 16
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				results[i], errs[i] = e.InvokeDirect(da, a, []any{1, 2})
			} else {
				results[i], errs[i] = e.InvokeDirect(db, b, []any{9, 4})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		want := 103
		if i%2 == 1 {
			want = 5
		}
		if results[i] != want {
			t.Errorf("caller %d: got %v, want %d", i, results[i], want)
		}
	}

	// Racing compilers may have produced duplicates, but afterwards the
	// cache serves exactly one artifact and stays consistent.
	if got := mustInvoke(t, e, da, a, 1, 2); got != 103 {
		t.Errorf("post-race Add = %v, want 103", got)
	}
	before := e.CompileCount()
	mustInvoke(t, e, db, b, 9, 4)
	if e.CompileCount() != before {
		t.Error("settled cache recompiled a known shape")
	}
}

func TestInvokeDirect_Variadic(t *testing.T) {
	e := NewEngine()
	d, err := FuncOf(func(base int, xs ...int) int {
		for _, x := range xs {
			base += x
		}
		return base
	}, "sum")
	if err != nil {
		t.Fatalf("FuncOf: %v", err)
	}

	if got := mustInvoke(t, e, d, nil, 1, 2, 3, 4); got != 10 {
		t.Errorf("sum(1, 2, 3, 4) = %v, want 10", got)
	}
	if got := mustInvoke(t, e, d, nil, 7); got != 7 {
		t.Errorf("sum(7) = %v, want 7", got)
	}
	if _, err := e.InvokeDirect(d, nil, nil); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("missing fixed argument: expected ErrArityMismatch, got %v", err)
	}
}
