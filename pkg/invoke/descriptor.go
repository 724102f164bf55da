package invoke

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/testrig/testrig/internal/signature"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Descriptor identifies one concrete method or function to invoke: where it
// is declared, what it is called, its parameter and result shape, and the
// callable itself. Descriptors are read-only after construction and safe to
// share between goroutines; the engine never mutates them.
type Descriptor struct {
	declaring reflect.Type  // receiver type, nil for static functions
	name      string
	fn        reflect.Value // receiver-first for instance methods
	params    []reflect.Type
	variadic  bool
	static    bool
	generic   bool

	results  []reflect.Type
	retIndex int // index of the value result, -1 when the method returns no value
	errIndex int // index of the trailing error result, -1 when none
}

// MethodOf resolves an exported method on the dynamic type of instance.
//
// Resolution never auto-addresses: a method declared on *T is not found on a
// plain T value, mirroring the fact that the engine binds the receiver
// exactly as supplied.
func MethodOf(instance any, name string) (*Descriptor, error) {
	if instance == nil {
		return nil, fmt.Errorf("cannot resolve method %q on a nil instance", name)
	}
	return MethodOfType(reflect.TypeOf(instance), name)
}

// MethodOfType resolves an exported method on a concrete type. The type must
// not be an interface: interface methods carry no callable until a concrete
// value is known, so resolve through MethodOf with a live instance instead.
func MethodOfType(t reflect.Type, name string) (*Descriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot resolve method %q on a nil type", name)
	}
	if t.Kind() == reflect.Interface {
		return nil, fmt.Errorf("%s is an interface; resolve %q through a concrete instance", t, name)
	}
	m, ok := t.MethodByName(name)
	if !ok {
		if t.Kind() != reflect.Ptr {
			if _, onPtr := reflect.PtrTo(t).MethodByName(name); onPtr {
				return nil, fmt.Errorf("%s has no method %q (it is declared on *%s)", t, name, t)
			}
		}
		return nil, fmt.Errorf("%s has no method %q", t, name)
	}

	ft := m.Func.Type()
	params := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}
	d := &Descriptor{
		declaring: t,
		name:      name,
		fn:        m.Func,
		params:    params,
		variadic:  ft.IsVariadic(),
	}
	return d.withResults(ft)
}

// FuncOf builds a static descriptor from a function value. The name is used
// for diagnostics only; when empty it is derived from the runtime symbol.
func FuncOf(fn any, name string) (*Descriptor, error) {
	if fn == nil {
		return nil, fmt.Errorf("cannot build a descriptor from a nil function")
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("cannot build a descriptor from %T", fn)
	}
	if name == "" {
		name = funcName(v)
	}

	ft := v.Type()
	params := make([]reflect.Type, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}
	d := &Descriptor{
		name:     name,
		fn:       v,
		params:   params,
		variadic: ft.IsVariadic(),
		static:   true,
	}
	return d.withResults(ft)
}

// GenericOf builds a descriptor for an uninstantiated generic template. It
// carries no callable and exists so a descriptor source that synthesizes
// metadata can still represent such methods; the engine rejects it with
// ErrUnsupportedMethodShape. Instantiate the generic and use FuncOf or
// MethodOf to get something invokable.
func GenericOf(declaring reflect.Type, name string) *Descriptor {
	return &Descriptor{
		declaring: declaring,
		name:      name,
		static:    declaring == nil,
		generic:   true,
		retIndex:  -1,
		errIndex:  -1,
	}
}

// withResults records the result plan, rejecting shapes the engine cannot
// hand back as a single result-or-error pair.
func (d *Descriptor) withResults(ft reflect.Type) (*Descriptor, error) {
	d.results = make([]reflect.Type, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		d.results = append(d.results, ft.Out(i))
	}
	var err error
	d.retIndex, d.errIndex, err = resultPlan(d.results)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d, err)
	}
	return d, nil
}

// Name returns the method or function name.
func (d *Descriptor) Name() string { return d.name }

// Declaring returns the receiver type, or nil for static functions.
func (d *Descriptor) Declaring() reflect.Type { return d.declaring }

// NumParams returns the declared parameter count, receiver excluded.
func (d *Descriptor) NumParams() int { return len(d.params) }

// Param returns the i-th declared parameter type.
func (d *Descriptor) Param(i int) reflect.Type { return d.params[i] }

// Return returns the value result type, or nil when the method returns no
// value (a trailing error result does not count as a value).
func (d *Descriptor) Return() reflect.Type {
	if d.retIndex < 0 {
		return nil
	}
	return d.results[d.retIndex]
}

// ReturnsError reports whether the method has a trailing error result.
func (d *Descriptor) ReturnsError() bool { return d.errIndex >= 0 }

// IsStatic reports whether the descriptor takes no receiver.
func (d *Descriptor) IsStatic() bool { return d.static }

// IsVariadic reports whether the final parameter is variadic.
func (d *Descriptor) IsVariadic() bool { return d.variadic }

// IsGenericDefinition reports whether the descriptor is an uninstantiated
// generic template.
func (d *Descriptor) IsGenericDefinition() bool { return d.generic }

func (d *Descriptor) String() string {
	if d.declaring != nil {
		return d.declaring.String() + "." + d.name
	}
	return d.name
}

// shape is what the signature normalizer sees: parameter and result types
// only. Declaring type, name and the static flag are deliberately dropped.
func (d *Descriptor) shape() signature.Shape {
	return signature.Shape{
		Params:            d.params,
		Results:           d.results,
		Variadic:          d.variadic,
		GenericDefinition: d.generic,
	}
}

func (d *Descriptor) checkArity(n int) error {
	if d.variadic {
		if min := len(d.params) - 1; n < min {
			return fmt.Errorf("expected at least %d arguments, got %d: %w", min, n, ErrArityMismatch)
		}
		return nil
	}
	if n != len(d.params) {
		return fmt.Errorf("expected %d arguments, got %d: %w", len(d.params), n, ErrArityMismatch)
	}
	return nil
}

func funcName(v reflect.Value) string {
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "func"
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
