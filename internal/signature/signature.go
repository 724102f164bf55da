// Package signature derives canonical keys from method call shapes.
//
// Two methods share a key iff they have the same arity, the same parameter
// types in the same order, and the same result types. The declaring type,
// the method name, and whether the method takes a receiver are deliberately
// not part of the key: the marshalling code compiled for a shape is the same
// for every method of that shape, and passing a receiver is a call-time
// branch, not a property of the compiled artifact.
package signature

import (
	"errors"
	"reflect"
)

// ErrGenericDefinition is returned for shapes taken from an uninstantiated
// generic template. Such shapes have no concrete parameter types and can
// never be normalized; the caller must instantiate the generic first.
var ErrGenericDefinition = errors.New("cannot normalize an open generic definition")

// Shape is the raw call shape of a method: declared parameter types in
// order (receiver excluded) and declared result types.
type Shape struct {
	Params   []reflect.Type
	Results  []reflect.Type
	Variadic bool

	// GenericDefinition marks a shape taken from an uninstantiated generic
	// template. Normalize rejects it.
	GenericDefinition bool
}

// Key identifies one call shape. Keys are comparable and cheap; equal keys
// guarantee structurally interchangeable marshalling plans.
type Key struct {
	fn reflect.Type
}

// Normalize derives the canonical Key for a shape.
//
// The key is the func type interned by the runtime for (params, results,
// variadic). Interning makes equal shapes yield the identical type
// descriptor, so Key equality is pointer equality and never collides:
// zero-parameter shapes that differ only in result type get distinct keys
// for free.
func Normalize(s Shape) (Key, error) {
	if s.GenericDefinition {
		return Key{}, ErrGenericDefinition
	}
	return Key{fn: reflect.FuncOf(s.Params, s.Results, s.Variadic)}, nil
}

// Func returns the canonical func type the key was built from. The invoker
// compiler derives its whole marshalling plan from this, which is what keeps
// compiled artifacts independent of any particular descriptor.
func (k Key) Func() reflect.Type {
	return k.fn
}

// Zero reports whether k is the zero Key (produced only on Normalize error).
func (k Key) Zero() bool {
	return k.fn == nil
}

// String returns a stable human-readable form, e.g. "func(int, int) int".
// Used by instrumentation hooks and error messages, never as the cache key.
func (k Key) String() string {
	if k.fn == nil {
		return "<zero signature>"
	}
	return k.fn.String()
}
