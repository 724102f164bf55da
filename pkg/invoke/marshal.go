package invoke

import (
	"fmt"
	"math"
	"reflect"

	"github.com/testrig/testrig/internal/signature"
)

// Void is the result of invoking a method that returns no value. It is a
// distinguished marker, never nil, so callers can always tell "the method
// returned nil" apart from "the method returns nothing".
var Void = voidMarker{}

type voidMarker struct{}

func (voidMarker) String() string { return "<void>" }

// converter turns one raw argument into a reflect.Value of its declared
// parameter type. Converters are compiled once per signature key and shared
// by every method of that shape.
type converter func(pos int, arg any) (reflect.Value, error)

// invoker is the compiled artifact cached per signature key. It is derived
// from the key alone — never from a particular descriptor — which is what
// makes it interchangeable across every method sharing the shape. The
// descriptor arrives at call time.
type invoker struct {
	key      signature.Key
	fixed    []converter // one per declared parameter
	tail     converter   // variadic element converter, nil otherwise
	variadic bool
	retIndex int
	errIndex int
}

// compileInvoker synthesizes the marshalling plan for one shape. It has no
// side effects beyond producing the artifact, so a racing duplicate is safe
// to discard.
func compileInvoker(key signature.Key) *invoker {
	ft := key.Func()
	inv := &invoker{
		key:      key,
		variadic: ft.IsVariadic(),
	}

	n := ft.NumIn()
	fixed := n
	if inv.variadic {
		fixed = n - 1
		inv.tail = compileConverter(ft.In(n - 1).Elem())
	}
	inv.fixed = make([]converter, fixed)
	for i := 0; i < fixed; i++ {
		inv.fixed[i] = compileConverter(ft.In(i))
	}

	results := make([]reflect.Type, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		results = append(results, ft.Out(i))
	}
	// The shape was validated at descriptor construction; a key can only
	// reach the compiler through a descriptor that passed resultPlan.
	inv.retIndex, inv.errIndex, _ = resultPlan(results)
	return inv
}

// marshal materializes the call frame: the receiver (for instance methods)
// followed by every argument converted to its declared parameter type.
// Variadic tails are converted element-wise and passed flattened.
func (inv *invoker) marshal(d *Descriptor, instance any, args []any) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, len(args)+1)
	if !d.static {
		recv := reflect.ValueOf(instance)
		want := d.fn.Type().In(0)
		if !recv.Type().AssignableTo(want) {
			return nil, &ArgumentTypeError{Position: ReceiverPosition, Expected: want, Actual: recv.Type()}
		}
		in = append(in, recv)
	}

	fixed := len(inv.fixed)
	for i := 0; i < fixed && i < len(args); i++ {
		v, err := inv.fixed[i](i, args[i])
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}
	if inv.variadic {
		for i := fixed; i < len(args); i++ {
			v, err := inv.tail(i, args[i])
			if err != nil {
				return nil, err
			}
			in = append(in, v)
		}
	}
	return in, nil
}

// unmarshal hands back what the target returned. A non-nil trailing error is
// returned verbatim — no wrapping, so the caller's errors.Is/errors.As see
// the target's own error values. A method with no value result yields Void.
func (inv *invoker) unmarshal(out []reflect.Value) (any, error) {
	if inv.errIndex >= 0 {
		if ev := out[inv.errIndex]; !ev.IsNil() {
			return nil, ev.Interface().(error)
		}
	}
	if inv.retIndex < 0 {
		return Void, nil
	}
	return out[inv.retIndex].Interface(), nil
}

// resultPlan maps a declared result list onto the engine's single
// result-or-error contract: (), (T), (error) and (T, error) are accepted.
func resultPlan(results []reflect.Type) (retIndex, errIndex int, err error) {
	switch len(results) {
	case 0:
		return -1, -1, nil
	case 1:
		if results[0] == errorType {
			return -1, 0, nil
		}
		return 0, -1, nil
	case 2:
		if results[1] == errorType {
			return 0, 1, nil
		}
	}
	return -1, -1, fmt.Errorf("results must be (), (T), (error) or (T, error): %w", ErrUnsupportedMethodShape)
}

// compileConverter builds the per-position conversion closure for one
// declared parameter type. Assignable values pass through; untyped nil maps
// to the zero value of nil-able kinds; numeric narrowing is allowed only
// when the specific value survives the round trip, so no argument is ever
// silently truncated.
func compileConverter(t reflect.Type) converter {
	nilable := isNilable(t.Kind())
	return func(pos int, arg any) (reflect.Value, error) {
		if arg == nil {
			if nilable {
				return reflect.Zero(t), nil
			}
			return reflect.Value{}, &ArgumentTypeError{Position: pos, Expected: t}
		}
		v := reflect.ValueOf(arg)
		if v.Type().AssignableTo(t) {
			return v, nil
		}
		if nv, ok := narrowNumeric(v, t); ok {
			return nv, nil
		}
		return reflect.Value{}, &ArgumentTypeError{Position: pos, Expected: t, Actual: v.Type()}
	}
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// narrowNumeric converts v to the numeric type t when the value fits without
// loss. Overflow, sign loss and precision loss all refuse the conversion.
func narrowNumeric(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	sk, tk := v.Kind(), t.Kind()
	zero := reflect.Zero(t)

	switch {
	case isIntKind(sk) && isIntKind(tk):
		if zero.OverflowInt(v.Int()) {
			return reflect.Value{}, false
		}

	case isIntKind(sk) && isUintKind(tk):
		x := v.Int()
		if x < 0 || zero.OverflowUint(uint64(x)) {
			return reflect.Value{}, false
		}

	case isUintKind(sk) && isIntKind(tk):
		u := v.Uint()
		if u > math.MaxInt64 || zero.OverflowInt(int64(u)) {
			return reflect.Value{}, false
		}

	case isUintKind(sk) && isUintKind(tk):
		if zero.OverflowUint(v.Uint()) {
			return reflect.Value{}, false
		}

	case isFloatKind(sk) && isFloatKind(tk):
		f := v.Float()
		if zero.OverflowFloat(f) {
			return reflect.Value{}, false
		}
		if tk == reflect.Float32 && float64(float32(f)) != f {
			return reflect.Value{}, false
		}

	case isIntKind(sk) && isFloatKind(tk):
		// Exact only while the integer fits in the float mantissa.
		x := v.Int()
		limit := int64(1) << 53
		if tk == reflect.Float32 {
			limit = 1 << 24
		}
		if x > limit || x < -limit {
			return reflect.Value{}, false
		}

	case isUintKind(sk) && isFloatKind(tk):
		u := v.Uint()
		limit := uint64(1) << 53
		if tk == reflect.Float32 {
			limit = 1 << 24
		}
		if u > limit {
			return reflect.Value{}, false
		}

	case isFloatKind(sk) && isIntKind(tk):
		f := v.Float()
		if math.Trunc(f) != f || f < math.MinInt64 || f >= math.MaxInt64 {
			return reflect.Value{}, false
		}
		if zero.OverflowInt(int64(f)) {
			return reflect.Value{}, false
		}

	case isFloatKind(sk) && isUintKind(tk):
		f := v.Float()
		if math.Trunc(f) != f || f < 0 || f >= math.MaxUint64 {
			return reflect.Value{}, false
		}
		if zero.OverflowUint(uint64(f)) {
			return reflect.Value{}, false
		}

	default:
		return reflect.Value{}, false
	}

	return v.Convert(t), true
}
