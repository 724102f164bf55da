package invoke

import (
	"errors"
	"fmt"
	"reflect"
)

// Engine-side failures. All of them are raised synchronously before the
// target method runs and indicate a programming error by the caller, never a
// transient condition; the engine does not retry. Anything that goes wrong
// *inside* the target method is not represented here at all — it reaches the
// caller with its original identity (an error return verbatim, a panic
// unwinding untouched).
var (
	// ErrMissingInstance: an instance-method descriptor was invoked with a
	// nil instance.
	ErrMissingInstance = errors.New("instance method invoked without an instance")

	// ErrUnexpectedInstance: a static descriptor was invoked with an
	// instance.
	ErrUnexpectedInstance = errors.New("static function invoked with an instance")

	// ErrArityMismatch: the argument list does not match the declared
	// parameter count.
	ErrArityMismatch = errors.New("argument count does not match declared parameters")

	// ErrUnsupportedMethodShape: the descriptor describes a shape the engine
	// refuses to compile — an open generic definition, or a result list
	// other than (), (T), (error) or (T, error).
	ErrUnsupportedMethodShape = errors.New("unsupported method shape")

	// ErrArgumentTypeMismatch is the sentinel every *ArgumentTypeError
	// unwraps to.
	ErrArgumentTypeMismatch = errors.New("argument type mismatch")
)

// ReceiverPosition is the Position reported by an ArgumentTypeError when the
// receiver itself, rather than a declared argument, has the wrong type.
const ReceiverPosition = -1

// ArgumentTypeError reports one argument that could not be converted to its
// declared parameter type.
type ArgumentTypeError struct {
	// Position is the zero-based argument index, or ReceiverPosition.
	Position int

	// Expected is the declared parameter type.
	Expected reflect.Type

	// Actual is the supplied argument's type, or nil when the argument was
	// an untyped nil.
	Actual reflect.Type
}

func (e *ArgumentTypeError) Error() string {
	pos := fmt.Sprintf("argument %d", e.Position)
	if e.Position == ReceiverPosition {
		pos = "receiver"
	}
	if e.Actual == nil {
		return fmt.Sprintf("%s: cannot use nil as %s", pos, e.Expected)
	}
	return fmt.Sprintf("%s: cannot use %s as %s", pos, e.Actual, e.Expected)
}

func (e *ArgumentTypeError) Unwrap() error {
	return ErrArgumentTypeMismatch
}
