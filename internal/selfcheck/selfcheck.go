// Package selfcheck contains the diagnostic suites wired into the testrig
// binary. They exercise the invocation engine through its public contract,
// so running the binary doubles as a smoke test of the installation.
package selfcheck

import (
	"errors"
	"fmt"

	"github.com/testrig/testrig/internal/runner"
	"github.com/testrig/testrig/pkg/invoke"
)

// RegisterAll registers every selfcheck suite.
func RegisterAll(reg *runner.Registry) error {
	for _, s := range []any{&EngineSuite{}, &MarshalSuite{}} {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// counter is the invocation target the suites resolve methods on.
type counter struct {
	total int
}

func (c *counter) Add(a, b int) int { return a + b }

func (c *counter) Bump(n int) { c.total += n }

// EngineSuite verifies dispatch, caching and validation.
type EngineSuite struct {
	engine *invoke.Engine
}

func (s *EngineSuite) SetupSuite() error {
	s.engine = invoke.NewEngine()
	return nil
}

func (s *EngineSuite) TestValueRoundTrip() error {
	c := &counter{}
	d, err := invoke.MethodOf(c, "Add")
	if err != nil {
		return err
	}
	res, err := s.engine.InvokeDirect(d, c, []any{2, 3})
	if err != nil {
		return err
	}
	if res != 5 {
		return fmt.Errorf("Add(2, 3) = %v, want 5", res)
	}
	return nil
}

func (s *EngineSuite) TestVoidMarker() error {
	c := &counter{}
	d, err := invoke.MethodOf(c, "Bump")
	if err != nil {
		return err
	}
	res, err := s.engine.InvokeDirect(d, c, []any{4})
	if err != nil {
		return err
	}
	if res != invoke.Void {
		return fmt.Errorf("void method returned %v instead of the void marker", res)
	}
	if c.total != 4 {
		return fmt.Errorf("side effect lost: total = %d", c.total)
	}
	return nil
}

func (s *EngineSuite) TestSignatureReuse() error {
	engine := invoke.NewEngine()
	add, err := invoke.FuncOf(func(a, b int) int { return a + b }, "add")
	if err != nil {
		return err
	}
	mul, err := invoke.FuncOf(func(a, b int) int { return a * b }, "mul")
	if err != nil {
		return err
	}
	if _, err := engine.InvokeDirect(add, nil, []any{1, 2}); err != nil {
		return err
	}
	if _, err := engine.InvokeDirect(mul, nil, []any{3, 4}); err != nil {
		return err
	}
	if n := engine.CompileCount(); n != 1 {
		return fmt.Errorf("two same-shaped functions compiled %d invokers, want 1", n)
	}
	return nil
}

func (s *EngineSuite) TestValidation() error {
	c := &counter{}
	d, err := invoke.MethodOf(c, "Add")
	if err != nil {
		return err
	}
	if _, err := s.engine.InvokeDirect(d, nil, []any{1, 2}); !errors.Is(err, invoke.ErrMissingInstance) {
		return fmt.Errorf("nil instance: got %v, want ErrMissingInstance", err)
	}
	if _, err := s.engine.InvokeDirect(d, c, []any{1}); !errors.Is(err, invoke.ErrArityMismatch) {
		return fmt.Errorf("short argument list: got %v, want ErrArityMismatch", err)
	}
	return nil
}

// MarshalSuite verifies argument conversion behaviour.
type MarshalSuite struct{}

func (s *MarshalSuite) TestLosslessNarrowing() error {
	engine := invoke.NewEngine()
	d, err := invoke.FuncOf(func(b int8) int { return int(b) }, "widen")
	if err != nil {
		return err
	}
	res, err := engine.InvokeDirect(d, nil, []any{int64(42)})
	if err != nil {
		return err
	}
	if res != 42 {
		return fmt.Errorf("widen(int64(42)) = %v, want 42", res)
	}
	if _, err := engine.InvokeDirect(d, nil, []any{int64(400)}); !errors.Is(err, invoke.ErrArgumentTypeMismatch) {
		return fmt.Errorf("overflowing narrow: got %v, want ErrArgumentTypeMismatch", err)
	}
	return nil
}

func (s *MarshalSuite) TestNilForNilableParameter() error {
	engine := invoke.NewEngine()
	d, err := invoke.FuncOf(func(xs []int) int { return len(xs) }, "length")
	if err != nil {
		return err
	}
	res, err := engine.InvokeDirect(d, nil, []any{nil})
	if err != nil {
		return err
	}
	if res != 0 {
		return fmt.Errorf("length(nil) = %v, want 0", res)
	}
	return nil
}
