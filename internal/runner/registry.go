// Package runner orchestrates test suites over the invocation engine.
//
// It owns everything the engine deliberately leaves out: which methods to
// call and in what order, suite and case lifecycle, repeat counts, timeout
// enforcement, worker scheduling and result aggregation. The engine is
// consumed strictly through its public contract; every failure surfacing
// from an invocation is treated as coming from the target method itself.
package runner

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/testrig/testrig/pkg/invoke"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Suite groups the discovered cases of one registered instance.
type Suite struct {
	Name     string
	Instance any
	Cases    []Case
}

// Case is one invokable test method of a suite.
type Case struct {
	Suite      string
	Name       string
	Descriptor *invoke.Descriptor
}

// Optional lifecycle hooks a suite instance may implement. Setup failures
// fail the affected cases; teardown failures are reported as synthetic
// results so they never mask the case outcomes.
type (
	SuiteSetup    interface{ SetupSuite() error }
	SuiteTeardown interface{ TeardownSuite() error }
	CaseSetup     interface{ Setup() error }
	CaseTeardown  interface{ Teardown() error }
)

// lifecycleNames are never discovered as cases even if prefixed oddly.
var lifecycleNames = map[string]bool{
	"SetupSuite": true, "TeardownSuite": true, "Setup": true, "Teardown": true,
}

// Registry holds registered suites. Not safe for concurrent registration;
// register everything up front, then run.
type Registry struct {
	suites []*Suite
	byName map[string]*Suite
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Suite)}
}

// Register discovers the test cases of instance and adds them as a suite.
//
// A test case is an exported method named Test* that declares no parameters
// and returns either nothing or a single error. Methods of any other shape
// are skipped silently, mirroring how the instance's other methods are just
// helpers. The suite name is the instance's type name.
func (r *Registry) Register(instance any) error {
	if instance == nil {
		return fmt.Errorf("cannot register a nil suite")
	}
	t := reflect.TypeOf(instance)
	name := suiteName(t)
	if name == "" {
		return fmt.Errorf("cannot derive a suite name from %s; use a named type", t)
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("suite %q is already registered", name)
	}

	s := &Suite{Name: name, Instance: instance}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, "Test") || lifecycleNames[m.Name] {
			continue
		}
		ft := m.Func.Type()
		if ft.NumIn() != 1 { // receiver only
			continue
		}
		if ft.NumOut() > 1 || (ft.NumOut() == 1 && ft.Out(0) != errorType) {
			continue
		}
		d, err := invoke.MethodOf(instance, m.Name)
		if err != nil {
			return fmt.Errorf("suite %s: %w", name, err)
		}
		s.Cases = append(s.Cases, Case{Suite: name, Name: m.Name, Descriptor: d})
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("suite %q declares no test methods", name)
	}
	sort.Slice(s.Cases, func(i, j int) bool { return s.Cases[i].Name < s.Cases[j].Name })

	r.suites = append(r.suites, s)
	r.byName[name] = s
	return nil
}

// Suites returns the registered suites in registration order.
func (r *Registry) Suites() []*Suite {
	return r.suites
}

// Len returns the total number of discovered cases.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.suites {
		n += len(s.Cases)
	}
	return n
}

func suiteName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
