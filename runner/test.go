package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/logger"
)

// TestFunc is the body of a test.
type TestFunc func(ctx context.Context, c *Call) error

// Case is one test-level parametrization.
type Case struct {
	ID    string
	Value any
}

// Cases builds cases whose ids are the formatted values.
func Cases(values ...any) []Case {
	out := make([]Case, len(values))
	for i, v := range values {
		out[i] = Case{ID: fmt.Sprint(v), Value: v}
	}
	return out
}

// Test declares a test: the fixtures it needs and its body. Module and
// Class place it in the scope hierarchy; Module is also the registry
// namespace its fixtures are looked up from.
type Test struct {
	Name     string   `json:"name" validate:"required"`
	Module   string   `json:"module"`
	Class    string   `json:"class"`
	Requires []string `json:"requires" validate:"dive,required,fixturename"`
	Cases    []Case   `json:"cases"`
	Func     TestFunc `json:"-" validate:"required"`
}

// ID returns "module::class::name", omitting empty parts.
func (t Test) ID() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Module, t.Class, t.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "::")
}

// namespace is the registry path fixtures of t are resolved from.
func (t Test) namespace() string {
	if t.Class == "" {
		return t.Module
	}
	return t.Module + "/" + t.Class
}

// ErrSkip marks a test as skipped when returned, possibly wrapped, from
// its body.
var ErrSkip = stderrors.New("test skipped")

// SkipError carries the reason a test was skipped.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

// Is reports SkipError as ErrSkip.
func (e *SkipError) Is(target error) bool { return target == ErrSkip }

// Skip returns an error that marks the test as skipped.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Call is handed to a test body. It exposes the resolved fixtures and the
// current case.
type Call struct {
	id     string
	test   *Test
	c      *Case
	params []string
	res    *fixture.Resolution
	log    *logger.Logger
}

// ID returns the invocation id, e.g. "users::TestAPI::test_get[sqlite-1]".
func (c *Call) ID() string { return c.id }

// Test returns the test being run.
func (c *Call) Test() Test { return *c.test }

// Params returns the ids of the fixture parameters selected for this call.
func (c *Call) Params() []string { return append([]string(nil), c.params...) }

// Case returns the current test case, if the test declares cases.
func (c *Call) Case() (Case, bool) {
	if c.c == nil {
		return Case{}, false
	}
	return *c.c, true
}

// Logger returns a logger tagged with the invocation id.
func (c *Call) Logger() *logger.Logger { return c.log }

// Fixture returns a resolved fixture by name.
func (c *Call) Fixture(name string) (any, error) {
	v, ok := c.res.Get(name)
	if !ok {
		return nil, fmt.Errorf("runner: fixture %q was not requested by %s", name, c.test.ID())
	}
	return v, nil
}

// Get returns a resolved fixture converted to T.
func Get[T any](c *Call, name string) (T, error) {
	var zero T
	v, err := c.Fixture(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("runner: fixture %q is %T, expected %T", name, v, zero)
	}
	return typed, nil
}

// MustGet is Get that panics on error. A panic in a test body fails the
// test.
func MustGet[T any](c *Call, name string) T {
	v, err := Get[T](c, name)
	if err != nil {
		panic(err)
	}
	return v
}

// CaseValue returns the current case value converted to T.
func CaseValue[T any](c *Call) T {
	var zero T
	cs, ok := c.Case()
	if !ok {
		return zero
	}
	v, _ := cs.Value.(T)
	return v
}
