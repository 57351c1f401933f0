package fixture

import (
	"context"
	"fmt"

	"github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/util"
)

// Request is handed to a factory while it runs. It exposes the fixtures the
// factory declared, the current parameter, and finalizer registration.
type Request struct {
	fixture string
	scope   Scope
	param   *Param
	node    string
	owner   *ScopeContext
	deps    map[string]*Instance
	inst    *Instance
}

// Fixture returns the name of the fixture being created.
func (r *Request) Fixture() string { return r.fixture }

// Scope returns the scope of the fixture being created.
func (r *Request) Scope() Scope { return r.scope }

// Node returns the name of the context resolution started from, usually
// the test invocation id.
func (r *Request) Node() string { return r.node }

// ContextID returns the id of the context that will own the instance.
func (r *Request) ContextID() string { return r.owner.id }

// Param returns the current parameter of a parametrized fixture.
func (r *Request) Param() (Param, bool) {
	if r.param == nil {
		return Param{}, false
	}
	return *r.param, true
}

// ParamValue returns the current parameter value, or nil.
func (r *Request) ParamValue() any {
	if r.param == nil {
		return nil
	}
	return r.param.Value
}

// Value returns a declared dependency's value.
func (r *Request) Value(name string) (any, error) {
	inst, ok := r.deps[name]
	if !ok {
		return nil, errors.UnknownFixture(name, r.fixture).
			WithDetail("declared", r.Dependencies())
	}
	return inst.Value(), nil
}

// Dependencies returns the declared dependency names, sorted.
func (r *Request) Dependencies() []string {
	return util.SortedKeys(r.deps)
}

// AddFinalizer registers fn to run when the owning scope closes. Finalizers
// run last-in first-out. Call it only while the factory runs.
func (r *Request) AddFinalizer(fn func(ctx context.Context) error) {
	r.inst.addFinalizer(fn)
}

// Get returns a declared dependency converted to T.
func Get[T any](r *Request, name string) (T, error) {
	var zero T
	v, err := r.Value(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("fixture: %q is %T, expected %T", name, v, zero)
	}
	return typed, nil
}

// MustGet is Get that panics on error. A panic inside a factory surfaces as
// a FACTORY_ERROR.
func MustGet[T any](r *Request, name string) T {
	v, err := Get[T](r, name)
	if err != nil {
		panic(err)
	}
	return v
}
