package fixture

import (
	"context"
	"fmt"

	"github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/validation"
)

// Factory produces a fixture value in a single phase. Cleanup, if any, is
// registered through Request.AddFinalizer.
type Factory func(ctx context.Context, req *Request) (any, error)

// Yield hands the setup value to the resolver and blocks until the owning
// scope closes. It returns the context the teardown phase should use; that
// context is not cancelled when the test is.
type Yield func(value any) context.Context

// Producer produces a fixture value in two phases: everything before yield
// is setup, everything after it is teardown.
type Producer func(ctx context.Context, req *Request, yield Yield) error

// Param is one value of a parametrized fixture.
type Param struct {
	ID    string
	Value any
}

// Params builds parameters whose ids are the formatted values.
func Params(values ...any) []Param {
	out := make([]Param, len(values))
	for i, v := range values {
		out[i] = Param{ID: fmt.Sprint(v), Value: v}
	}
	return out
}

// Definition describes a fixture. It is copied on registration and never
// mutated afterwards.
type Definition struct {
	Name     string   `json:"name" validate:"required,fixturename"`
	Scope    Scope    `json:"scope"`
	Autouse  bool     `json:"autouse"`
	Requires []string `json:"requires" validate:"dive,required,fixturename"`
	Params   []Param  `json:"params"`
	Factory  Factory  `json:"-"`
	Producer Producer `json:"-"`
}

// Option configures a Definition built by New or NewProducer.
type Option func(*Definition)

// WithScope sets the fixture scope. The default is Function.
func WithScope(s Scope) Option {
	return func(d *Definition) { d.Scope = s }
}

// Autouse injects the fixture into every resolution within its namespace.
func Autouse() Option {
	return func(d *Definition) { d.Autouse = true }
}

// Requires declares the fixtures this fixture depends on.
func Requires(names ...string) Option {
	return func(d *Definition) { d.Requires = append(d.Requires, names...) }
}

// WithParams parametrizes the fixture. Tests using it run once per param.
func WithParams(params ...Param) Option {
	return func(d *Definition) { d.Params = append(d.Params, params...) }
}

// New builds a single-phase fixture definition.
func New(name string, factory Factory, opts ...Option) Definition {
	d := Definition{Name: name, Factory: factory}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// NewProducer builds a two-phase fixture definition.
func NewProducer(name string, producer Producer, opts ...Option) Definition {
	d := Definition{Name: name, Producer: producer}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Const returns a factory that always yields v.
func Const(v any) Factory {
	return func(context.Context, *Request) (any, error) { return v, nil }
}

// Validate checks the definition for registration.
func (d Definition) Validate() error {
	if err := validation.Validate(d); err != nil {
		return errors.InvalidDefinition(d.Name, err.Error()).WithCause(err)
	}

	ids := make([]string, len(d.Params))
	for i, p := range d.Params {
		ids[i] = p.ID
	}
	v := validation.New().
		Check(d.Scope.Valid(), "scope", "must be function, class, module or session").
		Check((d.Factory == nil) != (d.Producer == nil), "factory", "exactly one of factory or producer is required").
		Unique("requires", d.Requires).
		Unique("params", ids)
	for _, id := range ids {
		v.Check(id != "", "params", "ids must not be empty")
	}
	if err := v.Validate(); err != nil {
		return errors.InvalidDefinition(d.Name, err.Error()).WithCause(err)
	}
	return nil
}

func (d Definition) clone() Definition {
	c := d
	c.Requires = append([]string(nil), d.Requires...)
	c.Params = append([]Param(nil), d.Params...)
	return c
}
