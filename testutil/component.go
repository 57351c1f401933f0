package testutil

import (
	"context"
	"fmt"

	"github.com/kbukum/fixturekit/fixture"
)

// Component is a lifecycle-managed test dependency such as an in-memory
// store or an httptest server.
type Component interface {
	// Name returns the component name used in error messages.
	Name() string

	// Start initializes the component.
	Start(ctx context.Context) error

	// Stop releases the component's resources.
	Stop(ctx context.Context) error
}

// Resetter is optionally implemented by components that can return to
// their initial state without a restart.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ComponentFactory builds a component from a fixture request.
type ComponentFactory func(ctx context.Context, req *fixture.Request) (Component, error)

// ComponentFixture wraps a component as a two-phase fixture: the component
// is started during setup, yielded as the fixture value, and stopped when
// the owning scope closes.
//
// Example:
//
//	reg.MustRegister(testutil.ComponentFixture("db", func(ctx context.Context, req *fixture.Request) (testutil.Component, error) {
//	    return memdb.New(), nil
//	}, fixture.WithScope(fixture.Session)))
func ComponentFixture(name string, build ComponentFactory, opts ...fixture.Option) fixture.Definition {
	return fixture.NewProducer(name, func(ctx context.Context, req *fixture.Request, yield fixture.Yield) error {
		comp, err := build(ctx, req)
		if err != nil {
			return err
		}
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("failed to start component %s: %w", comp.Name(), err)
		}

		tctx := yield(comp)

		if err := comp.Stop(tctx); err != nil {
			return fmt.Errorf("failed to stop component %s: %w", comp.Name(), err)
		}
		return nil
	}, opts...)
}

// ResetFixture registers a function-scoped autouse fixture that resets the
// named component after every test, so a component shared across a wider
// scope starts each test clean. The component must implement Resetter.
func ResetFixture(name, component string) fixture.Definition {
	return fixture.New(name, func(_ context.Context, req *fixture.Request) (any, error) {
		v, err := req.Value(component)
		if err != nil {
			return nil, err
		}
		r, ok := v.(Resetter)
		if !ok {
			return nil, fmt.Errorf("component %s does not implement Resetter", component)
		}
		req.AddFinalizer(r.Reset)
		return r, nil
	}, fixture.Requires(component), fixture.Autouse())
}
