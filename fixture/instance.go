package fixture

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of an Instance.
type State int32

const (
	Pending State = iota
	Active
	TornDown
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case TornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Instance is a realized fixture value owned by exactly one ScopeContext.
type Instance struct {
	name      string
	fixtureID string
	scope     Scope
	param     *Param
	contextID string
	seq       int64
	// deps are the instances this one was built from.
	deps []*Instance

	value any
	state atomic.Int32

	mu         sync.Mutex
	finalizers []func(context.Context) error
}

// Name returns the fixture name.
func (i *Instance) Name() string { return i.name }

// FixtureID returns the id of the definition the instance came from.
func (i *Instance) FixtureID() string { return i.fixtureID }

// Scope returns the fixture scope.
func (i *Instance) Scope() Scope { return i.scope }

// Value returns the fixture value.
func (i *Instance) Value() any { return i.value }

// Param returns the parameter the instance was created with.
func (i *Instance) Param() (Param, bool) {
	if i.param == nil {
		return Param{}, false
	}
	return *i.param, true
}

// ContextID returns the id of the owning ScopeContext.
func (i *Instance) ContextID() string { return i.contextID }

// Seq returns the creation sequence number, unique within a session.
func (i *Instance) Seq() int64 { return i.seq }

// State returns the lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

// dependsOn reports whether target is in the instance's dependency closure.
func (i *Instance) dependsOn(target *Instance) bool {
	for _, d := range i.deps {
		if d == target || d.dependsOn(target) {
			return true
		}
	}
	return false
}

func (i *Instance) addFinalizer(fn func(context.Context) error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.finalizers = append(i.finalizers, fn)
}

func (i *Instance) hasFinalizers() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.finalizers) > 0
}

// setup runs the definition's factory or producer.
func (i *Instance) setup(ctx context.Context, def Definition, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	if def.Factory != nil {
		i.value, err = def.Factory(ctx, req)
		return err
	}

	value, resume, err := startProducer(ctx, def.Producer, req)
	if err != nil {
		return err
	}
	i.value = value
	i.addFinalizer(resume)
	return nil
}

// teardown runs finalizers last-in first-out. Every finalizer runs even if
// an earlier one fails.
func (i *Instance) teardown(ctx context.Context) error {
	if State(i.state.Swap(int32(TornDown))) == TornDown {
		return nil
	}

	i.mu.Lock()
	fns := i.finalizers
	i.finalizers = nil
	i.mu.Unlock()

	var errs []error
	for j := len(fns) - 1; j >= 0; j-- {
		if err := runFinalizer(ctx, fns[j]); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func runFinalizer(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn(ctx)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
