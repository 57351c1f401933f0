package fixture

import (
	"context"
	"fmt"

	"github.com/kbukum/fixturekit/util"
)

// Resolution is the outcome of resolving a Plan in a scope context.
type Resolution struct {
	instances []*Instance
	byName    map[string]*Instance
}

// Instances returns the resolved instances in resolution order.
func (r *Resolution) Instances() []*Instance {
	return append([]*Instance(nil), r.instances...)
}

// Get returns the value of a fixture visible from the plan's namespace.
func (r *Resolution) Get(name string) (any, bool) {
	inst, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return inst.Value(), true
}

// Instance returns the instance of a fixture visible from the plan's namespace.
func (r *Resolution) Instance(name string) (*Instance, bool) {
	inst, ok := r.byName[name]
	return inst, ok
}

// Names returns the visible fixture names, sorted.
func (r *Resolution) Names() []string {
	return util.SortedKeys(r.byName)
}

// Value returns a resolved fixture converted to T.
func Value[T any](r *Resolution, name string) (T, error) {
	var zero T
	v, ok := r.Get(name)
	if !ok {
		return zero, fmt.Errorf("fixture: %q was not resolved", name)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("fixture: %q is %T, expected %T", name, v, zero)
	}
	return typed, nil
}

// Resolve realizes every fixture of plan, in plan order, starting from sc.
// Each fixture is reused from, or created in, sc.Find(fixture scope).
// Parametrized fixtures take the parameter chosen by sel.
//
// On failure the partial Resolution is returned with the error; instances
// created so far stay registered with their contexts, so closing sc still
// tears down everything already acquired.
func Resolve(ctx context.Context, sc *ScopeContext, plan *Plan, sel Selection) (*Resolution, error) {
	res := &Resolution{byName: make(map[string]*Instance)}
	resolved := make(map[*planNode]*Instance, len(plan.nodes))

	for _, n := range plan.nodes {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		param, err := n.param(sel)
		if err != nil {
			return res, err
		}

		deps := make(map[string]*Instance, len(n.deps))
		for i, d := range n.deps {
			deps[n.depNames[i]] = resolved[d]
		}

		owner := sc.Find(n.e.def.Scope)
		inst, err := owner.acquire(ctx, n, n.cacheKey(sel), param, deps, sc.name)
		if err != nil {
			return res, err
		}

		resolved[n] = inst
		res.instances = append(res.instances, inst)
		if plan.visible[n.e.def.Name] == n {
			res.byName[n.e.def.Name] = inst
		}
	}
	return res, nil
}

// ResolveNames plans names in reg and resolves the first parameter
// combination. Convenient when parametrization is not needed.
func ResolveNames(ctx context.Context, reg *Registry, sc *ScopeContext, names ...string) (*Resolution, error) {
	plan, err := reg.Plan(names...)
	if err != nil {
		return nil, err
	}
	return Resolve(ctx, sc, plan, nil)
}
