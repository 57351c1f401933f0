package fixture

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/util"
)

// PlannedFixture describes one fixture of a Plan.
type PlannedFixture struct {
	// ID identifies the definition: namespace path and name.
	ID        string
	Name      string
	Namespace string
	Scope     Scope
	Autouse   bool
	Requires  []string
	Params    []Param
}

// Selection picks a parameter index for parametrized fixtures, keyed by
// PlannedFixture.ID. Missing entries select index 0.
type Selection map[string]int

type planNode struct {
	e    *entry
	deps []*planNode
	// depNames[i] is the name under which deps[i] was requested.
	depNames []string
	rank     int
	// paramIDs are the ids of every parametrized fixture in this node's
	// closure, itself included; they key the cached instance.
	paramIDs []string
}

// Plan is the dependency graph of one set of requirements, flattened into
// resolution order. Plans are immutable and may be reused across scopes.
type Plan struct {
	namespace string
	requested []string
	nodes     []*planNode
	visible   map[string]*planNode
}

// Plan builds the resolution plan for requires as seen from this namespace.
// Autouse fixtures are requested first. It fails with UNKNOWN_FIXTURE,
// CYCLIC_DEPENDENCY or SCOPE_MISMATCH.
func (r *Registry) Plan(requires ...string) (*Plan, error) {
	r.tree.mu.RLock()
	defer r.tree.mu.RUnlock()

	roots := util.Unique(append(r.autouseLocked(), requires...))
	b := &planBuilder{
		ns:    r,
		nodes: make(map[*entry]*planNode),
		state: make(map[*entry]visitState),
	}
	for _, name := range roots {
		e := r.lookupLocked(name)
		if e == nil {
			return nil, errors.UnknownFixture(name, "")
		}
		if _, err := b.visit(e); err != nil {
			return nil, err
		}
	}

	p := &Plan{
		namespace: r.path,
		requested: roots,
		nodes:     b.sort(),
		visible:   make(map[string]*planNode),
	}
	for _, n := range p.nodes {
		if r.lookupLocked(n.e.def.Name) == n.e {
			p.visible[n.e.def.Name] = n
		}
	}
	return p, nil
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

type planBuilder struct {
	ns     *Registry
	nodes  map[*entry]*planNode
	state  map[*entry]visitState
	stack  []*entry
	ranked int
}

func (b *planBuilder) visit(e *entry) (*planNode, error) {
	if b.state[e] == visited {
		return b.nodes[e], nil
	}

	b.state[e] = visiting
	b.stack = append(b.stack, e)
	n := &planNode{e: e, rank: b.ranked}
	b.ranked++
	b.nodes[e] = n

	for _, name := range e.def.Requires {
		dep := b.dependency(e, name)
		if dep == nil {
			return nil, errors.UnknownFixture(name, e.def.Name)
		}
		if b.state[dep] == visiting {
			return nil, errors.CyclicDependency(b.cycle(dep))
		}
		if e.def.Scope.Wider(dep.def.Scope) {
			return nil, errors.ScopeMismatch(e.def.Name, e.def.Scope.String(), name, dep.def.Scope.String())
		}
		dn, err := b.visit(dep)
		if err != nil {
			return nil, err
		}
		n.deps = append(n.deps, dn)
		n.depNames = append(n.depNames, name)
	}

	b.stack = b.stack[:len(b.stack)-1]
	b.state[e] = visited
	return n, nil
}

// dependency looks name up from the namespace being planned. A fixture
// requesting its own name gets the definition it overrides.
func (b *planBuilder) dependency(from *entry, name string) *entry {
	if name == from.def.Name {
		if from.ns.parent == nil {
			return nil
		}
		return from.ns.parent.lookupLocked(name)
	}
	return b.ns.lookupLocked(name)
}

func (b *planBuilder) cycle(back *entry) []string {
	start := 0
	for i, e := range b.stack {
		if e == back {
			start = i
			break
		}
	}
	names := make([]string, 0, len(b.stack)-start+1)
	for _, e := range b.stack[start:] {
		names = append(names, e.def.Name)
	}
	return append(names, back.def.Name)
}

// sort orders the graph with Kahn's algorithm, picking among ready
// fixtures with before.
func (b *planBuilder) sort() []*planNode {
	all := make([]*planNode, 0, len(b.nodes))
	for _, n := range b.nodes {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].rank < all[j].rank })

	inDegree := make(map[*planNode]int, len(all))
	dependents := make(map[*planNode][]*planNode)
	var ready []*planNode
	for _, n := range all {
		inDegree[n] = len(n.deps)
		for _, d := range n.deps {
			dependents[d] = append(dependents[d], n)
		}
		if len(n.deps) == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]*planNode, 0, len(all))
	for len(ready) > 0 {
		best := 0
		for i, n := range ready[1:] {
			if before(n, ready[best]) {
				best = i + 1
			}
		}
		n := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, n)

		n.paramIDs = closureParams(n)
		for _, d := range dependents[n] {
			inDegree[d]--
			if inDegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return order
}

// before orders ready fixtures: widest scope, then declaration order of
// the requirements, then registration order.
func before(a, b *planNode) bool {
	if a.e.def.Scope != b.e.def.Scope {
		return a.e.def.Scope.Wider(b.e.def.Scope)
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.e.seq < b.e.seq
}

func closureParams(n *planNode) []string {
	set := make(map[string]struct{})
	if len(n.e.def.Params) > 0 {
		set[n.e.id()] = struct{}{}
	}
	for _, d := range n.deps {
		for _, id := range d.paramIDs {
			set[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Namespace returns the path of the namespace the plan was built in.
func (p *Plan) Namespace() string { return p.namespace }

// Requested returns the root requirements, autouse fixtures first.
func (p *Plan) Requested() []string { return append([]string(nil), p.requested...) }

// Names returns fixture names in resolution order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		names[i] = n.e.def.Name
	}
	return names
}

// Fixtures describes the fixtures in resolution order.
func (p *Plan) Fixtures() []PlannedFixture {
	out := make([]PlannedFixture, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.describe()
	}
	return out
}

// Parametrized returns the parametrized fixtures in resolution order.
func (p *Plan) Parametrized() []PlannedFixture {
	var out []PlannedFixture
	for _, n := range p.nodes {
		if len(n.e.def.Params) > 0 {
			out = append(out, n.describe())
		}
	}
	return out
}

// Combinations enumerates every selection of the plan's parametrized
// fixtures, first fixture varying slowest. A plan without parametrized
// fixtures has exactly one, empty, combination.
func (p *Plan) Combinations() []Selection {
	combos := []Selection{{}}
	for _, pf := range p.Parametrized() {
		next := make([]Selection, 0, len(combos)*len(pf.Params))
		for _, c := range combos {
			for i := range pf.Params {
				s := make(Selection, len(c)+1)
				for k, v := range c {
					s[k] = v
				}
				s[pf.ID] = i
				next = append(next, s)
			}
		}
		combos = next
	}
	return combos
}

// ParamIDs returns the parameter ids picked by sel, in resolution order.
func (p *Plan) ParamIDs(sel Selection) []string {
	var ids []string
	for _, n := range p.nodes {
		if len(n.e.def.Params) == 0 {
			continue
		}
		if param, err := n.param(sel); err == nil {
			ids = append(ids, param.ID)
		}
	}
	return ids
}

func (n *planNode) describe() PlannedFixture {
	d := n.e.def
	return PlannedFixture{
		ID:        n.e.id(),
		Name:      d.Name,
		Namespace: n.e.ns.path,
		Scope:     d.Scope,
		Autouse:   d.Autouse,
		Requires:  append([]string(nil), d.Requires...),
		Params:    append([]Param(nil), d.Params...),
	}
}

func (n *planNode) param(sel Selection) (*Param, error) {
	params := n.e.def.Params
	if len(params) == 0 {
		return nil, nil
	}
	idx := sel[n.e.id()]
	if idx < 0 || idx >= len(params) {
		return nil, errors.InvalidInput("selection",
			fmt.Sprintf("param index %d out of range for fixture %q (%d params)", idx, n.e.def.Name, len(params)))
	}
	p := params[idx]
	return &p, nil
}

// cacheKey identifies an instance within a scope context: the definition
// plus the parameters chosen for every parametrized fixture it depends on.
func (n *planNode) cacheKey(sel Selection) string {
	if len(n.paramIDs) == 0 {
		return n.e.id()
	}
	parts := make([]string, 0, len(n.paramIDs))
	for _, id := range n.paramIDs {
		parts = append(parts, fmt.Sprintf("%s=%d", id, sel[id]))
	}
	return n.e.id() + "[" + strings.Join(parts, ",") + "]"
}
