package fixture

import (
	"strings"
	"sync"

	"github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/util"
)

// RootNamespace is the path of the registry returned by NewRegistry.
const RootNamespace = "root"

// entry is a registered definition plus its position in declaration order.
type entry struct {
	def Definition
	seq int
	ns  *Registry
}

func (e *entry) id() string { return e.ns.path + "::" + e.def.Name }

// registryTree holds state shared by every namespace of one registry.
type registryTree struct {
	mu  sync.RWMutex
	seq int
}

// Registry holds fixture definitions in a namespace. Namespaces form a tree
// mirroring the levels at which fixtures are declared (project, package,
// module); a namespace sees its own definitions and those of its ancestors.
type Registry struct {
	tree     *registryTree
	path     string
	parent   *Registry
	defs     map[string]*entry
	order    []*entry
	children map[string]*Registry
}

// NewRegistry creates an empty root namespace.
func NewRegistry() *Registry {
	return newNamespace(&registryTree{}, RootNamespace, nil)
}

func newNamespace(tree *registryTree, path string, parent *Registry) *Registry {
	return &Registry{
		tree:     tree,
		path:     path,
		parent:   parent,
		defs:     make(map[string]*entry),
		children: make(map[string]*Registry),
	}
}

// Path returns the namespace path, e.g. "root/users/api".
func (r *Registry) Path() string { return r.path }

// Parent returns the enclosing namespace, or nil for the root.
func (r *Registry) Parent() *Registry { return r.parent }

// Namespace returns the child namespace at path, creating it if needed.
// Segments are separated by "/"; an empty path returns r.
func (r *Registry) Namespace(path string) *Registry {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	ns := r
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		child, ok := ns.children[seg]
		if !ok {
			child = newNamespace(r.tree, ns.path+"/"+seg, ns)
			ns.children[seg] = child
		}
		ns = child
	}
	return ns
}

// RegisterOption configures a Register call.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	override bool
}

// Override allows a definition to shadow a fixture of the same name that
// is already visible from this namespace.
func Override() RegisterOption {
	return func(o *registerOptions) { o.override = true }
}

// Register validates def and adds it to the namespace. It fails with a
// DUPLICATE_NAME error when the name is already visible here or in an
// enclosing namespace, unless Override is given.
func (r *Registry) Register(def Definition, opts ...RegisterOption) error {
	if err := def.Validate(); err != nil {
		return err
	}
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	if existing := r.lookupLocked(def.Name); existing != nil {
		if !o.override || existing.ns == r {
			return errors.DuplicateName(def.Name, existing.ns.path)
		}
	}

	r.tree.seq++
	e := &entry{def: def.clone(), seq: r.tree.seq, ns: r}
	r.defs[def.Name] = e
	r.order = append(r.order, e)
	return nil
}

// MustRegister is Register that panics on error. Intended for static setup.
func (r *Registry) MustRegister(def Definition, opts ...RegisterOption) {
	if err := r.Register(def, opts...); err != nil {
		panic(err)
	}
}

// Lookup returns the definition visible under name from this namespace.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.tree.mu.RLock()
	defer r.tree.mu.RUnlock()
	e := r.lookupLocked(name)
	if e == nil {
		return Definition{}, false
	}
	return e.def.clone(), true
}

func (r *Registry) lookupLocked(name string) *entry {
	for ns := r; ns != nil; ns = ns.parent {
		if e, ok := ns.defs[name]; ok {
			return e
		}
	}
	return nil
}

// Names returns every fixture name visible from this namespace, sorted.
func (r *Registry) Names() []string {
	r.tree.mu.RLock()
	defer r.tree.mu.RUnlock()

	seen := make(map[string]struct{})
	for ns := r; ns != nil; ns = ns.parent {
		for name := range ns.defs {
			seen[name] = struct{}{}
		}
	}
	return util.SortedKeys(seen)
}

// Autouse returns the names of autouse fixtures visible from this
// namespace, outermost namespace first, each in declaration order. A name
// shadowed by a non-autouse definition is not included.
func (r *Registry) Autouse() []string {
	r.tree.mu.RLock()
	defer r.tree.mu.RUnlock()
	return r.autouseLocked()
}

func (r *Registry) autouseLocked() []string {
	var chain []*Registry
	for ns := r; ns != nil; ns = ns.parent {
		chain = append(chain, ns)
	}

	var names []string
	seen := make(map[string]struct{})
	for i := len(chain) - 1; i >= 0; i-- {
		for _, e := range chain[i].order {
			if !e.def.Autouse {
				continue
			}
			if _, dup := seen[e.def.Name]; dup {
				continue
			}
			if r.lookupLocked(e.def.Name) != e {
				continue
			}
			seen[e.def.Name] = struct{}{}
			names = append(names, e.def.Name)
		}
	}
	return names
}
