package fixture

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/logger"
)

// ContextOption configures a session context tree.
type ContextOption func(*contextShared)

// contextShared is inherited by every context of one session tree.
type contextShared struct {
	log             *logger.Logger
	observer        Observer
	teardownTimeout time.Duration
	sessionID       string
	seq             atomic.Int64
}

// WithLogger sets the logger used for setup and teardown messages.
func WithLogger(l *logger.Logger) ContextOption {
	return func(s *contextShared) { s.log = l }
}

// WithObserver registers an observer for fixture lifecycle events.
func WithObserver(o Observer) ContextOption {
	return func(s *contextShared) { s.observer = o }
}

// WithTeardownTimeout bounds each Close. Zero means no bound.
func WithTeardownTimeout(d time.Duration) ContextOption {
	return func(s *contextShared) { s.teardownTimeout = d }
}

// ScopeContext is one live scope: a session, module, class or single test
// invocation. It owns the instances created in it and tears them down, in
// reverse creation order, when closed.
type ScopeContext struct {
	id     string
	name   string
	scope  Scope
	parent *ScopeContext
	shared *contextShared

	// mu serializes instance creation so broader-scope fixtures are created
	// once even when narrower scopes resolve concurrently.
	mu        sync.Mutex
	closed    bool
	instances map[string]*Instance
	created   []*Instance
	children  []*ScopeContext
	// retireErrs are teardown failures of retired instances, reported by
	// Close.
	retireErrs []error
}

// NewSessionContext creates the root context of a session.
func NewSessionContext(name string, opts ...ContextOption) *ScopeContext {
	shared := &contextShared{}
	for _, opt := range opts {
		opt(shared)
	}
	if shared.log == nil {
		shared.log = logger.WithComponent("fixture")
	}
	root := newScopeContext(Session, name, nil, shared)
	shared.sessionID = root.id
	return root
}

func newScopeContext(scope Scope, name string, parent *ScopeContext, shared *contextShared) *ScopeContext {
	return &ScopeContext{
		id:        uuid.NewString(),
		name:      name,
		scope:     scope,
		parent:    parent,
		shared:    shared,
		instances: make(map[string]*Instance),
	}
}

// ID returns the unique context id.
func (sc *ScopeContext) ID() string { return sc.id }

// Name returns the name given at creation, e.g. a module path or test id.
func (sc *ScopeContext) Name() string { return sc.name }

// Scope returns the scope this context represents.
func (sc *ScopeContext) Scope() Scope { return sc.scope }

// Parent returns the enclosing context, or nil for a session.
func (sc *ScopeContext) Parent() *ScopeContext { return sc.parent }

// Child opens a nested context. scope must be narrower than sc's.
func (sc *ScopeContext) Child(scope Scope, name string) (*ScopeContext, error) {
	if !sc.scope.Wider(scope) {
		return nil, fmt.Errorf("fixture: cannot open %s context inside %s context %q", scope, sc.scope, sc.name)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil, fmt.Errorf("fixture: %s context %q is closed", sc.scope, sc.name)
	}
	child := newScopeContext(scope, name, sc, sc.shared)
	sc.children = append(sc.children, child)
	return child, nil
}

// MustChild is Child that panics on error.
func (sc *ScopeContext) MustChild(scope Scope, name string) *ScopeContext {
	child, err := sc.Child(scope, name)
	if err != nil {
		panic(err)
	}
	return child
}

// Find returns the narrowest context, starting at sc and walking outwards,
// whose scope is at least scope. Fixtures of that scope live there.
func (sc *ScopeContext) Find(scope Scope) *ScopeContext {
	c := sc
	for c.scope < scope && c.parent != nil {
		c = c.parent
	}
	return c
}

// Instances returns the instances created in this context in creation order.
func (sc *ScopeContext) Instances() []*Instance {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]*Instance(nil), sc.created...)
}

// Closed reports whether Close has been called.
func (sc *ScopeContext) Closed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.closed
}

// acquire returns the cached instance for key or creates it. The context
// stays locked while the factory runs.
func (sc *ScopeContext) acquire(ctx context.Context, n *planNode, key string, param *Param, deps map[string]*Instance, node string) (*Instance, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	def := n.e.def
	if sc.closed {
		return nil, errors.Factory(def.Name, fmt.Errorf("%s context %q is closed", sc.scope, sc.name))
	}
	if inst, ok := sc.instances[key]; ok {
		sc.shared.log.Debug("fixture reused", logger.Fields(
			logger.FieldFixture, def.Name,
			logger.FieldScope, def.Scope.String(),
			logger.FieldContextID, sc.id,
		))
		return inst, nil
	}
	sc.retireLocked(ctx, n.e.id())

	inst := &Instance{
		name:      def.Name,
		fixtureID: n.e.id(),
		scope:     def.Scope,
		param:     param,
		contextID: sc.id,
		seq:       sc.shared.seq.Add(1),
		deps:      make([]*Instance, 0, len(deps)),
	}
	for _, d := range deps {
		inst.deps = append(inst.deps, d)
	}
	req := &Request{
		fixture: def.Name,
		scope:   def.Scope,
		param:   param,
		node:    node,
		owner:   sc,
		deps:    deps,
		inst:    inst,
	}

	start := time.Now()
	err := inst.setup(ctx, def, req)
	sc.observe(ctx, PhaseSetup, inst, start, err)

	if err != nil {
		// Finalizers registered before the failure still have to run.
		if inst.hasFinalizers() {
			sc.created = append(sc.created, inst)
		} else {
			inst.state.Store(int32(TornDown))
		}
		sc.shared.log.Debug("fixture setup failed", logger.MergeWithError(logger.Fields(
			logger.FieldFixture, def.Name,
			logger.FieldScope, def.Scope.String(),
		), err))
		return nil, errors.Factory(def.Name, err)
	}

	inst.state.Store(int32(Active))
	sc.instances[key] = inst
	sc.created = append(sc.created, inst)
	sc.shared.log.Debug("fixture created", logger.MergeWithDuration(logger.Fields(
		logger.FieldFixture, def.Name,
		logger.FieldScope, def.Scope.String(),
		logger.FieldContextID, sc.id,
	), time.Since(start)))
	return inst, nil
}

// Close tears the context down: open child contexts first, then every
// owned instance in exact reverse creation order. Teardown runs even when
// ctx is already cancelled; failures are collected and returned joined,
// never stopping the remaining teardowns. Closing twice is a no-op.
func (sc *ScopeContext) Close(ctx context.Context) error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	children := append([]*ScopeContext(nil), sc.children...)
	created := sc.created
	errs := sc.retireErrs
	sc.retireErrs = nil
	sc.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	tctx, cancel := teardownContext(ctx, sc.shared.teardownTimeout)
	defer cancel()

	for i := len(created) - 1; i >= 0; i-- {
		inst := created[i]
		start := time.Now()
		err := inst.teardown(tctx)
		sc.observe(tctx, PhaseTeardown, inst, start, err)
		if err != nil {
			sc.shared.log.Warn("fixture teardown failed", logger.MergeWithError(logger.Fields(
				logger.FieldFixture, inst.name,
				logger.FieldScope, inst.scope.String(),
			), err))
			errs = append(errs, errors.Teardown(inst.name, err))
		}
	}

	if sc.parent != nil {
		sc.parent.detach(sc)
	}
	return stderrors.Join(errs...)
}

// retireLocked keeps at most one live instance per fixture in sc. An
// instance of fixtureID cached under another key (another parameter) is
// torn down together with every instance, here or in a nested context, that
// was built from it. Teardown runs newest first. sc.mu must be held.
func (sc *ScopeContext) retireLocked(ctx context.Context, fixtureID string) {
	var stale []*Instance
	for _, inst := range sc.instances {
		if inst.fixtureID == fixtureID {
			stale = append(stale, inst)
		}
	}
	if len(stale) == 0 {
		return
	}

	match := func(inst *Instance) bool {
		for _, s := range stale {
			if inst == s || inst.dependsOn(s) {
				return true
			}
		}
		return false
	}
	victims := sc.dropLocked(match)
	for _, child := range sc.children {
		victims = append(victims, child.drop(match)...)
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].inst.seq > victims[j].inst.seq })

	tctx, cancel := teardownContext(ctx, sc.shared.teardownTimeout)
	defer cancel()
	for _, v := range victims {
		start := time.Now()
		err := v.inst.teardown(tctx)
		v.owner.observe(tctx, PhaseTeardown, v.inst, start, err)
		sc.shared.log.Debug("fixture retired", logger.Fields(
			logger.FieldFixture, v.inst.name,
			logger.FieldScope, v.inst.scope.String(),
			logger.FieldContextID, v.owner.id,
		))
		if err != nil {
			sc.retireErrs = append(sc.retireErrs, errors.Teardown(v.inst.name, err))
		}
	}
}

type retired struct {
	owner *ScopeContext
	inst  *Instance
}

// drop removes matching instances from sc and its nested contexts.
func (sc *ScopeContext) drop(match func(*Instance) bool) []retired {
	sc.mu.Lock()
	out := sc.dropLocked(match)
	children := append([]*ScopeContext(nil), sc.children...)
	sc.mu.Unlock()

	for _, child := range children {
		out = append(out, child.drop(match)...)
	}
	return out
}

func (sc *ScopeContext) dropLocked(match func(*Instance) bool) []retired {
	var out []retired
	created := make([]*Instance, 0, len(sc.created))
	for _, inst := range sc.created {
		if match(inst) {
			out = append(out, retired{owner: sc, inst: inst})
			continue
		}
		created = append(created, inst)
	}
	if len(out) == 0 {
		return nil
	}
	sc.created = created
	for key, inst := range sc.instances {
		if match(inst) {
			delete(sc.instances, key)
		}
	}
	return out
}

func (sc *ScopeContext) detach(child *ScopeContext) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for i, c := range sc.children {
		if c == child {
			sc.children = append(sc.children[:i], sc.children[i+1:]...)
			return
		}
	}
}

func (sc *ScopeContext) observe(ctx context.Context, phase Phase, inst *Instance, start time.Time, err error) {
	if sc.shared.observer == nil {
		return
	}
	ev := Event{
		Phase:     phase,
		Fixture:   inst.name,
		Scope:     inst.scope,
		ContextID: sc.id,
		SessionID: sc.shared.sessionID,
		Start:     start,
		Duration:  time.Since(start),
		Err:       err,
	}
	if inst.param != nil {
		ev.Param = inst.param.ID
	}
	sc.shared.observer.ObserveFixture(ctx, ev)
}

// teardownContext detaches ctx from cancellation so teardown always runs,
// optionally bounded by timeout.
func teardownContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return detached, func() {}
	}
	return context.WithTimeout(detached, timeout)
}
