package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/fixturekit/config"
	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/validation"
)

// errStopped is the skip cause of invocations not started after a
// fail-fast stop.
var errStopped = stderrors.New("run stopped after an earlier failure")

// Session runs tests against one registry. Each Run gets its own session
// scope context, so session-scoped fixtures are shared by the tests of one
// Run and never across runs.
type Session struct {
	name            string
	reg             *fixture.Registry
	log             *logger.Logger
	reporters       MultiReporter
	observer        fixture.Observer
	parallelism     int
	failFast        bool
	teardownTimeout time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Fixture messages use the same
// logger tagged with the fixture component.
func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithReporter adds reporters.
func WithReporter(rs ...Reporter) Option {
	return func(s *Session) { s.reporters = append(s.reporters, rs...) }
}

// WithObserver sets the fixture lifecycle observer.
func WithObserver(o fixture.Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithParallelism bounds how many invocations of one class or module group
// run at once. Values below 1 mean sequential.
func WithParallelism(n int) Option {
	return func(s *Session) { s.parallelism = n }
}

// WithFailFast skips every invocation not yet started once one fails.
func WithFailFast(on bool) Option {
	return func(s *Session) { s.failFast = on }
}

// WithTeardownTimeout bounds each scope context teardown.
func WithTeardownTimeout(d time.Duration) Option {
	return func(s *Session) { s.teardownTimeout = d }
}

// WithConfig applies runner settings loaded by the config package.
func WithConfig(cfg config.RunnerConfig) Option {
	return func(s *Session) {
		s.parallelism = cfg.Parallelism
		s.failFast = cfg.FailFast
		s.teardownTimeout = cfg.TeardownTimeout
	}
}

// NewSession creates a Session named name over reg.
func NewSession(name string, reg *fixture.Registry, opts ...Option) *Session {
	s := &Session{name: name, reg: reg, parallelism: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.WithComponent("runner")
	}
	if s.parallelism < 1 {
		s.parallelism = 1
	}
	return s
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Registry returns the registry tests resolve fixtures from.
func (s *Session) Registry() *fixture.Registry { return s.reg }

// Run executes tests and returns the report. The error is non-nil only when
// tests are malformed; test failures, fixture errors and teardown errors
// are recorded in the report.
func (s *Session) Run(ctx context.Context, tests []Test) (*Report, error) {
	if err := validateTests(tests); err != nil {
		return nil, err
	}

	opts := []fixture.ContextOption{
		fixture.WithLogger(s.log.WithComponent("fixture")),
		fixture.WithTeardownTimeout(s.teardownTimeout),
	}
	if s.observer != nil {
		opts = append(opts, fixture.WithObserver(s.observer))
	}
	sc := fixture.NewSessionContext(s.name, opts...)

	rep := &Report{Session: s.name, SessionID: sc.ID(), Start: time.Now()}
	s.reporters.SessionStarted(ctx, SessionInfo{Name: s.name, ID: sc.ID(), Tests: len(tests)})

	r := &run{s: s, report: rep}
	for _, mod := range groupTests(tests) {
		r.runModule(ctx, sc, mod)
	}
	if err := sc.Close(ctx); err != nil {
		r.teardownFailed(err)
	}

	rep.Duration = time.Since(rep.Start)
	s.reporters.SessionFinished(ctx, rep)
	return rep, nil
}

// Plan returns the resolution plan of t as Run would build it.
func (s *Session) Plan(t Test) (*fixture.Plan, error) {
	return s.reg.Namespace(t.namespace()).Plan(t.Requires...)
}

func validateTests(tests []Test) error {
	ids := make([]string, len(tests))
	for i, t := range tests {
		if err := validation.Validate(t); err != nil {
			return fmt.Errorf("test %d (%s): %w", i, t.ID(), err)
		}
		ids[i] = t.ID()
	}
	return validation.New().Unique("tests", ids).Validate()
}

type moduleGroup struct {
	name    string
	classes []*classGroup
}

type classGroup struct {
	name  string
	tests []*Test
}

// groupTests groups by module, then class, each in first-appearance order.
func groupTests(tests []Test) []*moduleGroup {
	var mods []*moduleGroup
	modIdx := make(map[string]*moduleGroup)
	clsIdx := make(map[[2]string]*classGroup)

	for i := range tests {
		t := &tests[i]
		mod, ok := modIdx[t.Module]
		if !ok {
			mod = &moduleGroup{name: t.Module}
			modIdx[t.Module] = mod
			mods = append(mods, mod)
		}
		key := [2]string{t.Module, t.Class}
		cls, ok := clsIdx[key]
		if !ok {
			cls = &classGroup{name: t.Class}
			clsIdx[key] = cls
			mod.classes = append(mod.classes, cls)
		}
		cls.tests = append(cls.tests, t)
	}
	return mods
}

// run is the state of one Session.Run.
type run struct {
	s       *Session
	stopped atomic.Bool

	mu     sync.Mutex
	report *Report
}

func (r *run) teardownFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.TeardownErrors = append(r.report.TeardownErrors, err)
}

func (r *run) runModule(ctx context.Context, sess *fixture.ScopeContext, mod *moduleGroup) {
	name := mod.name
	if name == "" {
		name = fixture.RootNamespace
	}
	modCtx, err := sess.Child(fixture.Module, name)
	if err != nil {
		r.failGroup(ctx, mod.classes, err)
		return
	}

	for _, cls := range mod.classes {
		parent := modCtx
		if cls.name != "" {
			parent, err = modCtx.Child(fixture.Class, mod.name+"::"+cls.name)
			if err != nil {
				r.failGroup(ctx, []*classGroup{cls}, err)
				continue
			}
		}
		r.runGroup(ctx, parent, cls)
		if parent != modCtx {
			if err := parent.Close(ctx); err != nil {
				r.teardownFailed(err)
			}
		}
	}

	if err := modCtx.Close(ctx); err != nil {
		r.teardownFailed(err)
	}
}

// failGroup records every test of groups as errored with err.
func (r *run) failGroup(ctx context.Context, groups []*classGroup, err error) {
	for _, cls := range groups {
		for _, t := range cls.tests {
			r.record(r.finish(ctx, invocation{id: t.ID(), test: t, err: err}))
		}
	}
}

// invocation is one execution of a test: a parameter combination and,
// when the test declares cases, one case.
type invocation struct {
	id     string
	test   *Test
	plan   *fixture.Plan
	sel    fixture.Selection
	params []string
	c      *Case
	// err is a planning error; the invocation errors without running.
	err error
}

func (r *run) expand(t *Test) []invocation {
	plan, err := r.s.Plan(*t)
	if err != nil {
		return []invocation{{id: t.ID(), test: t, err: err}}
	}

	var out []invocation
	for _, sel := range plan.Combinations() {
		params := plan.ParamIDs(sel)
		if len(t.Cases) == 0 {
			out = append(out, invocation{id: invocationID(t, params, nil), test: t, plan: plan, sel: sel, params: params})
			continue
		}
		for i := range t.Cases {
			c := &t.Cases[i]
			out = append(out, invocation{id: invocationID(t, params, c), test: t, plan: plan, sel: sel, params: params, c: c})
		}
	}
	return out
}

func invocationID(t *Test, params []string, c *Case) string {
	ids := append([]string(nil), params...)
	if c != nil {
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return t.ID()
	}
	return t.ID() + "[" + strings.Join(ids, "-") + "]"
}

// runGroup runs every invocation of a class group and records outcomes in
// execution order. Invocations are batched by their wider-scoped parameters
// so each parameter value of a module or session fixture is used
// contiguously. Inside a batch invocations start in declaration order, at
// most parallelism at a time.
func (r *run) runGroup(ctx context.Context, parent *fixture.ScopeContext, cls *classGroup) {
	var invs []invocation
	for _, t := range cls.tests {
		invs = append(invs, r.expand(t)...)
	}

	for _, batch := range batches(invs) {
		if r.s.parallelism == 1 {
			for _, inv := range batch {
				r.record(r.invoke(ctx, parent, inv))
			}
			continue
		}
		r.runParallel(ctx, parent, batch)
	}
}

func (r *run) runParallel(ctx context.Context, parent *fixture.ScopeContext, invs []invocation) {
	outcomes := make([]Outcome, len(invs))
	sem := make(chan struct{}, r.s.parallelism)
	var wg sync.WaitGroup

	for i, inv := range invs {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, inv invocation) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = r.invoke(ctx, parent, inv)
		}(i, inv)
	}
	wg.Wait()

	for _, o := range outcomes {
		r.record(o)
	}
}

// batches splits invocations by the parameters they pick for fixtures wider
// than function scope. Batches keep first-appearance order and invocations
// keep declaration order inside their batch.
func batches(invs []invocation) [][]invocation {
	var out [][]invocation
	idx := make(map[string]int)
	for _, inv := range invs {
		key := wideParamKey(inv)
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], inv)
	}
	return out
}

func wideParamKey(inv invocation) string {
	if inv.plan == nil {
		return ""
	}
	var parts []string
	for _, pf := range inv.plan.Parametrized() {
		if pf.Scope.Wider(fixture.Function) {
			parts = append(parts, fmt.Sprintf("%s=%d", pf.ID, inv.sel[pf.ID]))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (r *run) record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Outcomes = append(r.report.Outcomes, o)
	if o.TeardownErr != nil {
		r.report.TeardownErrors = append(r.report.TeardownErrors, o.TeardownErr)
	}
}

func (r *run) invoke(ctx context.Context, parent *fixture.ScopeContext, inv invocation) Outcome {
	r.s.reporters.TestStarted(ctx, inv.id)

	switch {
	case r.stopped.Load():
		inv.err = Skip(errStopped.Error())
	case ctx.Err() != nil:
		inv.err = Skip(ctx.Err().Error())
	case inv.err == nil:
		return r.execute(ctx, parent, inv)
	}
	return r.finish(ctx, inv)
}

// execute resolves the invocation's fixtures in a fresh function context,
// runs the body and closes the context whatever the result.
func (r *run) execute(ctx context.Context, parent *fixture.ScopeContext, inv invocation) Outcome {
	start := time.Now()
	o := newOutcome(inv)
	o.Start = start

	sc, err := parent.Child(fixture.Function, inv.id)
	if err != nil {
		o.Status, o.Err = Errored, err
		return r.complete(ctx, o, start)
	}

	res, err := fixture.Resolve(ctx, sc, inv.plan, inv.sel)
	if err != nil {
		o.Status, o.Err = Errored, err
	} else {
		o.Err = r.call(ctx, inv, res)
		o.Status = statusOf(o.Err)
	}

	if err := sc.Close(ctx); err != nil {
		o.TeardownErr = err
	}
	return r.complete(ctx, o, start)
}

func (r *run) call(ctx context.Context, inv invocation, res *fixture.Resolution) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	c := &Call{
		id:     inv.id,
		test:   inv.test,
		c:      inv.c,
		params: inv.params,
		res:    res,
		log:    r.s.log.WithFields(logger.Fields(logger.FieldTest, inv.id)),
	}
	return inv.test.Func(ctx, c)
}

// finish completes an invocation that never ran: skipped or errored during
// planning.
func (r *run) finish(ctx context.Context, inv invocation) Outcome {
	o := newOutcome(inv)
	o.Start = time.Now()
	o.Err = inv.err
	o.Status = Errored
	if stderrors.Is(inv.err, ErrSkip) {
		o.Status = Skipped
	}
	return r.complete(ctx, o, o.Start)
}

func (r *run) complete(ctx context.Context, o Outcome, start time.Time) Outcome {
	o.Duration = time.Since(start)
	o.SessionID = r.report.SessionID
	if r.s.failFast && (o.Status == Failed || o.Status == Errored) {
		r.stopped.Store(true)
	}
	r.s.reporters.TestFinished(ctx, o)
	return o
}

func newOutcome(inv invocation) Outcome {
	o := Outcome{
		ID:     inv.id,
		Test:   inv.test.Name,
		Module: inv.test.Module,
		Class:  inv.test.Class,
		Params: inv.params,
	}
	if inv.c != nil {
		o.Case = inv.c.ID
	}
	return o
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return Passed
	case stderrors.Is(err, ErrSkip):
		return Skipped
	default:
		return Failed
	}
}

// Suite pairs a session with the tests it runs.
type Suite struct {
	Session *Session
	Tests   []Test
}

// RunAll runs independent suites in parallel. Suites share nothing: each
// has its own session context. Reports are returned in suite order.
func RunAll(ctx context.Context, suites ...Suite) ([]*Report, error) {
	reports := make([]*Report, len(suites))
	errs := make([]error, len(suites))

	var wg sync.WaitGroup
	for i, suite := range suites {
		wg.Add(1)
		go func(i int, suite Suite) {
			defer wg.Done()
			reports[i], errs[i] = suite.Session.Run(ctx, suite.Tests)
		}(i, suite)
	}
	wg.Wait()
	return reports, stderrors.Join(errs...)
}
