package fixture

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/logger"
)

func TestResolve_SessionInstanceShared(t *testing.T) {
	reg := NewRegistry()
	var calls atomic.Int32
	mustRegister(t, reg, New("db", func(context.Context, *Request) (any, error) {
		return fmt.Sprintf("conn-%d", calls.Add(1)), nil
	}, WithScope(Session)))

	sess := newSession(t)
	plan := mustPlan(t, reg, "db")

	testA := sess.MustChild(Function, "test_a")
	resA, err := Resolve(context.Background(), testA, plan, nil)
	if err != nil {
		t.Fatalf("resolve A: %v", err)
	}
	if err := testA.Close(context.Background()); err != nil {
		t.Fatalf("close A: %v", err)
	}

	testB := sess.MustChild(Function, "test_b")
	resB, err := Resolve(context.Background(), testB, plan, nil)
	if err != nil {
		t.Fatalf("resolve B: %v", err)
	}
	defer testB.Close(context.Background())

	instA, _ := resA.Instance("db")
	instB, _ := resB.Instance("db")
	if instA != instB {
		t.Error("expected session fixture to be the same instance across tests")
	}
	if calls.Load() != 1 {
		t.Errorf("expected factory to run once, ran %d times", calls.Load())
	}
	if instA.ContextID() != sess.ID() {
		t.Error("expected session fixture to be owned by the session context")
	}
}

func TestResolve_FunctionInstanceNotShared(t *testing.T) {
	reg := NewRegistry()
	var calls atomic.Int32
	mustRegister(t, reg, New("tmp", func(context.Context, *Request) (any, error) {
		return calls.Add(1), nil
	}))

	sess := newSession(t)
	plan := mustPlan(t, reg, "tmp")

	var seen []*Instance
	for _, name := range []string{"test_a", "test_b"} {
		sc := sess.MustChild(Function, name)
		res, err := Resolve(context.Background(), sc, plan, nil)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		inst, _ := res.Instance("tmp")
		seen = append(seen, inst)
		if err := sc.Close(context.Background()); err != nil {
			t.Fatalf("close %s: %v", name, err)
		}
		if inst.State() != TornDown {
			t.Errorf("expected %s instance torn down, got %s", name, inst.State())
		}
	}
	if seen[0] == seen[1] {
		t.Error("function fixture must not be reused across tests")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 factory calls, got %d", calls.Load())
	}
}

func TestResolve_ModuleFixtureFeedsFunctionFixture(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		New("f1", Const(1), WithScope(Module)),
		New("f2", func(_ context.Context, req *Request) (any, error) {
			return MustGet[int](req, "f1") + 1, nil
		}, Requires("f1")),
	)

	sess := newSession(t)
	mod := sess.MustChild(Module, "test_mod")
	plan := mustPlan(t, reg, "f2")

	var f1s []*Instance
	for _, name := range []string{"test_one", "test_two"} {
		sc := mod.MustChild(Function, name)
		res, err := Resolve(context.Background(), sc, plan, nil)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		f2, err := Value[int](res, "f2")
		if err != nil || f2 != 2 {
			t.Errorf("%s: expected f2 == 2, got %d (err=%v)", name, f2, err)
		}
		inst, _ := res.Instance("f1")
		f1s = append(f1s, inst)
		_ = sc.Close(context.Background())
	}
	if f1s[0] != f1s[1] {
		t.Error("expected both tests to observe the same f1 instance")
	}
	if f1s[0].State() != Active {
		t.Errorf("module fixture should stay active until module closes, got %s", f1s[0].State())
	}
	_ = mod.Close(context.Background())
	if f1s[0].State() != TornDown {
		t.Errorf("expected f1 torn down with its module, got %s", f1s[0].State())
	}
}

func TestResolve_TeardownReverseOrder(t *testing.T) {
	reg := NewRegistry()
	j := &journal{}
	mustRegister(t, reg,
		New("a", tracked(j, "a", "a")),
		New("b", tracked(j, "b", "b"), Requires("a")),
		New("c", tracked(j, "c", "c"), Requires("b")),
	)

	sess := newSession(t)
	sc := sess.MustChild(Function, "test_chain")
	if _, err := Resolve(context.Background(), sc, mustPlan(t, reg, "c"), nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := sc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"setup a", "setup b", "setup c", "teardown c", "teardown b", "teardown a"}
	if got := j.list(); !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_FactoryErrorTearsDownDependencies(t *testing.T) {
	reg := NewRegistry()
	j := &journal{}
	boom := stderrors.New("boom")
	mustRegister(t, reg,
		New("a", tracked(j, "a", 1)),
		New("b", tracked(j, "b", 2), Requires("a")),
		New("c", func(context.Context, *Request) (any, error) {
			j.add("setup c")
			return nil, boom
		}, Requires("b")),
		New("d", tracked(j, "d", 4), Requires("c")),
	)

	sess := newSession(t)
	sc := sess.MustChild(Function, "test_fail")
	res, err := Resolve(context.Background(), sc, mustPlan(t, reg, "d"), nil)
	if !errors.HasCode(err, errors.ErrCodeFactory) {
		t.Fatalf("expected FACTORY_ERROR, got %v", err)
	}
	if !stderrors.Is(err, boom) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if got := len(res.Instances()); got != 2 {
		t.Errorf("expected 2 partial instances, got %d", got)
	}
	if err := sc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"setup a", "setup b", "setup c", "teardown b", "teardown a"}
	if got := j.list(); !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_FailedFactoryFinalizersRun(t *testing.T) {
	reg := NewRegistry()
	j := &journal{}
	mustRegister(t, reg, New("half", func(_ context.Context, req *Request) (any, error) {
		req.AddFinalizer(func(context.Context) error {
			j.add("cleanup half")
			return nil
		})
		return nil, stderrors.New("half done")
	}))

	sess := newSession(t)
	sc := sess.MustChild(Function, "test_half")
	if _, err := ResolveNames(context.Background(), reg, sc, "half"); err == nil {
		t.Fatal("expected error")
	}
	_ = sc.Close(context.Background())
	if got := j.list(); !equalStrings(got, []string{"cleanup half"}) {
		t.Errorf("got %v", got)
	}
}

func TestResolve_FactoryFailureNotCached(t *testing.T) {
	reg := NewRegistry()
	var calls atomic.Int32
	mustRegister(t, reg, New("flaky", func(context.Context, *Request) (any, error) {
		if calls.Add(1) == 1 {
			return nil, stderrors.New("first call fails")
		}
		return "ok", nil
	}, WithScope(Session)))

	sess := newSession(t)
	plan := mustPlan(t, reg, "flaky")
	if _, err := Resolve(context.Background(), sess.MustChild(Function, "one"), plan, nil); err == nil {
		t.Fatal("expected first resolution to fail")
	}
	res, err := Resolve(context.Background(), sess.MustChild(Function, "two"), plan, nil)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if v, _ := res.Get("flaky"); v != "ok" {
		t.Errorf("unexpected value %v", v)
	}
}

func TestResolve_PanicBecomesFactoryError(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		New("a", Const("text")),
		New("b", func(_ context.Context, req *Request) (any, error) {
			return MustGet[int](req, "a"), nil
		}, Requires("a")),
	)

	sess := newSession(t)
	_, err := ResolveNames(context.Background(), reg, sess.MustChild(Function, "t"), "b")
	if !errors.HasCode(err, errors.ErrCodeFactory) {
		t.Fatalf("expected FACTORY_ERROR from panic, got %v", err)
	}
}

func TestResolve_TeardownErrorsCollected(t *testing.T) {
	reg := NewRegistry()
	j := &journal{}
	failing := func(name string) Factory {
		return func(_ context.Context, req *Request) (any, error) {
			req.AddFinalizer(func(context.Context) error {
				j.add("teardown %s", name)
				return fmt.Errorf("%s cleanup failed", name)
			})
			return name, nil
		}
	}
	mustRegister(t, reg,
		New("a", tracked(j, "a", 1)),
		New("b", failing("b"), Requires("a")),
		New("c", failing("c"), Requires("b")),
	)

	sess := newSession(t)
	sc := sess.MustChild(Function, "t")
	if _, err := ResolveNames(context.Background(), reg, sc, "c"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	err := sc.Close(context.Background())
	if !errors.HasCode(err, errors.ErrCodeTeardown) {
		t.Fatalf("expected TEARDOWN_ERROR, got %v", err)
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Errorf("expected two collected teardown errors, got %v", err)
	}
	want := []string{"setup a", "teardown c", "teardown b", "teardown a"}
	if got := j.list(); !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_FinalizersRunLIFO(t *testing.T) {
	reg := NewRegistry()
	j := &journal{}
	mustRegister(t, reg, New("multi", func(_ context.Context, req *Request) (any, error) {
		for i := 1; i <= 3; i++ {
			req.AddFinalizer(func(context.Context) error {
				j.add("fin %d", i)
				return nil
			})
		}
		return nil, nil
	}))

	sess := newSession(t)
	sc := sess.MustChild(Function, "t")
	if _, err := ResolveNames(context.Background(), reg, sc, "multi"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_ = sc.Close(context.Background())
	if got := j.list(); !equalStrings(got, []string{"fin 3", "fin 2", "fin 1"}) {
		t.Errorf("got %v", got)
	}
}

func TestResolve_ParametrizedInstances(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		New("backend", func(_ context.Context, req *Request) (any, error) {
			p, ok := req.Param()
			if !ok {
				return nil, stderrors.New("missing param")
			}
			return "backend:" + p.ID, nil
		}, WithScope(Module), WithParams(Params("mem", "disk")...)),
		New("store", func(_ context.Context, req *Request) (any, error) {
			return "store(" + MustGet[string](req, "backend") + ")", nil
		}, WithScope(Module), Requires("backend")),
	)

	sess := newSession(t)
	mod := sess.MustChild(Module, "m")
	plan := mustPlan(t, reg, "store")

	var stores []string
	for _, sel := range plan.Combinations() {
		sc := mod.MustChild(Function, "t")
		res, err := Resolve(context.Background(), sc, plan, sel)
		if err != nil {
			t.Fatalf("resolve %v: %v", sel, err)
		}
		v, _ := Value[string](res, "store")
		stores = append(stores, v)
		_ = sc.Close(context.Background())
	}
	if !equalStrings(stores, []string{"store(backend:mem)", "store(backend:disk)"}) {
		t.Errorf("unexpected stores %v", stores)
	}
	// Only the last param stays cached in the module.
	if got := len(mod.Instances()); got != 2 {
		t.Errorf("expected 2 module instances, got %d", got)
	}

	// Resolving the first combination again rebuilds it.
	sc := mod.MustChild(Function, "again")
	res, err := Resolve(context.Background(), sc, plan, plan.Combinations()[0])
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if got := len(mod.Instances()); got != 2 {
		t.Errorf("expected one instance per fixture, got %d", got)
	}
	inst, _ := res.Instance("backend")
	if p, _ := inst.Param(); p.ID != "mem" {
		t.Errorf("expected mem param, got %q", p.ID)
	}
}

func TestResolve_ParamSwitchRetiresPreviousInstance(t *testing.T) {
	j := &journal{}
	reg := NewRegistry()
	mustRegister(t, reg,
		New("unrelated", tracked(j, "unrelated", 1), WithScope(Module)),
		New("backend", func(_ context.Context, req *Request) (any, error) {
			id := req.ParamValue().(string)
			j.add("setup backend %s", id)
			req.AddFinalizer(func(context.Context) error {
				j.add("teardown backend %s", id)
				return nil
			})
			return id, nil
		}, WithScope(Module), WithParams(Params("a", "b")...)),
		New("client", func(_ context.Context, req *Request) (any, error) {
			id := MustGet[string](req, "backend")
			j.add("setup client %s", id)
			req.AddFinalizer(func(context.Context) error {
				j.add("teardown client %s", id)
				return nil
			})
			return id, nil
		}, WithScope(Module), Requires("backend")),
	)

	sess := newSession(t)
	mod := sess.MustChild(Module, "m")
	plan := mustPlan(t, reg, "unrelated", "client")

	for i, sel := range plan.Combinations() {
		sc := mod.MustChild(Function, fmt.Sprintf("t%d", i))
		res, err := Resolve(context.Background(), sc, plan, sel)
		if err != nil {
			t.Fatalf("resolve %v: %v", sel, err)
		}
		v, _ := Value[string](res, "client")
		j.add("run %s", v)
		if err := sc.Close(context.Background()); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	if err := mod.Close(context.Background()); err != nil {
		t.Fatalf("close module: %v", err)
	}

	want := []string{
		"setup unrelated",
		"setup backend a", "setup client a", "run a",
		"teardown client a", "teardown backend a",
		"setup backend b", "setup client b", "run b",
		"teardown client b", "teardown backend b",
		"teardown unrelated",
	}
	if got := j.list(); !equalStrings(got, want) {
		t.Errorf("got %v\nwant %v", got, want)
	}
}

func TestResolve_ParamSwitchRetiresNestedDependents(t *testing.T) {
	j := &journal{}
	reg := NewRegistry()
	mustRegister(t, reg,
		New("backend", func(_ context.Context, req *Request) (any, error) {
			return req.ParamValue(), nil
		}, WithScope(Module), WithParams(Params("a", "b")...)),
		New("conn", func(_ context.Context, req *Request) (any, error) {
			id := MustGet[string](req, "backend")
			req.AddFinalizer(func(context.Context) error {
				j.add("teardown conn %s", id)
				return stderrors.New("close " + id)
			})
			return id, nil
		}, WithScope(Class), Requires("backend")),
	)

	sess := newSession(t)
	mod := sess.MustChild(Module, "m")
	cls := mod.MustChild(Class, "m::C")
	plan := mustPlan(t, reg, "conn")

	for _, sel := range plan.Combinations() {
		if _, err := Resolve(context.Background(), cls.MustChild(Function, "t"), plan, sel); err != nil {
			t.Fatalf("resolve %v: %v", sel, err)
		}
	}
	if got := j.list(); !equalStrings(got, []string{"teardown conn a"}) {
		t.Errorf("expected class dependent retired with its param, got %v", got)
	}
	if got := len(cls.Instances()); got != 1 {
		t.Errorf("expected one conn in the class context, got %d", got)
	}

	// The retire failure surfaces when the context that retired it closes.
	_ = cls.Close(context.Background())
	err := mod.Close(context.Background())
	if !errors.HasCode(err, errors.ErrCodeTeardown) {
		t.Fatalf("expected retire teardown error from module close, got %v", err)
	}
}

func TestResolve_OutOfRangeSelection(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, New("p", Const(1), WithParams(Params(1, 2)...)))

	sess := newSession(t)
	plan := mustPlan(t, reg, "p")
	_, err := Resolve(context.Background(), sess.MustChild(Function, "t"), plan, Selection{"root::p": 2})
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestResolve_ConcurrentCreateOnce(t *testing.T) {
	reg := NewRegistry()
	var calls atomic.Int32
	mustRegister(t, reg,
		New("shared", func(context.Context, *Request) (any, error) {
			return calls.Add(1), nil
		}, WithScope(Session)),
		New("local", Const(0), Requires("shared")),
	)

	sess := newSession(t)
	plan := mustPlan(t, reg, "local")

	var wg sync.WaitGroup
	insts := make([]*Instance, 16)
	for i := range insts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sc, err := sess.Child(Function, fmt.Sprintf("t%d", i))
			if err != nil {
				t.Errorf("child: %v", err)
				return
			}
			defer sc.Close(context.Background())
			res, err := Resolve(context.Background(), sc, plan, nil)
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			insts[i], _ = res.Instance("shared")
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected shared fixture created once, got %d", calls.Load())
	}
	for i, inst := range insts {
		if inst != insts[0] {
			t.Errorf("goroutine %d saw a different instance", i)
		}
	}
}

func TestResolve_RequestValueUndeclared(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		New("a", Const(1)),
		New("b", Const(2)),
		New("c", func(_ context.Context, req *Request) (any, error) {
			if _, err := req.Value("b"); !errors.HasCode(err, errors.ErrCodeUnknownFixture) {
				return nil, fmt.Errorf("expected UNKNOWN_FIXTURE for undeclared b, got %v", err)
			}
			if _, err := Get[string](req, "a"); err == nil {
				return nil, stderrors.New("expected type mismatch for a")
			}
			if !equalStrings(req.Dependencies(), []string{"a"}) {
				return nil, fmt.Errorf("unexpected deps %v", req.Dependencies())
			}
			return req.Value("a")
		}, Requires("a")),
	)

	sess := newSession(t)
	res, err := ResolveNames(context.Background(), reg, sess.MustChild(Function, "t"), "c", "b")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v, _ := res.Get("c"); v != 1 {
		t.Errorf("unexpected value %v", v)
	}
}

func TestResolve_RequestMetadata(t *testing.T) {
	reg := NewRegistry()
	var node, ctxID string
	var scope Scope
	mustRegister(t, reg, New("meta", func(_ context.Context, req *Request) (any, error) {
		node, ctxID, scope = req.Node(), req.ContextID(), req.Scope()
		if req.ParamValue() != nil {
			return nil, stderrors.New("unexpected param")
		}
		return req.Fixture(), nil
	}, WithScope(Module)))

	sess := newSession(t)
	mod := sess.MustChild(Module, "m")
	sc := mod.MustChild(Function, "m::test_meta")
	res, err := ResolveNames(context.Background(), reg, sc, "meta")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v, _ := res.Get("meta"); v != "meta" {
		t.Errorf("unexpected value %v", v)
	}
	if node != "m::test_meta" || ctxID != mod.ID() || scope != Module {
		t.Errorf("unexpected metadata node=%q ctx=%q scope=%s", node, ctxID, scope)
	}
}

func TestResolve_OverrideChain(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, New("name", Const("base")))
	mod := reg.Namespace("mod")
	if err := mod.Register(New("name", func(_ context.Context, req *Request) (any, error) {
		return MustGet[string](req, "name") + "+mod", nil
	}, Requires("name")), Override()); err != nil {
		t.Fatal(err)
	}

	sess := newSession(t)
	res, err := ResolveNames(context.Background(), mod, sess.MustChild(Function, "t"), "name")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v, _ := res.Get("name"); v != "base+mod" {
		t.Errorf("unexpected value %v", v)
	}
	if got := res.Names(); !equalStrings(got, []string{"name"}) {
		t.Errorf("unexpected names %v", got)
	}
	if got := len(res.Instances()); got != 2 {
		t.Errorf("expected both definitions resolved, got %d", got)
	}
}

func TestResolve_ObserverEvents(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		New("a", Const(1), WithScope(Session)),
		New("b", Const(2), Requires("a")),
	)

	var mu sync.Mutex
	var events []string
	obs := ObserverFunc(func(_ context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, string(ev.Phase)+" "+ev.Fixture+" "+ev.Scope.String())
	})

	sess := NewSessionContext("observed", WithObserver(Observers(obs)), WithLogger(logger.Nop()))
	sc := sess.MustChild(Function, "t")
	if _, err := ResolveNames(context.Background(), reg, sc, "b"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{
		"setup a session",
		"setup b function",
		"teardown b function",
		"teardown a session",
	}
	if !equalStrings(events, want) {
		t.Errorf("got %v, want %v", events, want)
	}
	if !sc.Closed() {
		t.Error("expected session close to close open children")
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, New("a", Const(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := newSession(t)
	_, err := ResolveNames(ctx, reg, sess.MustChild(Function, "t"), "a")
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
