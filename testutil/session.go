package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/logger"
)

// Session shares session- and module-scoped fixture instances across the
// tests of a package. Create it in TestMain and close it after m.Run.
//
// Example:
//
//	var session *testutil.Session
//
//	func TestMain(m *testing.M) {
//	    session = testutil.NewSession(registry())
//	    code := m.Run()
//	    _ = session.Close(context.Background())
//	    os.Exit(code)
//	}
type Session struct {
	reg    *fixture.Registry
	root   *fixture.ScopeContext
	module *fixture.ScopeContext

	mu     sync.Mutex
	closed bool
}

// NewSession opens a session context with a single module context named
// after the registry namespace. Options default to a no-op logger.
func NewSession(reg *fixture.Registry, opts ...fixture.ContextOption) *Session {
	opts = append([]fixture.ContextOption{fixture.WithLogger(logger.Nop())}, opts...)
	root := fixture.NewSessionContext("testutil", opts...)
	return &Session{
		reg:    reg,
		root:   root,
		module: root.MustChild(fixture.Module, reg.Path()),
	}
}

// Registry returns the registry fixtures are resolved from.
func (s *Session) Registry() *fixture.Registry { return s.reg }

// Context returns the module context shared by all tests of the session.
func (s *Session) Context() *fixture.ScopeContext { return s.module }

// Resolve resolves names into a new function context. The caller closes
// the returned context when the test ends.
func (s *Session) Resolve(ctx context.Context, name string, names ...string) (*fixture.ScopeContext, *fixture.Resolution, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, fmt.Errorf("testutil: session is closed")
	}

	fn, err := s.module.Child(fixture.Function, name)
	if err != nil {
		return nil, nil, err
	}
	res, err := fixture.ResolveNames(ctx, s.reg, fn, names...)
	if err != nil {
		return nil, nil, joinClose(ctx, fn, err)
	}
	return fn, res, nil
}

// Use resolves names for t. The function context is closed on t.Cleanup
// and any teardown failure fails t.
func (s *Session) Use(t testing.TB, names ...string) *fixture.Resolution {
	t.Helper()
	return use(context.Background(), t, s, names)
}

// Close tears down every instance the session created. Calling Close more
// than once is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.root.Close(ctx)
}

func use(ctx context.Context, t testing.TB, s *Session, names []string) *fixture.Resolution {
	t.Helper()
	fn, res, err := s.Resolve(ctx, t.Name(), names...)
	if err != nil {
		t.Fatalf("failed to resolve fixtures %v: %v", names, err)
		return nil
	}
	t.Cleanup(func() {
		if err := fn.Close(context.WithoutCancel(ctx)); err != nil {
			t.Errorf("fixture teardown failed: %v", err)
		}
	})
	return res
}

func joinClose(ctx context.Context, sc *fixture.ScopeContext, err error) error {
	if cerr := sc.Close(context.WithoutCancel(ctx)); cerr != nil {
		return fmt.Errorf("%w; teardown: %v", err, cerr)
	}
	return err
}
