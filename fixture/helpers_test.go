package fixture

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kbukum/fixturekit/logger"
)

// journal records setup/teardown events in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// tracked returns a factory that records setup and registers a finalizer
// recording teardown.
func tracked(j *journal, name string, value any) Factory {
	return func(_ context.Context, req *Request) (any, error) {
		j.add("setup %s", name)
		req.AddFinalizer(func(context.Context) error {
			j.add("teardown %s", name)
			return nil
		})
		return value, nil
	}
}

func newSession(t *testing.T, opts ...ContextOption) *ScopeContext {
	t.Helper()
	opts = append([]ContextOption{WithLogger(logger.Nop())}, opts...)
	sc := NewSessionContext(t.Name(), opts...)
	t.Cleanup(func() { _ = sc.Close(context.Background()) })
	return sc
}

func mustRegister(t *testing.T, reg *Registry, defs ...Definition) {
	t.Helper()
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register(%s) failed: %v", d.Name, err)
		}
	}
}

func mustPlan(t *testing.T, reg *Registry, names ...string) *Plan {
	t.Helper()
	p, err := reg.Plan(names...)
	if err != nil {
		t.Fatalf("Plan(%v) failed: %v", names, err)
	}
	return p
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
