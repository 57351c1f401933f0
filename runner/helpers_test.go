package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/logger"
)

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

// tracked returns a factory yielding value that journals setup and teardown.
func tracked(j *journal, name string, value any) fixture.Factory {
	return func(_ context.Context, req *fixture.Request) (any, error) {
		j.add("setup %s", name)
		req.AddFinalizer(func(context.Context) error {
			j.add("teardown %s", name)
			return nil
		})
		return value, nil
	}
}

func newTestSession(t *testing.T, reg *fixture.Registry, opts ...Option) (*Session, *Recorder) {
	t.Helper()
	rec := NewRecorder()
	opts = append([]Option{WithLogger(logger.Nop()), WithReporter(rec)}, opts...)
	return NewSession(t.Name(), reg, opts...), rec
}

func mustRun(t *testing.T, s *Session, tests ...Test) *Report {
	t.Helper()
	rep, err := s.Run(context.Background(), tests)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return rep
}

func pass(context.Context, *Call) error { return nil }

func statuses(rep *Report) []string {
	out := make([]string, len(rep.Outcomes))
	for i, o := range rep.Outcomes {
		out[i] = o.ID + "=" + string(o.Status)
	}
	return out
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
