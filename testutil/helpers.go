package testutil

import (
	"context"
	"testing"

	"github.com/kbukum/fixturekit/fixture"
)

// THelper provides testing.TB integration for fixture resolution.
type THelper struct {
	t       testing.TB
	ctx     context.Context
	session *Session
}

// T wraps a testing.TB to provide helper methods.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    res := testutil.T(t).Use(reg, "db")
//	    db := testutil.Get[*DB](t, res, "db")
//	    // fixtures are torn down when the test ends
//	}
func T(t testing.TB) *THelper {
	return &THelper{
		t:   t,
		ctx: context.Background(),
	}
}

// WithContext sets the context passed to fixture factories.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// In resolves against a shared session instead of a private one.
func (h *THelper) In(s *Session) *THelper {
	h.session = s
	return h
}

// Use resolves names from reg for the test. Without In, every scope lives
// only as long as the test; all instances are torn down on t.Cleanup.
// With In, reg is ignored in favour of the session's registry.
func (h *THelper) Use(reg *fixture.Registry, names ...string) *fixture.Resolution {
	h.t.Helper()
	s := h.session
	if s == nil {
		s = NewSession(reg)
		h.t.Cleanup(func() {
			if err := s.Close(context.WithoutCancel(h.ctx)); err != nil {
				h.t.Errorf("fixture teardown failed: %v", err)
			}
		})
	}
	return use(h.ctx, h.t, s, names)
}

// Start starts a component and stops it on t.Cleanup.
func (h *THelper) Start(c Component) {
	h.t.Helper()
	if err := c.Start(h.ctx); err != nil {
		h.t.Fatalf("failed to start component %s: %v", c.Name(), err)
	}
	h.t.Cleanup(func() {
		if err := c.Stop(context.WithoutCancel(h.ctx)); err != nil {
			h.t.Errorf("failed to stop component %s: %v", c.Name(), err)
		}
	})
}

// Reset resets a component to its initial state.
func (h *THelper) Reset(c Resetter) {
	h.t.Helper()
	if err := c.Reset(h.ctx); err != nil {
		h.t.Fatalf("failed to reset component: %v", err)
	}
}

// Get returns the typed value of a resolved fixture, failing t when it is
// missing or of another type.
func Get[T any](t testing.TB, res *fixture.Resolution, name string) T {
	t.Helper()
	v, err := fixture.Value[T](res, name)
	if err != nil {
		t.Fatalf("fixture %s: %v", name, err)
	}
	return v
}
