package fixture

import (
	"context"
	"time"
)

// Phase distinguishes setup events from teardown events.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseTeardown Phase = "teardown"
)

// Event describes one fixture setup or teardown.
type Event struct {
	Phase     Phase
	Fixture   string
	Scope     Scope
	ContextID string
	// SessionID is the id of the session context the instance belongs to.
	SessionID string
	Param     string
	Start     time.Time
	Duration  time.Duration
	Err       error
}

// Observer receives fixture lifecycle events. Implementations must be safe
// for concurrent use when scopes run in parallel.
type Observer interface {
	ObserveFixture(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// ObserveFixture calls f.
func (f ObserverFunc) ObserveFixture(ctx context.Context, ev Event) { f(ctx, ev) }

type multiObserver []Observer

func (m multiObserver) ObserveFixture(ctx context.Context, ev Event) {
	for _, o := range m {
		o.ObserveFixture(ctx, ev)
	}
}

// Observers combines several observers into one.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}
