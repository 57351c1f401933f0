package runner

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Status is the result of one test invocation.
type Status string

const (
	// Passed means the body returned nil.
	Passed Status = "passed"
	// Failed means the body returned an error or panicked.
	Failed Status = "failed"
	// Errored means a fixture could not be planned or set up.
	Errored Status = "errored"
	// Skipped means the body called Skip, or the run stopped first.
	Skipped Status = "skipped"
)

// Outcome is the result of one invocation.
type Outcome struct {
	ID       string
	Test     string
	Module   string
	Class    string
	Params   []string
	Case     string
	Status   Status
	Err      error
	Start    time.Time
	Duration time.Duration
	// TeardownErr collects failures closing the invocation's function
	// context. It does not change Status.
	TeardownErr error
	// SessionID is the id of the session context the invocation ran in.
	SessionID string
}

// Report summarizes a session run.
type Report struct {
	Session   string
	SessionID string
	Outcomes  []Outcome
	// TeardownErrors are failures closing class, module and session
	// contexts, plus every non-nil Outcome.TeardownErr.
	TeardownErrors []error
	Start          time.Time
	Duration       time.Duration
}

// Count returns the number of outcomes with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Counts returns the number of outcomes per status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Failed reports whether any invocation failed or errored, or any
// teardown failed.
func (r *Report) Failed() bool {
	return r.Count(Failed) > 0 || r.Count(Errored) > 0 || len(r.TeardownErrors) > 0
}

// Outcome returns the outcome with the given invocation id.
func (r *Report) Outcome(id string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Err joins the errors of failed and errored invocations and every
// teardown error. It is nil for a clean run.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Status == Failed || o.Status == Errored {
			errs = append(errs, fmt.Errorf("%s: %w", o.ID, o.Err))
		}
	}
	errs = append(errs, r.TeardownErrors...)
	return stderrors.Join(errs...)
}
