package runner

import (
	"context"
	"sync"

	"github.com/kbukum/fixturekit/logger"
)

// SessionInfo describes a session that is about to run.
type SessionInfo struct {
	Name  string
	ID    string
	Tests int
}

// Reporter receives run events. Methods may be called concurrently when
// tests run in parallel.
type Reporter interface {
	SessionStarted(ctx context.Context, info SessionInfo)
	TestStarted(ctx context.Context, id string)
	TestFinished(ctx context.Context, o Outcome)
	SessionFinished(ctx context.Context, r *Report)
}

// MultiReporter fans events out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) SessionStarted(ctx context.Context, info SessionInfo) {
	for _, r := range m {
		r.SessionStarted(ctx, info)
	}
}

func (m MultiReporter) TestStarted(ctx context.Context, id string) {
	for _, r := range m {
		r.TestStarted(ctx, id)
	}
}

func (m MultiReporter) TestFinished(ctx context.Context, o Outcome) {
	for _, r := range m {
		r.TestFinished(ctx, o)
	}
}

func (m MultiReporter) SessionFinished(ctx context.Context, rep *Report) {
	for _, r := range m {
		r.SessionFinished(ctx, rep)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu       sync.Mutex
	sessions []SessionInfo
	started  []string
	outcomes []Outcome
	reports  []*Report
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) SessionStarted(_ context.Context, info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, info)
}

func (r *Recorder) TestStarted(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *Recorder) TestFinished(_ context.Context, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *Recorder) SessionFinished(_ context.Context, rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

// Sessions returns the sessions started.
func (r *Recorder) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionInfo(nil), r.sessions...)
}

// Started returns invocation ids in start order.
func (r *Recorder) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

// Outcomes returns outcomes in finish order.
func (r *Recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

// Reports returns finished session reports.
func (r *Recorder) Reports() []*Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Report(nil), r.reports...)
}

// LogReporter writes run events to a logger.
type LogReporter struct {
	log *logger.Logger
}

// NewLogReporter creates a LogReporter. A nil logger uses the global one.
func NewLogReporter(log *logger.Logger) *LogReporter {
	if log == nil {
		log = logger.WithComponent("runner")
	}
	return &LogReporter{log: log}
}

func (l *LogReporter) SessionStarted(_ context.Context, info SessionInfo) {
	l.log.Info("session started", logger.Fields(
		logger.FieldSessionID, info.ID,
		"session", info.Name,
		logger.FieldCount, info.Tests,
	))
}

func (l *LogReporter) TestStarted(_ context.Context, id string) {
	l.log.Debug("test started", logger.Fields(logger.FieldTest, id))
}

func (l *LogReporter) TestFinished(_ context.Context, o Outcome) {
	fields := logger.MergeWithDuration(logger.Fields(
		logger.FieldTest, o.ID,
		logger.FieldOutcome, string(o.Status),
	), o.Duration)
	switch o.Status {
	case Failed, Errored:
		l.log.Error("test finished", logger.MergeWithError(fields, o.Err))
	default:
		l.log.Info("test finished", fields)
	}
	if o.TeardownErr != nil {
		l.log.Warn("test teardown failed", logger.MergeWithError(logger.Fields(logger.FieldTest, o.ID), o.TeardownErr))
	}
}

func (l *LogReporter) SessionFinished(_ context.Context, rep *Report) {
	counts := rep.Counts()
	fields := logger.MergeWithDuration(logger.Fields(
		logger.FieldSessionID, rep.SessionID,
		"passed", counts[Passed],
		"failed", counts[Failed],
		"errored", counts[Errored],
		"skipped", counts[Skipped],
		"teardown_errors", len(rep.TeardownErrors),
	), rep.Duration)
	if rep.Failed() {
		l.log.Warn("session finished with failures", fields)
		return
	}
	l.log.Info("session finished", fields)
}
