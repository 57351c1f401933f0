package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/runner"
)

// Observer turns fixture lifecycle events and test outcomes into spans and
// metrics. It implements both fixture.Observer and runner.Reporter.
type Observer struct {
	tracer  trace.Tracer
	metrics *Metrics

	mu       sync.Mutex
	sessions map[string]trace.Span
}

var (
	_ fixture.Observer = (*Observer)(nil)
	_ runner.Reporter  = (*Observer)(nil)
)

// NewObserver creates an Observer. A nil tracer uses the global provider;
// nil metrics disables metric recording.
func NewObserver(tracer trace.Tracer, metrics *Metrics) *Observer {
	if tracer == nil {
		tracer = Tracer(defaultTracerName)
	}
	return &Observer{
		tracer:   tracer,
		metrics:  metrics,
		sessions: make(map[string]trace.Span),
	}
}

// ObserveFixture records a span covering the setup or teardown and updates
// the fixture instruments.
func (o *Observer) ObserveFixture(ctx context.Context, ev fixture.Event) {
	ctx = o.sessionContext(ctx, ev.SessionID)
	name := SpanFixtureSetup
	if ev.Phase == fixture.PhaseTeardown {
		name = SpanFixtureTeardown
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrFixture, ev.Fixture),
		attribute.String(AttrScope, ev.Scope.String()),
		attribute.String(AttrContextID, ev.ContextID),
	}
	if ev.Param != "" {
		attrs = append(attrs, attribute.String(AttrParam, ev.Param))
	}
	o.span(ctx, name, ev.Start, ev.Start.Add(ev.Duration), ev.Err, attrs...)

	if o.metrics == nil {
		return
	}
	if ev.Phase == fixture.PhaseSetup {
		o.metrics.RecordFixtureSetup(ctx, ev.Fixture, ev.Scope.String(), ev.Err, ev.Duration)
	} else {
		o.metrics.RecordFixtureTeardown(ctx, ev.Fixture, ev.Scope.String(), ev.Err)
	}
}

// SessionStarted opens the session span.
func (o *Observer) SessionStarted(ctx context.Context, info runner.SessionInfo) {
	_, span := o.tracer.Start(ctx, SpanSession, trace.WithAttributes(
		attribute.String(AttrSession, info.Name),
		attribute.String(AttrSessionID, info.ID),
		attribute.Int("session.tests", info.Tests),
	))
	o.mu.Lock()
	o.sessions[info.ID] = span
	o.mu.Unlock()
}

// TestStarted is a no-op; test spans are recorded when the test finishes.
func (o *Observer) TestStarted(context.Context, string) {}

// TestFinished records the test span and outcome metrics.
func (o *Observer) TestFinished(ctx context.Context, out runner.Outcome) {
	ctx = o.sessionContext(ctx, out.SessionID)
	err := out.Err
	if out.Status == runner.Passed || out.Status == runner.Skipped {
		err = nil
	}
	o.span(ctx, SpanTest, out.Start, out.Start.Add(out.Duration), err,
		attribute.String(AttrTestID, out.ID),
		attribute.String(AttrTestStatus, string(out.Status)),
	)
	if o.metrics != nil {
		o.metrics.RecordTestOutcome(ctx, string(out.Status), out.Duration)
	}
}

// SessionFinished ends the session span.
func (o *Observer) SessionFinished(_ context.Context, rep *runner.Report) {
	o.mu.Lock()
	span, ok := o.sessions[rep.SessionID]
	delete(o.sessions, rep.SessionID)
	o.mu.Unlock()
	if !ok {
		return
	}

	counts := rep.Counts()
	span.SetAttributes(
		attribute.Int("session.passed", counts[runner.Passed]),
		attribute.Int("session.failed", counts[runner.Failed]),
		attribute.Int("session.errored", counts[runner.Errored]),
		attribute.Int("session.skipped", counts[runner.Skipped]),
		attribute.Int("session.teardown_errors", len(rep.TeardownErrors)),
	)
	if rep.Failed() {
		span.SetStatus(codes.Error, "session failed")
	}
	span.End()
}

// sessionContext parents ctx on the open span of the session, if any.
func (o *Observer) sessionContext(ctx context.Context, sessionID string) context.Context {
	o.mu.Lock()
	span, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return ctx
	}
	return trace.ContextWithSpan(ctx, span)
}

func (o *Observer) span(ctx context.Context, name string, start, end time.Time, err error, attrs ...attribute.KeyValue) {
	_, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(end))
}
