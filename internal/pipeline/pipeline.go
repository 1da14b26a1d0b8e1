// Package pipeline runs one monitoring cycle: load the baseline, fetch and
// extract the grades, notify the changes and persist the new snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gradewatch/internal/assert"
	"gradewatch/internal/chrono"
	"gradewatch/internal/diff"
	"gradewatch/internal/extract"
	"gradewatch/internal/format"
	"gradewatch/internal/grades"
	"gradewatch/internal/notify"
	"gradewatch/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pipeline")

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running.
var ErrCycleInProgress = errors.New("pipeline: a cycle is already in progress")

const (
	report_fetch            = "fetch"
	report_extract_empty    = "extract.empty"
	report_notify           = "notify"
	report_journal          = "journal.record"
	report_save             = "save"
	report_events_published = "events.published"
	report_events_updated   = "events.updated"
)

// Fetcher retrieves the current grades page.
type Fetcher interface {
	Fetch(ctx context.Context) (extract.Document, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context) (extract.Document, error)

func (f FetcherFunc) Fetch(ctx context.Context) (extract.Document, error) {
	return f(ctx)
}

// Store holds the baseline snapshot between cycles.
type Store interface {
	Load(ctx context.Context) grades.Snapshot
	Save(ctx context.Context, snapshot grades.Snapshot) error
}

// Journal keeps the notified events.
type Journal interface {
	Record(ctx context.Context, at time.Time, events []diff.Event) error
}

// Report describes what a cycle did.
type Report struct {
	At       time.Time
	Strategy string
	Snapshot grades.Snapshot
	Events   []diff.Event
	// Notified is false when there was nothing to send or the sink failed.
	Notified bool
	// Saved is false when the snapshot did not change.
	Saved bool
}

type Options struct {
	// Strategies defaults to extract.Strategies.
	Strategies []extract.Strategy
	// Journal is optional.
	Journal Journal
}

type Pipeline struct {
	fetcher    Fetcher
	store      Store
	sink       notify.Sink
	journal    Journal
	strategies []extract.Strategy
	time       chrono.TimeAPI
	tel        telemetry.API

	running atomic.Bool
}

func NewPipeline(
	fetcher Fetcher,
	store Store,
	sink notify.Sink,
	time chrono.TimeAPI,
	tel telemetry.API,
	opts Options,
) *Pipeline {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(store, "store")
	assert.NotNil(sink, "sink")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = extract.Strategies
	}

	return &Pipeline{
		fetcher:    fetcher,
		store:      store,
		sink:       sink,
		journal:    opts.Journal,
		strategies: strategies,
		time:       time,
		tel:        telemetry.NewScopedAPI("pipeline", tel),
	}
}

// Running reports whether a cycle is in flight.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// RunCycle runs a single cycle. At most one cycle runs at a time, a concurrent
// call fails with ErrCycleInProgress.
//
// The baseline is only replaced once the new snapshot was fully extracted: a
// failed or cancelled fetch, or a page with no recognizable grades, leaves it
// untouched. Delivery failures are reported but do not fail the cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, ErrCycleInProgress
	}
	defer p.running.Store(false)

	ctx, span := tracer.Start(
		ctx,
		"pipeline:RunCycle",
		trace.WithAttributes(attribute.Bool("journal", p.journal != nil)),
	)
	defer span.End()

	report := Report{At: p.time.Now()}
	old := p.store.Load(ctx)

	doc, err := p.fetcher.Fetch(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		p.tel.ReportBroken(report_fetch, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch grades page")
		return report, fmt.Errorf("fetch: %w", err)
	}

	result := extract.Run(doc, p.strategies)
	if result.Empty() {
		p.tel.ReportWarning(report_extract_empty, fmt.Errorf("no strategy recognized the grades page"))
		span.SetAttributes(attribute.Bool("empty", true))
		return report, nil
	}
	report.Strategy = result.Strategy
	report.Snapshot = result.Snapshot
	span.SetAttributes(
		attribute.String("strategy", result.Strategy),
		attribute.Int("records", result.Snapshot.Len()),
	)
	p.tel.ReportDebug("extracted grades", result.Strategy, result.Snapshot.Kind.String(), result.Snapshot.Len())

	report.Events = diff.Compute(old, result.Snapshot)
	published, updated := diff.Count(report.Events)
	p.tel.ReportCount(report_events_published, int64(published))
	p.tel.ReportCount(report_events_updated, int64(updated))

	if len(report.Events) > 0 {
		report.Notified = p.deliver(ctx, report.Events)
		p.record(ctx, report.At, report.Events)
	}

	err = ctx.Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled before save")
		return report, err
	}
	if old.Equal(result.Snapshot) {
		return report, nil
	}

	err = p.store.Save(ctx, result.Snapshot)
	if err != nil {
		p.tel.ReportBroken(report_save, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save snapshot")
		return report, fmt.Errorf("save: %w", err)
	}
	report.Saved = true
	return report, nil
}

func (p *Pipeline) deliver(ctx context.Context, events []diff.Event) bool {
	err := p.sink.Send(ctx, format.Changes(events))
	if err != nil {
		p.tel.ReportBroken(report_notify, err, len(events))
		return false
	}
	return true
}

func (p *Pipeline) record(ctx context.Context, at time.Time, events []diff.Event) {
	if p.journal == nil {
		return
	}
	err := p.journal.Record(ctx, at, events)
	if err != nil {
		p.tel.ReportWarning(report_journal, err, len(events))
	}
}
