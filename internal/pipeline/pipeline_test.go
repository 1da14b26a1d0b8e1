package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gradewatch/internal/cache"
	"gradewatch/internal/chrono"
	"gradewatch/internal/diff"
	"gradewatch/internal/extract"
	"gradewatch/internal/grades"
	"gradewatch/internal/htmlsource"
	"gradewatch/internal/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 20, 10, 0, 0, 0, chrono.Paris())

type sink struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (s *sink) Send(ctx context.Context, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, body)
	return nil
}

type journal struct {
	events []diff.Event
	err    error
}

func (j *journal) Record(ctx context.Context, at time.Time, events []diff.Event) error {
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, events...)
	return nil
}

func page(t testing.TB, html string) Fetcher {
	return FetcherFunc(func(ctx context.Context) (extract.Document, error) {
		doc, err := htmlsource.ParseBytes([]byte(html))
		require.NoError(t, err)
		return doc, nil
	})
}

type fixture struct {
	path     string
	store    cache.FileStore
	sink     *sink
	journal  *journal
	tel      *telemetry.Recorder
	pipeline *Pipeline
}

func setup(t testing.TB, cached string, fetcher Fetcher) fixture {
	path := filepath.Join(t.TempDir(), "notes.json")
	if cached != "" {
		require.NoError(t, os.WriteFile(path, []byte(cached), 0644))
	}

	f := fixture{
		path:    path,
		sink:    &sink{},
		journal: &journal{},
		tel:     telemetry.NewRecorder(),
	}
	f.store = cache.NewFileStore(path, f.tel)
	f.pipeline = NewPipeline(
		fetcher,
		f.store,
		f.sink,
		chrono.FixedTime{At: now},
		f.tel,
		Options{Journal: f.journal},
	)
	return f
}

func (f fixture) content(t testing.TB) string {
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	return string(data)
}

const flatPage = `<table>
	<tr><th>Code</th><th>Matière</th><th>Note</th></tr>
	<tr><td>STM-GE-01</td><td>Electronique (3)</td><td>14,5</td></tr>
</table>`

const unitPage = `<table><tr><td>
	<table>
		<tr><td>UE-GEC-01</td></tr>
		<tr><td>STM-01</td><td>Analyse</td><td>12</td></tr>
	</table>
</td></tr></table>`

func TestPublishedAfterSentinel(t *testing.T) {
	f := setup(t, `{"Electronique": {"note": "-", "coef": "3"}}`, page(t, flatPage))

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)

	expected := []diff.Event{{
		Category:    diff.Published,
		Subject:     "Electronique",
		Label:       "Electronique (3)",
		OldGrade:    "-",
		NewGrade:    "14,5",
		Coefficient: "3",
	}}
	if diff := cmp.Diff(expected, report.Events); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, extract.StrategyFlat, report.Strategy)
	require.True(t, report.Notified)
	require.True(t, report.Saved)
	require.Len(t, f.sink.messages, 1)
	require.Contains(t, f.sink.messages[0], "📚 *Electronique*")
	require.Equal(t, expected, f.journal.events)

	persisted := f.store.Load(context.Background())
	require.True(t, persisted.Equal(report.Snapshot))
	record := persisted.Records[0]
	require.Equal(t, "14,5", record.Grade)
	require.Equal(t, "3", record.Coefficient)
}

func TestUnchangedSnapshotIsNotRewritten(t *testing.T) {
	cached := `{"UE-GEC-01": {"matieres": {"Analyse": "12"}, "moyenne": "-"}}`
	f := setup(t, cached, page(t, unitPage))

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Events)
	require.False(t, report.Saved)
	require.Empty(t, f.sink.messages)
	require.Equal(t, cached, f.content(t))
}

func TestSecondCycleIsIdempotent(t *testing.T) {
	f := setup(t, "", page(t, unitPage))

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Events, 1)
	first := f.content(t)

	report, err = f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Events)
	require.Equal(t, first, f.content(t))
	require.Len(t, f.sink.messages, 1)
}

func TestCorruptCacheIsEmptyBaseline(t *testing.T) {
	f := setup(t, `{"Electronique": {"note": "12", "co`, page(t, `<table>
		<tr><td>1</td><td>Electronique (3)</td><td>14,5</td></tr>
		<tr><td>2</td><td>Physique</td><td>-</td></tr>
		<tr><td>3</td><td>Chimie</td><td>9</td></tr>
	</table>`))

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Events, 2)
	for _, ev := range report.Events {
		require.Equal(t, diff.Published, ev.Category)
	}
	require.True(t, f.tel.Has(telemetry.KindWarning, "store.load"))

	persisted := f.store.Load(context.Background())
	require.Equal(t, 3, persisted.Len())
}

func TestEmptyExtractionLeavesCacheUntouched(t *testing.T) {
	cached := `{"Electronique": {"note": "12", "coef": "3"}}`
	f := setup(t, cached, page(t, `<html><body><p>Service indisponible</p></body></html>`))

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "", report.Strategy)
	require.Empty(t, report.Events)
	require.Empty(t, f.sink.messages)
	require.Equal(t, cached, f.content(t))
	require.True(t, f.tel.Has(telemetry.KindWarning, report_extract_empty))
}

func TestNotificationFailureStillSaves(t *testing.T) {
	f := setup(t, "", page(t, flatPage))
	f.sink.err = errors.New("network unreachable")

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Events, 1)
	require.False(t, report.Notified)
	require.True(t, report.Saved)
	require.True(t, f.tel.Has(telemetry.KindBroken, report_notify))
	require.Equal(t, 1, f.store.Load(context.Background()).Len())
}

func TestJournalFailureDoesNotAbort(t *testing.T) {
	f := setup(t, "", page(t, flatPage))
	f.journal.err = errors.New("disk full")

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, report.Saved)
	require.True(t, f.tel.Has(telemetry.KindWarning, report_journal))
}

func TestFetchFailureLeavesCacheUntouched(t *testing.T) {
	cached := `{"Electronique": {"note": "-", "coef": "3"}}`
	failure := errors.New("portal unreachable")
	f := setup(t, cached, FetcherFunc(func(ctx context.Context) (extract.Document, error) {
		return nil, failure
	}))

	_, err := f.pipeline.RunCycle(context.Background())
	require.ErrorIs(t, err, failure)
	require.Equal(t, cached, f.content(t))
	require.Empty(t, f.sink.messages)
	require.False(t, f.pipeline.Running())
}

func TestCancelledCycleLeavesCacheUntouched(t *testing.T) {
	cached := `{"Electronique": {"note": "-", "coef": "3"}}`
	ctx, cancel := context.WithCancel(context.Background())

	f := setup(t, cached, FetcherFunc(func(ctx context.Context) (extract.Document, error) {
		doc, err := htmlsource.ParseBytes([]byte(flatPage))
		cancel()
		return doc, err
	}))

	_, err := f.pipeline.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, cached, f.content(t))
	require.Empty(t, f.sink.messages)
}

func TestAtMostOneCycle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	f := setup(t, "", FetcherFunc(func(ctx context.Context) (extract.Document, error) {
		close(started)
		<-release
		return htmlsource.ParseBytes([]byte(flatPage))
	}))

	done := make(chan error)
	go func() {
		_, err := f.pipeline.RunCycle(context.Background())
		done <- err
	}()

	<-started
	require.True(t, f.pipeline.Running())
	_, err := f.pipeline.RunCycle(context.Background())
	require.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	require.NoError(t, <-done)
	require.False(t, f.pipeline.Running())
	require.Len(t, f.sink.messages, 1)
}

func TestCustomStrategies(t *testing.T) {
	f := setup(t, "", page(t, flatPage))
	f.pipeline = NewPipeline(
		page(t, flatPage),
		f.store,
		f.sink,
		chrono.FixedTime{At: now},
		f.tel,
		Options{Strategies: []extract.Strategy{{
			Name: "fixed",
			Extract: func(extract.Document) grades.Snapshot {
				b := grades.NewBuilder()
				b.Put(grades.NewRecord("Anglais", "16", ""))
				return b.Snapshot()
			},
		}}},
	)

	report, err := f.pipeline.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fixed", report.Strategy)
	require.Equal(t, "Anglais", report.Events[0].Subject)
	require.True(t, report.At.Equal(now))
}
