package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/domain/models"
	"BloomPull/internal/status"
	"BloomPull/pkg/logger"
	"BloomPull/pkg/util"
)

type fakePipeline struct {
	mu     sync.Mutex
	calls  []models.Scope
	handle func(scope models.Scope, call int) (*IngestReport, error)
}

func (p *fakePipeline) Ingest(_ context.Context, scope models.Scope) (*IngestReport, error) {
	p.mu.Lock()
	p.calls = append(p.calls, scope)
	call := len(p.calls)
	p.mu.Unlock()
	return p.handle(scope, call)
}

func (p *fakePipeline) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePipeline) call(i int) models.Scope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

// fakeStore records runs and answers bar checkpoints; everything else is
// unused by the orchestrator.
type fakeStore struct {
	mu     sync.Mutex
	runs   []models.IngestionRun
	lastTS time.Time
	runCh  chan models.IngestionRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{runCh: make(chan models.IngestionRun, 16)}
}

func (s *fakeStore) RecordRun(_ context.Context, run models.IngestionRun) error {
	s.mu.Lock()
	s.runs = append(s.runs, run)
	s.mu.Unlock()
	s.runCh <- run
	return nil
}

func (s *fakeStore) LastBarTS(context.Context, models.SeriesKey) (time.Time, error) {
	return s.lastTS, nil
}

func (s *fakeStore) Init(context.Context) error   { return nil }
func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

func (s *fakeStore) UpsertInstruments(context.Context, []models.Instrument) error { return nil }
func (s *fakeStore) GetInstrument(context.Context, models.InstrumentKey) (*models.Instrument, error) {
	return nil, models.ErrNotFound
}
func (s *fakeStore) ListInstruments(context.Context, models.AssetClass) ([]models.Instrument, error) {
	return nil, nil
}
func (s *fakeStore) WriteBars(context.Context, []models.OHLCVBar) error { return nil }
func (s *fakeStore) QueryBars(context.Context, models.SeriesKey, models.DateRange, int) ([]models.OHLCVBar, error) {
	return nil, nil
}
func (s *fakeStore) WriteMacro(context.Context, models.MacroSeries) error { return nil }
func (s *fakeStore) QueryMacro(context.Context, models.Source, string, models.DateRange) (*models.MacroSeries, error) {
	return nil, models.ErrNotFound
}
func (s *fakeStore) WriteNews(context.Context, []models.NewsItem) error { return nil }
func (s *fakeStore) QueryNews(context.Context, models.DateRange, int) ([]models.NewsItem, error) {
	return nil, nil
}
func (s *fakeStore) QueryRuns(context.Context, time.Time, int) ([]models.IngestionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.IngestionRun(nil), s.runs...), nil
}

func (s *fakeStore) waitRun(t *testing.T) models.IngestionRun {
	t.Helper()
	select {
	case run := <-s.runCh:
		return run
	case <-time.After(5 * time.Second):
		t.Fatal("no run recorded in time")
		return models.IngestionRun{}
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordRowsIngested(string, int)      {}
func (noopMetrics) RecordJobOutcome(string, string)     {}
func (noopMetrics) RecordJobDuration(string, float64)   {}
func (noopMetrics) RecordCacheHit(string)               {}
func (noopMetrics) RecordCacheMiss(string)              {}
func (noopMetrics) RecordLastSuccess(string, time.Time) {}
func (noopMetrics) RecordRecompute(int)                 {}

type fakeReview struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (q *fakeReview) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return nil
}

func testScope(symbols ...string) models.Scope {
	return models.Scope{
		Source:  models.SourceStooq,
		Class:   models.AssetEquity,
		Venue:   "us",
		Symbols: symbols,
		Range: models.DateRange{
			From: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC),
		},
	}
}

func startOrchestrator(t *testing.T, cfg Config, p Pipeline, store *fakeStore, review *fakeReview) (*Orchestrator, *status.Registry) {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	registry := status.NewRegistry()

	var reviewQueue queueService
	if review != nil {
		reviewQueue = review
	}
	o := New(cfg, p, store, registry, noopMetrics{}, reviewQueue, l, nil)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Stop(ctx)
	})
	return o, registry
}

// queueService mirrors queue.QueueService so a nil *fakeReview never becomes
// a non-nil interface.
type queueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish in time")
	}
}

func TestSuccessfulRunIsRecorded(t *testing.T) {
	store := newFakeStore()
	p := &fakePipeline{handle: func(scope models.Scope, _ int) (*IngestReport, error) {
		return &IngestReport{Rows: 42, Covered: scope.Range, Complete: true}, nil
	}}
	o, registry := startOrchestrator(t, Config{}, p, store, nil)

	job, isNew := o.Submit(testScope("AAPL.US"))
	require.True(t, isNew)
	waitDone(t, job)

	view := job.View()
	assert.Equal(t, StateSucceeded, view.State)
	assert.Equal(t, 1, view.Attempts)

	run := store.waitRun(t)
	assert.Equal(t, models.RunSuccess, run.Outcome)
	assert.Equal(t, 42, run.RowsIngested)
	assert.Equal(t, 1.0, run.Coverage)
	assert.Equal(t, job.ID, run.ID)

	h, ok := registry.Get(models.SourceStooq)
	require.True(t, ok)
	assert.Equal(t, models.RunSuccess, h.LastOutcome)
	assert.Zero(t, h.ConsecutiveFailures)
}

func TestSubmitDedupesByScopeKey(t *testing.T) {
	release := make(chan struct{})
	store := newFakeStore()
	p := &fakePipeline{handle: func(scope models.Scope, _ int) (*IngestReport, error) {
		<-release
		return &IngestReport{Covered: scope.Range, Complete: true}, nil
	}}
	o, _ := startOrchestrator(t, Config{}, p, store, nil)

	first, isNew := o.Submit(testScope("AAPL.US", "MSFT.US"))
	require.True(t, isNew)

	// same symbols, different order and window: still the same job
	dup := testScope("MSFT.US", "AAPL.US")
	dup.Range.From = dup.Range.From.AddDate(0, 0, -30)
	second, isNew := o.Submit(dup)
	assert.False(t, isNew)
	assert.Same(t, first, second)

	close(release)
	waitDone(t, first)

	// a finished scope can be submitted again
	third, isNew := o.Submit(testScope("AAPL.US", "MSFT.US"))
	require.True(t, isNew)
	assert.NotSame(t, first, third)
	waitDone(t, third)
}

func TestPartialWindowResubmitsRemainder(t *testing.T) {
	scope := testScope("AAPL.US")
	covered := models.DateRange{From: scope.Range.From, To: scope.Range.From.AddDate(0, 0, 3)}

	store := newFakeStore()
	p := &fakePipeline{handle: func(sc models.Scope, call int) (*IngestReport, error) {
		if call == 1 {
			return &IngestReport{Rows: 3, Covered: covered, Complete: false}, nil
		}
		return &IngestReport{Rows: 7, Covered: sc.Range, Complete: true}, nil
	}}
	o, _ := startOrchestrator(t, Config{}, p, store, nil)

	job, _ := o.Submit(scope)
	waitDone(t, job)
	assert.Equal(t, StatePartialFailure, job.View().State)

	first := store.waitRun(t)
	assert.Equal(t, models.RunPartial, first.Outcome)
	assert.InDelta(t, 0.3, first.Coverage, 1e-9)

	second := store.waitRun(t)
	assert.Equal(t, models.RunSuccess, second.Outcome)
	assert.NotEqual(t, first.ID, second.ID)

	// the follow-up fetched only the uncovered tail
	require.Equal(t, 2, p.callCount())
	got := p.call(1).Range
	assert.Equal(t, covered.To, got.From)
	assert.Equal(t, scope.Range.To, got.To)
}

// An adapter that finds nothing for the window (EOD row not published yet,
// holiday span) must finish as a zero-row success, not spin resubmitting the
// same scope.
func TestEmptyWindowIsNothingNew(t *testing.T) {
	store := newFakeStore()
	p := &fakePipeline{handle: func(models.Scope, int) (*IngestReport, error) {
		return &IngestReport{Rows: 0, Complete: false}, nil
	}}
	o, registry := startOrchestrator(t, Config{}, p, store, nil)

	job, _ := o.Submit(testScope("AAPL.US"))
	waitDone(t, job)
	assert.Equal(t, StateSucceeded, job.View().State)

	run := store.waitRun(t)
	assert.Equal(t, models.RunSuccess, run.Outcome)
	assert.Zero(t, run.RowsIngested)

	// exactly one pipeline call and one recorded run for the whole job
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, p.callCount())
	store.mu.Lock()
	assert.Len(t, store.runs, 1)
	store.mu.Unlock()

	h, ok := registry.Get(models.SourceStooq)
	require.True(t, ok)
	assert.Zero(t, h.ConsecutiveFailures)
}

// A window whose head falls on non-trading days has rows only from the first
// trading day onward. Coverage reaching the window end leaves nothing to
// fetch, so the run is a success rather than a perpetual partial.
func TestTailCoverageIsSuccess(t *testing.T) {
	scope := testScope("AAPL.US")
	covered := models.DateRange{From: scope.Range.From.AddDate(0, 0, 3), To: scope.Range.To}

	store := newFakeStore()
	p := &fakePipeline{handle: func(models.Scope, int) (*IngestReport, error) {
		return &IngestReport{Rows: 5, Covered: covered, Complete: false}, nil
	}}
	o, _ := startOrchestrator(t, Config{}, p, store, nil)

	job, _ := o.Submit(scope)
	waitDone(t, job)
	assert.Equal(t, StateSucceeded, job.View().State)

	run := store.waitRun(t)
	assert.Equal(t, models.RunSuccess, run.Outcome)
	assert.Equal(t, 5, run.RowsIngested)
	assert.Equal(t, 1.0, run.Coverage)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, p.callCount())
}

func TestMalformedFailureIsNotRetried(t *testing.T) {
	store := newFakeStore()
	review := &fakeReview{}
	cause := errors.New("unexpected csv header")
	p := &fakePipeline{handle: func(models.Scope, int) (*IngestReport, error) {
		return nil, models.NewMalformedError(models.SourceStooq, cause)
	}}
	o, registry := startOrchestrator(t, Config{MaxAttempts: 5, ReviewTopic: "review"}, p, store, review)

	job, _ := o.Submit(testScope("AAPL.US"))
	waitDone(t, job)

	assert.Equal(t, StateFailed, job.View().State)
	assert.Equal(t, 1, p.callCount())

	run := store.waitRun(t)
	assert.Equal(t, models.RunFailed, run.Outcome)

	review.mu.Lock()
	assert.Len(t, review.payloads, 1)
	review.mu.Unlock()

	h, _ := registry.Get(models.SourceStooq)
	assert.Equal(t, 1, h.ConsecutiveFailures)
}

func TestTransientFailureRetriesToMaxAttempts(t *testing.T) {
	store := newFakeStore()
	p := &fakePipeline{handle: func(models.Scope, int) (*IngestReport, error) {
		return nil, models.NewNetworkError(models.SourceStooq, errors.New("connection reset"))
	}}
	cfg := Config{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: 2 * time.Millisecond}
	o, _ := startOrchestrator(t, cfg, p, store, nil)

	job, _ := o.Submit(testScope("AAPL.US"))
	waitDone(t, job)

	view := job.View()
	assert.Equal(t, StateFailed, view.State)
	assert.Equal(t, 3, view.Attempts)
	assert.Equal(t, 3, p.callCount())
}

func TestBackoffGrowthAndRateLimitFloor(t *testing.T) {
	o := New(Config{BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second}, nil, nil, status.NewRegistry(), noopMetrics{}, nil, nil, nil)

	assert.Equal(t, 100*time.Millisecond, o.backoff(1, models.FailNetwork))
	assert.Equal(t, 200*time.Millisecond, o.backoff(2, models.FailNetwork))
	assert.Equal(t, 400*time.Millisecond, o.backoff(3, models.FailNetwork))
	assert.Equal(t, time.Second, o.backoff(10, models.FailNetwork))

	// provider cool-off floor
	assert.Equal(t, 5*time.Second, o.backoff(1, models.FailRateLimit))
}

func TestDeriveRangeResumesFromCheckpoint(t *testing.T) {
	store := newFakeStore()
	store.lastTS = time.Now().UTC().AddDate(0, 0, -10)

	o := New(Config{BackfillDays: 365}, nil, store, status.NewRegistry(), noopMetrics{}, nil, nil, nil)

	scope := testScope("AAPL.US")
	r := o.deriveRange(context.Background(), scope)
	assert.False(t, r.IsZero())
	assert.InDelta(t, 10, r.Days(), 1)

	// no checkpoint yet: full backfill horizon
	store.lastTS = time.Time{}
	emptyStore := newFakeStore()
	o = New(Config{BackfillDays: 30}, nil, emptyStore, status.NewRegistry(), noopMetrics{}, nil, nil, nil)
	r = o.deriveRange(context.Background(), scope)
	assert.InDelta(t, 30, r.Days(), 1)
}

// A scope whose symbols all carry today's bar already must derive an empty
// range, not fall back to the backfill horizon.
func TestDeriveRangeEmptyWhenCurrent(t *testing.T) {
	store := newFakeStore()
	store.lastTS = util.TruncateDay(time.Now())

	o := New(Config{BackfillDays: 365}, nil, store, status.NewRegistry(), noopMetrics{}, nil, nil, nil)

	r := o.deriveRange(context.Background(), testScope("AAPL.US"))
	assert.LessOrEqual(t, r.Days(), 0)
}
