package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	"BloomPull/internal/status"
	"BloomPull/pkg/logger"
	"BloomPull/pkg/queue"
	"BloomPull/pkg/util"
)

// Pipeline executes one fetch-normalize-commit pass for a scope. The
// implementation must be all-or-none per fetch window: on error or
// cancellation, nothing may have been committed.
type Pipeline interface {
	Ingest(ctx context.Context, scope models.Scope) (*IngestReport, error)
}

// IngestReport summarizes one committed pass.
type IngestReport struct {
	Rows     int
	Rejected int
	Covered  models.DateRange
	Complete bool
}

// Schedule drives one source's cadence. The scope template carries the
// symbols or series ids to refresh; the window is derived fresh each cycle.
type Schedule struct {
	Source         models.Source
	Cadence        time.Duration
	MaxConcurrency int
	Template       models.Scope
}

type Config struct {
	Workers      int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	BackfillDays int
	ReviewTopic  string
}

// Orchestrator owns all scheduling and concurrency state: per-source
// cadences and semaphores, the bounded worker pool, per-instrument write
// serialization, retries, and outcome recording. It is constructed once at
// process start and passed explicitly to anything that enqueues jobs.
type Orchestrator struct {
	cfg       Config
	pipeline  Pipeline
	store     repository.Store
	registry  *status.Registry
	rec       repository.Metrics
	review    queue.QueueService
	l         *logger.Logger
	schedules []Schedule

	jobs  chan *Job
	locks *keyedLocks

	mu       sync.Mutex
	inflight map[string]*Job
	sem      map[models.Source]chan struct{}

	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(cfg Config, pipeline Pipeline, store repository.Store, registry *status.Registry, rec repository.Metrics, review queue.QueueService, l *logger.Logger, schedules []Schedule) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = time.Minute
	}
	if cfg.BackfillDays <= 0 {
		cfg.BackfillDays = 365
	}

	o := &Orchestrator{
		cfg:       cfg,
		pipeline:  pipeline,
		store:     store,
		registry:  registry,
		rec:       rec,
		review:    review,
		l:         l,
		schedules: schedules,
		jobs:      make(chan *Job, 256),
		locks:     newKeyedLocks(),
		inflight:  make(map[string]*Job),
		sem:       make(map[models.Source]chan struct{}),
	}
	for _, s := range schedules {
		slots := s.MaxConcurrency
		if slots <= 0 {
			slots = 1
		}
		o.sem[s.Source] = make(chan struct{}, slots)
	}
	return o
}

// Start launches the worker pool and the per-source cadence tickers.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, o.cancel = context.WithCancel(ctx)
	o.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < o.cfg.Workers; i++ {
		o.group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-o.jobs:
					o.execute(ctx, job)
				}
			}
		})
	}

	for _, sched := range o.schedules {
		sched := sched
		o.group.Go(func() error {
			ticker := time.NewTicker(sched.Cadence)
			defer ticker.Stop()
			// first cycle fires immediately so a fresh process backfills
			o.enqueueScheduled(ctx, sched)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					o.enqueueScheduled(ctx, sched)
				}
			}
		})
	}

	o.l.Info("orchestrator started",
		logger.Int("workers", o.cfg.Workers),
		logger.Int("schedules", len(o.schedules)))
	return nil
}

// Stop cancels in-flight work and waits for workers to drain.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.cancel != nil {
		o.cancel()
	}
	done := make(chan struct{})
	go func() {
		if o.group != nil {
			_ = o.group.Wait()
		}
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("orchestrator stop: %w", ctx.Err())
	case <-done:
		o.l.Info("orchestrator stopped")
		return nil
	}
}

// Submit enqueues a refresh for a scope. It is idempotent per scope key:
// when a job for the same scope is already in flight, the existing job is
// returned and isNew is false.
func (o *Orchestrator) Submit(scope models.Scope) (*Job, bool) {
	key := scope.Key()

	o.mu.Lock()
	if existing, ok := o.inflight[key]; ok {
		o.mu.Unlock()
		return existing, false
	}
	job := newJob(scope)
	o.inflight[key] = job
	o.mu.Unlock()

	select {
	case o.jobs <- job:
	default:
		// queue saturated: fail fast instead of blocking the caller
		o.mu.Lock()
		delete(o.inflight, key)
		o.mu.Unlock()
		job.finish(StateFailed, "job queue full")
		return job, true
	}
	return job, true
}

// Jobs lists snapshots of the currently in-flight jobs.
func (o *Orchestrator) Jobs() []View {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]View, 0, len(o.inflight))
	for _, j := range o.inflight {
		out = append(out, j.View())
	}
	return out
}

func (o *Orchestrator) enqueueScheduled(ctx context.Context, sched Schedule) {
	scope := sched.Template
	scope.Range = o.deriveRange(ctx, scope)
	if scope.Range.Days() <= 0 {
		return // already current
	}
	if _, isNew := o.Submit(scope); isNew {
		o.l.Debug("scheduled refresh",
			logger.String("source", string(scope.Source)),
			logger.String("from", util.FormatDay(scope.Range.From)),
			logger.String("to", util.FormatDay(scope.Range.To)))
	}
}

// deriveRange resumes each cycle where the store left off: the earliest
// last-ingested bar across the scope's symbols plus one day, falling back to
// the configured backfill horizon for series with no data yet.
func (o *Orchestrator) deriveRange(ctx context.Context, scope models.Scope) models.DateRange {
	to := util.TruncateDay(time.Now()).Add(24 * time.Hour)
	fallback := to.AddDate(0, 0, -o.cfg.BackfillDays)

	from := to
	checkpointed := false
	for _, sym := range scope.Symbols {
		series := models.SeriesKey{
			Instrument: models.NewInstrumentKey(sym, scope.Class, scope.Venue),
			Source:     scope.Source,
		}
		last, err := o.store.LastBarTS(ctx, series)
		if err != nil || last.IsZero() {
			return models.DateRange{From: fallback, To: to}
		}
		checkpointed = true
		if next := last.Add(24 * time.Hour); next.Before(from) {
			from = next
		}
	}
	if !checkpointed {
		// macro and news scopes have no bar checkpoint; refetch the horizon
		// and rely on upsert-by-timestamp idempotence
		from = fallback
	}
	// from stays at to when every symbol is current; the zero-day range
	// makes the cadence tick skip this cycle
	return models.DateRange{From: from, To: to}
}

func (o *Orchestrator) execute(ctx context.Context, job *Job) {
	if sem, ok := o.sem[job.Scope.Source]; ok {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			o.finalize(ctx, job, nil, ctx.Err())
			return
		}
	}

	var rep *IngestReport
	var err error
	for {
		job.setRunning()
		rep, err = o.runOnce(ctx, job.Scope)
		if err == nil || ctx.Err() != nil || !models.IsTransient(err) {
			break
		}
		view := job.View()
		if view.Attempts >= o.cfg.MaxAttempts {
			break
		}
		delay := o.backoff(view.Attempts, models.KindOf(err))
		o.l.Warn("transient ingest failure, retrying",
			logger.String("source", string(job.Scope.Source)),
			logger.Int("attempt", view.Attempts),
			logger.Duration("backoff_ms", delay),
			logger.Error(err))
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(delay):
			continue
		}
		break
	}

	o.finalize(ctx, job, rep, err)
}

func (o *Orchestrator) runOnce(ctx context.Context, scope models.Scope) (*IngestReport, error) {
	unlock := o.locks.lockScope(scope)
	defer unlock()
	return o.pipeline.Ingest(ctx, scope)
}

// backoff grows exponentially from the base, capped, with a floor for
// rate-limit rejections so the provider's cool-off is respected.
func (o *Orchestrator) backoff(attempt int, kind models.FailureKind) time.Duration {
	d := o.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.cfg.BackoffMax {
			d = o.cfg.BackoffMax
			break
		}
	}
	if kind == models.FailRateLimit && d < 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func (o *Orchestrator) finalize(ctx context.Context, job *Job, rep *IngestReport, err error) {
	view := job.View()
	finishedAt := time.Now().UTC()

	run := models.IngestionRun{
		ID:        job.ID,
		Source:    job.Scope.Source,
		ScopeKey:  job.Scope.Key(),
		StartedAt: view.StartedAt,
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = view.CreatedAt
	}
	run.FinishedAt = finishedAt
	run.LatencyMS = finishedAt.Sub(run.StartedAt).Milliseconds()

	var state JobState
	var remainder models.DateRange
	switch {
	case err != nil:
		state = StateFailed
		run.Outcome = models.RunFailed
		run.ErrorDetail = err.Error()
		if models.KindOf(err) == models.FailMalformed {
			o.flagForReview(job, err)
		}
	case rep.Complete:
		state = StateSucceeded
		run.Outcome = models.RunSuccess
		run.RowsIngested = rep.Rows
		run.Coverage = 1
	case rep.Covered.IsZero():
		// an empty fetch means the provider has nothing newer for the
		// window yet (EOD row not published, holiday span). That is
		// "nothing new", not a failure, and never a reason to resubmit
		// the same window; the next cadence tick asks again.
		state = StateSucceeded
		run.Outcome = models.RunSuccess
		run.RowsIngested = rep.Rows
		run.Coverage = 1
	default:
		remainder = job.Scope.Range.Remainder(rep.Covered)
		if remainder.IsZero() {
			// rows reach the window end; the uncovered head has no data
			// (non-trading days), so nothing remains to fetch
			state = StateSucceeded
			run.Outcome = models.RunSuccess
			run.RowsIngested = rep.Rows
			run.Coverage = 1
		} else {
			state = StatePartialFailure
			run.Outcome = models.RunPartial
			run.RowsIngested = rep.Rows
			run.Coverage = job.Scope.Range.Fraction(rep.Covered)
			run.ErrorDetail = fmt.Sprintf("partial window: covered %s..%s of %s..%s",
				util.FormatDay(rep.Covered.From), util.FormatDay(rep.Covered.To),
				util.FormatDay(job.Scope.Range.From), util.FormatDay(job.Scope.Range.To))
		}
	}

	// audit trail first: the registry is rebuildable from it
	if recErr := o.store.RecordRun(ctx, run); recErr != nil && !errors.Is(recErr, context.Canceled) {
		o.l.Error("record ingestion run", logger.Error(recErr))
	}
	o.registry.Record(run)
	o.rec.RecordJobOutcome(string(run.Source), string(run.Outcome))
	o.rec.RecordJobDuration(string(run.Source), float64(run.LatencyMS)/1000)
	if run.RowsIngested > 0 {
		o.rec.RecordRowsIngested(string(run.Source), run.RowsIngested)
	}
	if run.Outcome == models.RunSuccess {
		o.rec.RecordLastSuccess(string(run.Source), run.FinishedAt)
	}

	o.mu.Lock()
	delete(o.inflight, job.Scope.Key())
	o.mu.Unlock()
	job.finish(state, run.ErrorDetail)

	// a partial window is re-fetched for the missing remainder only
	if state == StatePartialFailure && !remainder.IsZero() && ctx.Err() == nil {
		rescope := job.Scope
		rescope.Range = remainder
		if _, isNew := o.Submit(rescope); isNew {
			o.l.Info("rescheduled missing range",
				logger.String("source", string(rescope.Source)),
				logger.String("from", util.FormatDay(remainder.From)),
				logger.String("to", util.FormatDay(remainder.To)))
		}
	}
}

// flagForReview publishes a malformed-payload failure to the manual review
// queue. Structural failures are never retried automatically.
func (o *Orchestrator) flagForReview(job *Job, cause error) {
	if o.review == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload := map[string]interface{}{
		"job_id":    job.ID,
		"source":    string(job.Scope.Source),
		"scope_key": job.Scope.Key(),
		"error":     cause.Error(),
		"at":        time.Now().UTC(),
	}
	if err := o.review.PublishMessage(pubCtx, o.cfg.ReviewTopic, payload); err != nil {
		o.l.Error("publish review item", logger.Error(err))
	}
}
