package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BloomPull/internal/adapter"
	icache "BloomPull/internal/cache"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	"BloomPull/internal/normalizer"
	"BloomPull/internal/orchestrator"
	"BloomPull/pkg/logger"
)

// IngestPipeline is the fetch-normalize-commit path for one scope. The store
// commit is the point of visibility: cache fill and bar events happen only
// after rows are durable, and a failure before commit leaves no trace.
type IngestPipeline struct {
	fetchers map[models.Source]adapter.Fetcher
	store    repository.Store
	cache    *icache.Domain
	bus      repository.Bus
	l        *logger.Logger
}

func NewIngestPipeline(fetchers map[models.Source]adapter.Fetcher, store repository.Store, cache *icache.Domain, bus repository.Bus, l *logger.Logger) *IngestPipeline {
	return &IngestPipeline{fetchers: fetchers, store: store, cache: cache, bus: bus, l: l}
}

var _ orchestrator.Pipeline = (*IngestPipeline)(nil)

func (p *IngestPipeline) Ingest(ctx context.Context, scope models.Scope) (*orchestrator.IngestReport, error) {
	fetcher, ok := p.fetchers[scope.Source]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q", scope.Source)
	}

	startedAt := time.Now().UTC()
	batch, err := fetcher.Fetch(ctx, scope)
	if err != nil {
		return nil, err
	}

	snapshot, err := p.identitySnapshot(ctx, scope, batch)
	if err != nil {
		return nil, models.NewStorageError(scope.Source, err)
	}

	res := normalizer.Normalize(batch, snapshot, startedAt)
	for _, rej := range res.Rejected {
		p.l.Warn("record rejected",
			logger.String("source", string(scope.Source)),
			logger.String("reason", string(rej.Reason)),
			logger.String("symbol", rej.Record.Symbol),
			logger.String("detail", rej.Detail))
	}

	// nothing may commit on a cancelled job
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.commit(ctx, scope.Source, res); err != nil {
		return nil, err
	}
	p.fillCache(ctx, res, startedAt)
	p.publishEvents(ctx, batch.Covered, res)

	return &orchestrator.IngestReport{
		Rows:     res.Rows(),
		Rejected: len(res.Rejected),
		Covered:  batch.Covered,
		Complete: batch.Complete,
	}, nil
}

// identitySnapshot collects the already-known instruments the normalizer may
// resolve against: everything in the scope plus any symbols the batch itself
// mentions, e.g. tickers attached to news items.
func (p *IngestPipeline) identitySnapshot(ctx context.Context, scope models.Scope, batch *models.IntermediateBatch) (normalizer.IdentitySnapshot, error) {
	keys := make(map[models.InstrumentKey]struct{})
	for _, sym := range scope.Symbols {
		keys[models.NewInstrumentKey(sym, scope.Class, scope.Venue)] = struct{}{}
	}
	for _, rec := range batch.Records {
		if rec.Symbol != "" && rec.Class.Valid() {
			keys[models.NewInstrumentKey(rec.Symbol, rec.Class, rec.Venue)] = struct{}{}
		}
	}

	snap := make(normalizer.IdentitySnapshot, len(keys))
	for key := range keys {
		ins, err := p.store.GetInstrument(ctx, key)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snap[key] = *ins
	}
	return snap, nil
}

// commit writes canonical entities in dependency order: identities first so
// every stored row references a known instrument. Any storage failure fails
// the whole cycle; partial inserts are absorbed by key-idempotent writes on
// the next run.
func (p *IngestPipeline) commit(ctx context.Context, src models.Source, res *normalizer.Result) error {
	if len(res.Instruments) > 0 {
		if err := p.store.UpsertInstruments(ctx, res.Instruments); err != nil {
			return models.NewStorageError(src, err)
		}
	}
	if len(res.Bars) > 0 {
		if err := p.store.WriteBars(ctx, res.Bars); err != nil {
			return models.NewStorageError(src, err)
		}
	}
	for _, series := range res.Macro {
		if err := p.store.WriteMacro(ctx, series); err != nil {
			return models.NewStorageError(src, err)
		}
	}
	if len(res.News) > 0 {
		if err := p.store.WriteNews(ctx, res.News); err != nil {
			return models.NewStorageError(src, err)
		}
	}
	return nil
}

// fillCache write-throughs committed rows. Cache errors are logged, never
// propagated: the store already holds the truth and reads fall through.
func (p *IngestPipeline) fillCache(ctx context.Context, res *normalizer.Result, asOf time.Time) {
	for series, bars := range groupBySeries(res.Bars) {
		if err := p.cache.PutBars(ctx, series, bars, asOf); err != nil {
			p.l.Error("cache bars", logger.String("series", series.String()), logger.Error(err))
		}
	}
	for _, ins := range res.Instruments {
		if err := p.cache.PutInstrument(ctx, ins, asOf); err != nil {
			p.l.Error("cache instrument", logger.String("key", ins.Key.String()), logger.Error(err))
		}
	}
}

func (p *IngestPipeline) publishEvents(ctx context.Context, covered models.DateRange, res *normalizer.Result) {
	at := time.Now().UTC()
	for series, bars := range groupBySeries(res.Bars) {
		ev := models.BarEvent{Series: series, Range: covered, Rows: len(bars), At: at}
		if err := p.bus.PublishBarEvent(ctx, ev); err != nil {
			p.l.Error("publish bar event", logger.String("series", series.String()), logger.Error(err))
		}
	}
}

func groupBySeries(bars []models.OHLCVBar) map[models.SeriesKey][]models.OHLCVBar {
	out := make(map[models.SeriesKey][]models.OHLCVBar)
	for _, b := range bars {
		out[b.Series()] = append(out[b.Series()], b)
	}
	return out
}
