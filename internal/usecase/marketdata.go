package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BloomPull/internal/analytics"
	icache "BloomPull/internal/cache"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	"BloomPull/internal/status"
	"BloomPull/pkg/logger"
)

// MarketData is the read surface over cache and store. Reads prefer the cache
// and fall through to committed rows; nothing on this path ever fetches from
// an upstream provider.
type MarketData struct {
	store    repository.Store
	cache    *icache.Domain
	engine   *analytics.Engine
	registry *status.Registry
	l        *logger.Logger
}

func NewMarketData(store repository.Store, cache *icache.Domain, engine *analytics.Engine, registry *status.Registry, l *logger.Logger) *MarketData {
	return &MarketData{store: store, cache: cache, engine: engine, registry: registry, l: l}
}

// GetInstrument resolves instrument metadata, cache first.
func (m *MarketData) GetInstrument(ctx context.Context, key models.InstrumentKey) (*models.Instrument, error) {
	if ins, _, ok := m.cache.GetInstrument(ctx, key); ok {
		return ins, nil
	}
	ins, err := m.store.GetInstrument(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := m.cache.PutInstrument(ctx, *ins, ins.UpdatedAt); err != nil {
		m.l.Error("cache instrument", logger.Error(err))
	}
	return ins, nil
}

// ListInstruments lists committed instruments, optionally filtered by class.
func (m *MarketData) ListInstruments(ctx context.Context, class models.AssetClass) ([]models.Instrument, error) {
	return m.store.ListInstruments(ctx, class)
}

// SeriesResult carries bars plus the freshness of whatever layer served them.
type SeriesResult struct {
	Series    models.SeriesKey  `json:"series"`
	Bars      []models.OHLCVBar `json:"bars"`
	Freshness icache.Freshness  `json:"freshness"`
	FromCache bool              `json:"from_cache"`
}

// GetSeries returns one source's bars for a window. A cached view that does
// not reach back to the window start is treated as a miss.
func (m *MarketData) GetSeries(ctx context.Context, series models.SeriesKey, r models.DateRange, limit int) (*SeriesResult, error) {
	if bars, fresh, ok := m.cache.GetBars(ctx, series, r); ok {
		if limit > 0 && len(bars) > limit {
			bars = bars[len(bars)-limit:]
		}
		return &SeriesResult{Series: series, Bars: bars, Freshness: fresh, FromCache: true}, nil
	}

	bars, err := m.store.QueryBars(ctx, series, r, limit)
	if err != nil {
		return nil, err
	}
	res := &SeriesResult{Series: series, Bars: bars}
	if len(bars) > 0 {
		res.Freshness = icache.Freshness{AsOf: bars[len(bars)-1].TS, StoredAt: time.Now().UTC()}
	}
	return res, nil
}

// GetMacro returns one provider macro series for a window.
func (m *MarketData) GetMacro(ctx context.Context, provider models.Source, seriesID string, r models.DateRange) (*models.MacroSeries, error) {
	return m.store.QueryMacro(ctx, provider, seriesID, r)
}

// GetNews lists committed news items for a window, newest first.
func (m *MarketData) GetNews(ctx context.Context, r models.DateRange, limit int) ([]models.NewsItem, error) {
	return m.store.QueryNews(ctx, r, limit)
}

// MetricResult distinguishes a computed value from "not yet computable".
// Available false with a nil error means the series lacks history for the
// requested metric; a zero Value alone never carries that meaning.
type MetricResult struct {
	Metric    *models.DerivedMetric `json:"metric,omitempty"`
	Available bool                  `json:"available"`
	Freshness icache.Freshness      `json:"freshness"`
}

// GetMetric returns a derived metric, cache first. On a miss it derives the
// value synchronously from committed bars and backfills the cache, so the
// answer equals what the recompute path would have stored. A non-zero asOf
// asks for the value at a historical date; those bypass the cache entirely,
// since cached entries hold only the current point.
func (m *MarketData) GetMetric(ctx context.Context, series models.SeriesKey, spec models.MetricSpec, asOf time.Time) (*MetricResult, error) {
	if !spec.Kind.Valid() {
		return nil, fmt.Errorf("unknown metric kind %q", spec.Kind)
	}

	if !asOf.IsZero() {
		metric, err := m.engine.ComputeOne(ctx, series, spec, asOf)
		if errors.Is(err, models.ErrInsufficientHistory) {
			return &MetricResult{Available: false}, nil
		}
		if err != nil {
			return nil, err
		}
		return &MetricResult{
			Metric:    metric,
			Available: true,
			Freshness: icache.Freshness{AsOf: metric.AsOf, StoredAt: metric.ComputedAt},
		}, nil
	}

	version := 0
	if spec.Kind.CrossSectional() {
		version = m.engine.Universe().Version
	}
	if cached, fresh, ok := m.cache.GetMetric(ctx, series, spec, version); ok {
		return &MetricResult{Metric: cached, Available: true, Freshness: fresh}, nil
	}

	metric, err := m.engine.ComputeOne(ctx, series, spec, time.Now().UTC())
	if errors.Is(err, models.ErrInsufficientHistory) {
		return &MetricResult{Available: false}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := m.cache.PutMetric(ctx, *metric); err != nil {
		m.l.Error("cache metric", logger.Error(err))
	}
	return &MetricResult{
		Metric:    metric,
		Available: true,
		Freshness: icache.Freshness{AsOf: metric.AsOf, StoredAt: metric.ComputedAt},
	}, nil
}

// Screen evaluates a screener query over cached metrics.
func (m *MarketData) Screen(ctx context.Context, q analytics.ScreenerQuery) ([]analytics.ScreenerRow, error) {
	return m.engine.RunScreener(ctx, q)
}

// Movers returns the top and bottom daily movers in the universe.
func (m *MarketData) Movers(ctx context.Context, n int) (*analytics.Movers, error) {
	return m.engine.TopMovers(ctx, n)
}

// UniverseName names the peer universe the engine scores against.
func (m *MarketData) UniverseName() string {
	return m.engine.Universe().Name
}

// Regime returns the market regime snapshot for a series, defaulting to the
// configured benchmark.
func (m *MarketData) Regime(ctx context.Context, series models.SeriesKey) (*analytics.RegimeSnapshot, error) {
	return m.engine.Regime(ctx, series)
}

// StatusReport is the admin view: per-source health plus the recent run trail.
type StatusReport struct {
	Sources []status.SourceHealth `json:"sources"`
	Runs    []models.IngestionRun `json:"runs,omitempty"`
}

// Status snapshots source health, optionally with the last runs since a
// cutoff from the audit trail.
func (m *MarketData) Status(ctx context.Context, withRuns bool) (*StatusReport, error) {
	report := &StatusReport{Sources: m.registry.Snapshot()}
	if withRuns {
		runs, err := m.store.QueryRuns(ctx, time.Now().Add(-24*time.Hour), 200)
		if err != nil {
			return nil, err
		}
		report.Runs = runs
	}
	return report, nil
}

// Health reports storage reachability for the liveness endpoint.
func (m *MarketData) Health(ctx context.Context) error {
	return m.store.Health(ctx)
}
