package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	icache "BloomPull/internal/cache"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	"BloomPull/pkg/logger"
)

// Config carries the metric windows the engine maintains per series.
type Config struct {
	VolWindow      int
	MomentumWindow int
	VaRWindow      int
	VaRConfidence  float64
	Benchmark      models.SeriesKey
}

func (c Config) maxLookback() int {
	n := c.VolWindow
	if c.MomentumWindow > n {
		n = c.MomentumWindow
	}
	if c.VaRWindow > n {
		n = c.VaRWindow
	}
	// one extra close per return, plus headroom for drawdown context
	return n*2 + 2
}

// DefaultSpecs lists the metrics maintained for every tracked series.
func (c Config) DefaultSpecs() []models.MetricSpec {
	return []models.MetricSpec{
		{Kind: models.MetricReturn, Window: 1},
		{Kind: models.MetricReturn, Window: c.MomentumWindow},
		{Kind: models.MetricVolatility, Window: c.VolWindow},
		{Kind: models.MetricDrawdown, Window: 0},
		{Kind: models.MetricVaR, Window: c.VaRWindow},
		{Kind: models.MetricCorr, Window: c.VolWindow},
		{Kind: models.MetricMomentum, Window: c.MomentumWindow},
		{Kind: models.MetricLowVol, Window: c.VolWindow},
	}
}

// Engine incrementally maintains derived metrics. It reads committed
// canonical bars only, keeps an explicit dependency map from series key to
// the metric specs derived from it, and recomputes exactly the series named
// in each trigger; every computation is a pure function of the underlying
// bars, so redundant recomputation is safe.
type Engine struct {
	reader   repository.SeriesReader
	cache    *icache.Domain
	rec      repository.Metrics
	l        *logger.Logger
	cfg      Config
	universe models.Universe

	mu   sync.RWMutex
	deps map[models.SeriesKey][]models.MetricSpec
}

func NewEngine(reader repository.SeriesReader, cache *icache.Domain, rec repository.Metrics, l *logger.Logger, cfg Config, universe models.Universe) *Engine {
	if cfg.VolWindow < 2 {
		cfg.VolWindow = 20
	}
	if cfg.MomentumWindow < 1 {
		cfg.MomentumWindow = 63
	}
	if cfg.VaRWindow < 2 {
		cfg.VaRWindow = 252
	}
	e := &Engine{
		reader:   reader,
		cache:    cache,
		rec:      rec,
		l:        l,
		cfg:      cfg,
		universe: universe,
		deps:     make(map[models.SeriesKey][]models.MetricSpec),
	}
	for _, member := range universe.Members {
		e.Track(member)
	}
	return e
}

// Track registers the default metric specs as dependents of a series.
func (e *Engine) Track(series models.SeriesKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.deps[series]; !ok {
		e.deps[series] = e.cfg.DefaultSpecs()
	}
}

// Universe returns the versioned peer membership the engine scores against.
func (e *Engine) Universe() models.Universe { return e.universe }

// Recompute refreshes every metric whose underlying series is named in
// affected. Series not named are never touched: cross-sectional scores for A
// read peers' already-cached trailing values rather than recomputing them.
func (e *Engine) Recompute(ctx context.Context, affected []models.SeriesKey) ([]models.DerivedMetric, error) {
	var updated []models.DerivedMetric

	for _, series := range affected {
		e.Track(series)
		e.mu.RLock()
		specs := e.deps[series]
		e.mu.RUnlock()

		// underlying bars changed, so every derived entry is stale now
		if err := e.cache.InvalidateMetrics(ctx, series); err != nil {
			return updated, fmt.Errorf("invalidate metrics %s: %w", series, err)
		}

		bars, err := e.reader.LatestBars(ctx, series, e.cfg.maxLookback())
		if err != nil {
			return updated, fmt.Errorf("read bars %s: %w", series, err)
		}
		if len(bars) == 0 {
			continue
		}
		asOf := bars[len(bars)-1].TS

		for _, spec := range specs {
			m, err := e.compute(ctx, series, bars, spec, asOf)
			if errors.Is(err, models.ErrInsufficientHistory) {
				continue // not yet computable is a normal outcome
			}
			if err != nil {
				return updated, err
			}
			if err := e.cache.PutMetric(ctx, *m); err != nil {
				return updated, fmt.Errorf("cache metric %s: %w", spec, err)
			}
			updated = append(updated, *m)
		}
	}

	if len(updated) > 0 {
		e.rec.RecordRecompute(len(updated))
		e.l.Debug("recompute finished",
			logger.Int("series", len(affected)),
			logger.Int("metrics", len(updated)))
	}
	return updated, nil
}

// ComputeOne derives a single metric value as of a given date, reading
// committed bars only. Used by the read surface on cache miss; the result is
// identical to what Recompute would have cached.
func (e *Engine) ComputeOne(ctx context.Context, series models.SeriesKey, spec models.MetricSpec, asOf time.Time) (*models.DerivedMetric, error) {
	r := models.DateRange{From: asOf.AddDate(-3, 0, 0), To: asOf.Add(24 * time.Hour)}
	bars, err := e.reader.BarsInRange(ctx, series, r)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", series, err)
	}
	if len(bars) == 0 {
		return nil, models.ErrInsufficientHistory
	}
	return e.compute(ctx, series, bars, spec, bars[len(bars)-1].TS)
}

func (e *Engine) compute(ctx context.Context, series models.SeriesKey, bars []models.OHLCVBar, spec models.MetricSpec, asOf time.Time) (*models.DerivedMetric, error) {
	closes := models.Closes(bars)
	logReturns := LogReturns(closes)

	m := &models.DerivedMetric{
		Series:     series,
		Kind:       spec.Kind,
		Window:     spec.Window,
		AsOf:       asOf,
		ComputedAt: time.Now().UTC(),
	}

	var value float64
	var err error
	switch spec.Kind {
	case models.MetricReturn:
		if spec.Window <= 1 {
			if len(logReturns) == 0 {
				return nil, models.ErrInsufficientHistory
			}
			value = logReturns[len(logReturns)-1]
		} else {
			value, err = TrailingReturn(closes, spec.Window)
		}
	case models.MetricVolatility:
		value, err = RollingVolatility(logReturns, spec.Window)
	case models.MetricDrawdown:
		value = MaxDrawdown(closes)
	case models.MetricVaR:
		value, err = HistoricalVaR(logReturns, spec.Window, e.cfg.VaRConfidence)
	case models.MetricCorr:
		value, err = e.benchmarkCorrelation(ctx, series, bars, spec.Window)
	case models.MetricMomentum:
		m.UniverseVersion = e.universe.Version
		value, err = e.crossSectionalScore(ctx, series, models.MetricReturn, e.cfg.MomentumWindow, closes, false)
	case models.MetricLowVol:
		m.UniverseVersion = e.universe.Version
		value, err = e.crossSectionalScore(ctx, series, models.MetricVolatility, e.cfg.VolWindow, closes, true)
	default:
		return nil, fmt.Errorf("unknown metric kind %q", spec.Kind)
	}
	if err != nil {
		return nil, err
	}
	m.Value = value
	return m, nil
}

// crossSectionalScore z-scores this series' own freshly computed trailing
// value against peers' cached values. invert flips the sign for low-vol
// ranking, where smaller is better.
func (e *Engine) crossSectionalScore(ctx context.Context, series models.SeriesKey, base models.MetricKind, window int, closes []float64, invert bool) (float64, error) {
	var own float64
	var err error
	switch base {
	case models.MetricReturn:
		own, err = TrailingReturn(closes, window)
	case models.MetricVolatility:
		own, err = RollingVolatility(LogReturns(closes), window)
	}
	if err != nil {
		return 0, err
	}

	spec := models.MetricSpec{Kind: base, Window: window}
	keys := make([]string, 0, len(e.universe.Members))
	for _, member := range e.universe.Members {
		if member == series {
			continue
		}
		keys = append(keys, models.MetricCacheKey(member, spec, 0))
	}
	cached, err := e.cache.MGetMetrics(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("peer metrics: %w", err)
	}

	sample := make([]float64, 0, len(cached)+1)
	sample = append(sample, own)
	for _, peer := range cached {
		sample = append(sample, peer.Value)
	}
	if len(sample) < 3 {
		return 0, models.ErrInsufficientHistory
	}

	score := ZScore(own, sample)
	if invert {
		score = -score
	}
	return score, nil
}

// benchmarkCorrelation is the Pearson correlation of this series' daily log
// returns with the configured benchmark over the window, aligned by date.
func (e *Engine) benchmarkCorrelation(ctx context.Context, series models.SeriesKey, bars []models.OHLCVBar, window int) (float64, error) {
	bench := e.cfg.Benchmark
	if bench.Instrument.IsZero() {
		return 0, models.ErrInsufficientHistory
	}
	if series == bench {
		return 1, nil
	}

	benchBars, err := e.reader.LatestBars(ctx, bench, e.cfg.maxLookback())
	if err != nil {
		return 0, fmt.Errorf("benchmark bars: %w", err)
	}

	own := returnsByDay(bars)
	other := returnsByDay(benchBars)

	var days []time.Time
	for day := range own {
		if _, ok := other[day]; ok {
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if len(days) > window {
		days = days[len(days)-window:]
	}
	if len(days) < 2 {
		return 0, models.ErrInsufficientHistory
	}

	a := make([]float64, len(days))
	b := make([]float64, len(days))
	for i, day := range days {
		a[i] = own[day]
		b[i] = other[day]
	}
	return Correlation(a, b)
}

func returnsByDay(bars []models.OHLCVBar) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out[bars[i].TS] = math.Log(cur / prev)
	}
	return out
}
