package cache

import (
	"context"
	"errors"
	"time"

	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	pkgcache "BloomPull/pkg/cache"
)

// maxBarsPerSeries bounds the recency view each series keeps in cache.
// Enough for a year of daily bars plus the longest analytics lookback.
const maxBarsPerSeries = 400

// Freshness tells a consumer how current a cached value is, so it can decide
// whether to trigger a synchronous refresh.
type Freshness struct {
	AsOf     time.Time `json:"as_of"`     // timestamp of the underlying data
	StoredAt time.Time `json:"stored_at"` // when the cache entry was written
}

type barsEnvelope struct {
	Freshness
	Bars []models.OHLCVBar `json:"bars"`
}

type metricEnvelope struct {
	Freshness
	Metric models.DerivedMetric `json:"metric"`
}

type instrumentEnvelope struct {
	Freshness
	Instrument models.Instrument `json:"instrument"`
}

// Domain is the canonical-entity cache: a bounded-recency bars view per
// series, derived metric values, and instrument metadata. Every entry
// carries freshness; cache contents are advisory and revalidated against
// the store on miss.
type Domain struct {
	svc        pkgcache.Service
	metrics    repository.Metrics
	barsTTL    time.Duration
	metricsTTL time.Duration
	metaTTL    time.Duration
}

func NewDomain(svc pkgcache.Service, metrics repository.Metrics, barsTTL, metricsTTL, metaTTL time.Duration) *Domain {
	if barsTTL <= 0 {
		barsTTL = 15 * time.Minute
	}
	if metricsTTL <= 0 {
		metricsTTL = 15 * time.Minute
	}
	if metaTTL <= 0 {
		metaTTL = time.Hour
	}
	return &Domain{svc: svc, metrics: metrics, barsTTL: barsTTL, metricsTTL: metricsTTL, metaTTL: metaTTL}
}

func barsKey(series models.SeriesKey) string        { return "bars:" + series.String() }
func instrumentKey(key models.InstrumentKey) string { return "instrument:" + key.String() }
func metricPattern(series models.SeriesKey) string  { return "metric:" + series.String() + ":*" }

// PutBars merges freshly committed bars into the series' cached view,
// upserting by timestamp and trimming to the recency bound. Callers hold the
// per-instrument write lock, so merges never interleave.
func (d *Domain) PutBars(ctx context.Context, series models.SeriesKey, bars []models.OHLCVBar, asOf time.Time) error {
	if len(bars) == 0 {
		return nil
	}

	var env barsEnvelope
	if err := d.svc.Get(ctx, barsKey(series), &env); err != nil && !errors.Is(err, pkgcache.ErrCacheMiss) {
		return err
	}

	merged := append(env.Bars, bars...)
	models.SortBarsByTS(merged)
	merged = models.DedupBarsByTS(merged)
	if len(merged) > maxBarsPerSeries {
		merged = merged[len(merged)-maxBarsPerSeries:]
	}

	env.Bars = merged
	env.AsOf = asOf
	env.StoredAt = time.Now().UTC()
	return d.svc.Set(ctx, barsKey(series), &env, d.barsTTL)
}

// GetBars returns the cached bars overlapping r, with freshness. ok is false
// on a miss or when the cached view does not reach back to r.From, in which
// case the caller falls through to the store.
func (d *Domain) GetBars(ctx context.Context, series models.SeriesKey, r models.DateRange) ([]models.OHLCVBar, Freshness, bool) {
	var env barsEnvelope
	if err := d.svc.Get(ctx, barsKey(series), &env); err != nil {
		d.metrics.RecordCacheMiss("bars")
		return nil, Freshness{}, false
	}
	if len(env.Bars) == 0 || (!r.IsZero() && env.Bars[0].TS.After(r.From)) {
		// cached view starts after the requested window; store has more
		d.metrics.RecordCacheMiss("bars")
		return nil, Freshness{}, false
	}

	out := make([]models.OHLCVBar, 0, len(env.Bars))
	for _, b := range env.Bars {
		if r.IsZero() || r.Contains(b.TS) {
			out = append(out, b)
		}
	}
	d.metrics.RecordCacheHit("bars")
	return out, env.Freshness, true
}

// InvalidateBars drops the cached view for a series.
func (d *Domain) InvalidateBars(ctx context.Context, series models.SeriesKey) error {
	return d.svc.Delete(ctx, barsKey(series))
}

// PutMetric stores one derived metric value. Metrics are cache-only and
// reproducible, so TTL loss is always recoverable by recomputation.
func (d *Domain) PutMetric(ctx context.Context, m models.DerivedMetric) error {
	key := models.MetricCacheKey(m.Series, models.MetricSpec{Kind: m.Kind, Window: m.Window}, m.UniverseVersion)
	env := metricEnvelope{
		Freshness: Freshness{AsOf: m.AsOf, StoredAt: time.Now().UTC()},
		Metric:    m,
	}
	return d.svc.Set(ctx, key, &env, d.metricsTTL)
}

// GetMetric fetches one derived metric value with its freshness.
func (d *Domain) GetMetric(ctx context.Context, series models.SeriesKey, spec models.MetricSpec, universeVersion int) (*models.DerivedMetric, Freshness, bool) {
	key := models.MetricCacheKey(series, spec, universeVersion)
	var env metricEnvelope
	if err := d.svc.Get(ctx, key, &env); err != nil {
		d.metrics.RecordCacheMiss("metric")
		return nil, Freshness{}, false
	}
	d.metrics.RecordCacheHit("metric")
	return &env.Metric, env.Freshness, true
}

// MGetMetrics bulk-fetches metric values for screener evaluation. Missing
// keys are simply absent from the result.
func (d *Domain) MGetMetrics(ctx context.Context, keys []string) (map[string]models.DerivedMetric, error) {
	envs, err := pkgcache.MGetTyped[metricEnvelope](ctx, d.svc, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.DerivedMetric, len(envs))
	for k, env := range envs {
		out[k] = env.Metric
	}
	return out, nil
}

// InvalidateMetrics proactively evicts every metric derived from a series.
// Called by the analytics engine the moment underlying bars change.
func (d *Domain) InvalidateMetrics(ctx context.Context, series models.SeriesKey) error {
	return d.svc.DeleteByPattern(ctx, metricPattern(series))
}

// PutInstrument caches instrument metadata.
func (d *Domain) PutInstrument(ctx context.Context, ins models.Instrument, asOf time.Time) error {
	env := instrumentEnvelope{
		Freshness:  Freshness{AsOf: asOf, StoredAt: time.Now().UTC()},
		Instrument: ins,
	}
	return d.svc.Set(ctx, instrumentKey(ins.Key), &env, d.metaTTL)
}

// GetInstrument fetches cached instrument metadata.
func (d *Domain) GetInstrument(ctx context.Context, key models.InstrumentKey) (*models.Instrument, Freshness, bool) {
	var env instrumentEnvelope
	if err := d.svc.Get(ctx, instrumentKey(key), &env); err != nil {
		d.metrics.RecordCacheMiss("instrument")
		return nil, Freshness{}, false
	}
	d.metrics.RecordCacheHit("instrument")
	return &env.Instrument, env.Freshness, true
}
