package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/domain/models"
	pkgcache "BloomPull/pkg/cache"
)

type noopMetrics struct{}

func (noopMetrics) RecordRowsIngested(string, int)      {}
func (noopMetrics) RecordJobOutcome(string, string)     {}
func (noopMetrics) RecordJobDuration(string, float64)   {}
func (noopMetrics) RecordCacheHit(string)               {}
func (noopMetrics) RecordCacheMiss(string)              {}
func (noopMetrics) RecordLastSuccess(string, time.Time) {}
func (noopMetrics) RecordRecompute(int)                 {}

func newTestDomain() *Domain {
	return NewDomain(pkgcache.NewMemoryCache(), noopMetrics{}, time.Minute, time.Minute, time.Minute)
}

func series(symbol string) models.SeriesKey {
	return models.SeriesKey{
		Instrument: models.NewInstrumentKey(symbol, models.AssetEquity, "us"),
		Source:     models.SourceStooq,
	}
}

func bar(s models.SeriesKey, day int, close float64) models.OHLCVBar {
	return models.OHLCVBar{
		Instrument: s.Instrument,
		TS:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Open:       close,
		High:       close,
		Low:        close,
		Close:      close,
		AdjClose:   close,
		Source:     s.Source,
	}
}

func TestPutBarsMergesUpsertsAndSorts(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	s := series("AAPL.US")
	asOf := time.Now().UTC()

	require.NoError(t, d.PutBars(ctx, s, []models.OHLCVBar{bar(s, 2, 101), bar(s, 0, 99)}, asOf))
	// overlapping write: day 2 revised, day 3 appended
	require.NoError(t, d.PutBars(ctx, s, []models.OHLCVBar{bar(s, 3, 103), bar(s, 2, 102)}, asOf))

	got, fresh, ok := d.GetBars(ctx, s, models.DateRange{})
	require.True(t, ok)
	require.Len(t, got, 3)
	assert.Equal(t, 99.0, got[0].Close)
	assert.Equal(t, 102.0, got[1].Close) // later write wins per timestamp
	assert.Equal(t, 103.0, got[2].Close)
	assert.True(t, fresh.AsOf.Equal(asOf))
	assert.False(t, fresh.StoredAt.IsZero())
}

func TestPutBarsTrimsToRecencyBound(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	s := series("AAPL.US")

	bars := make([]models.OHLCVBar, 0, maxBarsPerSeries+50)
	for i := 0; i < maxBarsPerSeries+50; i++ {
		bars = append(bars, bar(s, i, float64(i)))
	}
	require.NoError(t, d.PutBars(ctx, s, bars, time.Now()))

	got, _, ok := d.GetBars(ctx, s, models.DateRange{})
	require.True(t, ok)
	assert.Len(t, got, maxBarsPerSeries)
	// the oldest bars fell off, the newest stayed
	assert.True(t, got[0].TS.Equal(bars[50].TS))
	assert.True(t, got[len(got)-1].TS.Equal(bars[len(bars)-1].TS))
}

func TestGetBarsMissesWhenWindowPredatesView(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	s := series("AAPL.US")

	require.NoError(t, d.PutBars(ctx, s, []models.OHLCVBar{bar(s, 10, 100), bar(s, 11, 101)}, time.Now()))

	// cached view starts at day 10; asking from day 0 must fall through
	r := models.DateRange{
		From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	_, _, ok := d.GetBars(ctx, s, r)
	assert.False(t, ok)

	// a window inside the view is served, filtered to the range
	r.From = time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	r.To = time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)
	got, _, ok := d.GetBars(ctx, s, r)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Close)
}

func TestGetBarsMissOnUnknownSeries(t *testing.T) {
	d := newTestDomain()
	_, _, ok := d.GetBars(context.Background(), series("NOPE.US"), models.DateRange{})
	assert.False(t, ok)
}

func TestInvalidateBars(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	s := series("AAPL.US")

	require.NoError(t, d.PutBars(ctx, s, []models.OHLCVBar{bar(s, 0, 100)}, time.Now()))
	require.NoError(t, d.InvalidateBars(ctx, s))

	_, _, ok := d.GetBars(ctx, s, models.DateRange{})
	assert.False(t, ok)
}

func TestMetricRoundTripAndInvalidation(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	s := series("AAPL.US")

	vol := models.DerivedMetric{
		Series: s,
		Kind:   models.MetricVolatility,
		Window: 20,
		AsOf:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Value:  0.18,
	}
	momentum := models.DerivedMetric{
		Series:          s,
		Kind:            models.MetricMomentum,
		Window:          63,
		AsOf:            vol.AsOf,
		Value:           1.2,
		UniverseVersion: 2,
	}
	require.NoError(t, d.PutMetric(ctx, vol))
	require.NoError(t, d.PutMetric(ctx, momentum))

	got, fresh, ok := d.GetMetric(ctx, s, models.MetricSpec{Kind: models.MetricVolatility, Window: 20}, 0)
	require.True(t, ok)
	assert.Equal(t, 0.18, got.Value)
	assert.True(t, fresh.AsOf.Equal(vol.AsOf))

	// cross-sectional reads are versioned: a different universe is a miss
	_, _, ok = d.GetMetric(ctx, s, models.MetricSpec{Kind: models.MetricMomentum, Window: 63}, 1)
	assert.False(t, ok)
	_, _, ok = d.GetMetric(ctx, s, models.MetricSpec{Kind: models.MetricMomentum, Window: 63}, 2)
	assert.True(t, ok)

	// invalidation sweeps every metric of the series, all versions included
	require.NoError(t, d.InvalidateMetrics(ctx, s))
	_, _, ok = d.GetMetric(ctx, s, models.MetricSpec{Kind: models.MetricVolatility, Window: 20}, 0)
	assert.False(t, ok)
	_, _, ok = d.GetMetric(ctx, s, models.MetricSpec{Kind: models.MetricMomentum, Window: 63}, 2)
	assert.False(t, ok)
}

func TestInvalidateMetricsLeavesOtherSeriesAlone(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	a, b := series("AAA.US"), series("BBB.US")

	for _, s := range []models.SeriesKey{a, b} {
		require.NoError(t, d.PutMetric(ctx, models.DerivedMetric{
			Series: s, Kind: models.MetricReturn, Window: 1, Value: 0.01,
		}))
	}
	require.NoError(t, d.InvalidateMetrics(ctx, a))

	_, _, ok := d.GetMetric(ctx, b, models.MetricSpec{Kind: models.MetricReturn, Window: 1}, 0)
	assert.True(t, ok)
}

func TestMGetMetricsSkipsMissingKeys(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	a, b := series("AAA.US"), series("BBB.US")
	spec := models.MetricSpec{Kind: models.MetricReturn, Window: 1}

	require.NoError(t, d.PutMetric(ctx, models.DerivedMetric{Series: a, Kind: spec.Kind, Window: spec.Window, Value: 0.02}))

	keys := []string{
		models.MetricCacheKey(a, spec, 0),
		models.MetricCacheKey(b, spec, 0),
	}
	got, err := d.MGetMetrics(ctx, keys)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.02, got[keys[0]].Value)
}

func TestInstrumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDomain()
	key := models.NewInstrumentKey("AAPL.US", models.AssetEquity, "us")
	asOf := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, d.PutInstrument(ctx, models.Instrument{Key: key, Currency: "USD", Active: true}, asOf))

	got, fresh, ok := d.GetInstrument(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, fresh.AsOf.Equal(asOf))

	_, _, ok = d.GetInstrument(ctx, models.NewInstrumentKey("MSFT.US", models.AssetEquity, "us"))
	assert.False(t, ok)
}
