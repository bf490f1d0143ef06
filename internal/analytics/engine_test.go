package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	icache "BloomPull/internal/cache"
	"BloomPull/internal/domain/models"
	pkgcache "BloomPull/pkg/cache"
	"BloomPull/pkg/logger"
)

type stubReader struct {
	bars  map[string][]models.OHLCVBar
	reads map[string]int
}

func newStubReader() *stubReader {
	return &stubReader{
		bars:  make(map[string][]models.OHLCVBar),
		reads: make(map[string]int),
	}
}

func (s *stubReader) add(series models.SeriesKey, bars []models.OHLCVBar) {
	s.bars[series.String()] = bars
}

func (s *stubReader) LatestBars(_ context.Context, series models.SeriesKey, n int) ([]models.OHLCVBar, error) {
	s.reads[series.String()]++
	bars := s.bars[series.String()]
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func (s *stubReader) BarsInRange(_ context.Context, series models.SeriesKey, r models.DateRange) ([]models.OHLCVBar, error) {
	s.reads[series.String()]++
	var out []models.OHLCVBar
	for _, b := range s.bars[series.String()] {
		if r.IsZero() || r.Contains(b.TS) {
			out = append(out, b)
		}
	}
	return out, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordRowsIngested(string, int)      {}
func (noopMetrics) RecordJobOutcome(string, string)     {}
func (noopMetrics) RecordJobDuration(string, float64)   {}
func (noopMetrics) RecordCacheHit(string)               {}
func (noopMetrics) RecordCacheMiss(string)              {}
func (noopMetrics) RecordLastSuccess(string, time.Time) {}
func (noopMetrics) RecordRecompute(int)                 {}

func testSeries(symbol string) models.SeriesKey {
	return models.SeriesKey{
		Instrument: models.NewInstrumentKey(symbol, models.AssetEquity, "us"),
		Source:     models.SourceStooq,
	}
}

// genBars produces daily bars with close multiplied by factor each day.
func genBars(series models.SeriesKey, start float64, factor float64, n int) []models.OHLCVBar {
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.OHLCVBar, 0, n)
	c := start
	for i := 0; i < n; i++ {
		out = append(out, models.OHLCVBar{
			Instrument: series.Instrument,
			TS:         day.AddDate(0, 0, i),
			Open:       c,
			High:       c * 1.01,
			Low:        c * 0.99,
			Close:      c,
			AdjClose:   c,
			Volume:     1000,
			Source:     series.Source,
		})
		c *= factor
	}
	return out
}

func newTestEngine(reader *stubReader, members ...models.SeriesKey) (*Engine, *icache.Domain) {
	l, _ := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	domain := icache.NewDomain(pkgcache.NewMemoryCache(), noopMetrics{}, time.Hour, time.Hour, time.Hour)
	cfg := Config{VolWindow: 5, MomentumWindow: 3, VaRWindow: 5, VaRConfidence: 0.95}
	universe := models.Universe{Name: "test", Version: 1, Members: members}
	return NewEngine(reader, domain, noopMetrics{}, l, cfg, universe), domain
}

func TestRecomputeCachesDefaultMetrics(t *testing.T) {
	ctx := context.Background()
	a := testSeries("AAA")
	reader := newStubReader()
	reader.add(a, genBars(a, 100, 1.01, 30))
	engine, cache := newTestEngine(reader, a)

	updated, err := engine.Recompute(ctx, []models.SeriesKey{a})
	require.NoError(t, err)

	byKind := make(map[string]models.DerivedMetric)
	for _, m := range updated {
		byKind[models.MetricSpec{Kind: m.Kind, Window: m.Window}.String()] = m
	}

	require.Contains(t, byKind, "return/1")
	assert.InDelta(t, math.Log(1.01), byKind["return/1"].Value, 1e-9)

	require.Contains(t, byKind, "return/3")
	assert.InDelta(t, 3*math.Log(1.01), byKind["return/3"].Value, 1e-9)

	require.Contains(t, byKind, "volatility/5")
	assert.InDelta(t, 0, byKind["volatility/5"].Value, 1e-9)

	require.Contains(t, byKind, "drawdown/0")
	assert.Zero(t, byKind["drawdown/0"].Value)

	require.Contains(t, byKind, "var/5")

	// no benchmark configured, no peers cached yet
	assert.NotContains(t, byKind, "corr/5")
	assert.NotContains(t, byKind, "momentum_score/3")

	// every updated value is readable back from the cache
	for _, m := range updated {
		got, _, ok := cache.GetMetric(ctx, a, models.MetricSpec{Kind: m.Kind, Window: m.Window}, m.UniverseVersion)
		require.True(t, ok, m.Kind)
		assert.Equal(t, m.Value, got.Value)
	}
}

func TestRecomputeIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a := testSeries("AAA")
	reader := newStubReader()
	reader.add(a, genBars(a, 100, 1.003, 40))
	engine, _ := newTestEngine(reader, a)

	first, err := engine.Recompute(ctx, []models.SeriesKey{a})
	require.NoError(t, err)
	second, err := engine.Recompute(ctx, []models.SeriesKey{a})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind)
		assert.Equal(t, first[i].Value, second[i].Value)
	}
}

// Recomputing one series must never read or rewrite another's metrics.
func TestRecomputeAffectedOnly(t *testing.T) {
	ctx := context.Background()
	a, b := testSeries("AAA"), testSeries("BBB")
	reader := newStubReader()
	reader.add(a, genBars(a, 100, 1.01, 30))
	reader.add(b, genBars(b, 50, 0.99, 30))
	engine, cache := newTestEngine(reader, a, b)

	_, err := engine.Recompute(ctx, []models.SeriesKey{a})
	require.NoError(t, err)

	assert.Zero(t, reader.reads[b.String()])
	_, _, ok := cache.GetMetric(ctx, b, models.MetricSpec{Kind: models.MetricReturn, Window: 1}, 0)
	assert.False(t, ok)
}

func TestCrossSectionalScoreUsesCachedPeers(t *testing.T) {
	ctx := context.Background()
	a, b, c := testSeries("AAA"), testSeries("BBB"), testSeries("CCC")
	reader := newStubReader()
	reader.add(a, genBars(a, 100, 1.02, 30)) // strongest momentum
	reader.add(b, genBars(b, 100, 1.00, 30))
	reader.add(c, genBars(c, 100, 0.99, 30))
	engine, _ := newTestEngine(reader, a, b, c)

	// first pass seeds every member's trailing metrics
	_, err := engine.Recompute(ctx, []models.SeriesKey{a, b, c})
	require.NoError(t, err)

	// now peers are cached, the score is computable
	updated, err := engine.Recompute(ctx, []models.SeriesKey{a})
	require.NoError(t, err)

	var momentum *models.DerivedMetric
	for i := range updated {
		if updated[i].Kind == models.MetricMomentum {
			momentum = &updated[i]
		}
	}
	require.NotNil(t, momentum)
	assert.Equal(t, 1, momentum.UniverseVersion)
	assert.Greater(t, momentum.Value, 0.0) // best performer scores above the mean
}

func TestBenchmarkCorrelationSelf(t *testing.T) {
	ctx := context.Background()
	a := testSeries("AAA")
	reader := newStubReader()
	reader.add(a, genBars(a, 100, 1.01, 30))

	l, _ := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	domain := icache.NewDomain(pkgcache.NewMemoryCache(), noopMetrics{}, time.Hour, time.Hour, time.Hour)
	cfg := Config{VolWindow: 5, MomentumWindow: 3, VaRWindow: 5, Benchmark: a}
	engine := NewEngine(reader, domain, noopMetrics{}, l, cfg, models.Universe{Version: 1})

	m, err := engine.ComputeOne(ctx, a, models.MetricSpec{Kind: models.MetricCorr, Window: 5}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Value)
}
