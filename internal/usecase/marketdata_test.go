package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/analytics"
	icache "BloomPull/internal/cache"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/status"
	pkgcache "BloomPull/pkg/cache"
	"BloomPull/pkg/logger"
)

// fakeStore serves committed bars for reads and counts how often the read
// surface falls through to it; everything else is unused here.
type fakeStore struct {
	mu       sync.Mutex
	bars     map[string][]models.OHLCVBar
	barReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{bars: make(map[string][]models.OHLCVBar)}
}

func (s *fakeStore) QueryBars(_ context.Context, series models.SeriesKey, r models.DateRange, limit int) ([]models.OHLCVBar, error) {
	s.mu.Lock()
	s.barReads++
	s.mu.Unlock()
	var out []models.OHLCVBar
	for _, b := range s.bars[series.String()] {
		if r.IsZero() || r.Contains(b.TS) {
			out = append(out, b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.barReads
}

func (s *fakeStore) LatestBars(_ context.Context, series models.SeriesKey, n int) ([]models.OHLCVBar, error) {
	bars := s.bars[series.String()]
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func (s *fakeStore) BarsInRange(_ context.Context, series models.SeriesKey, r models.DateRange) ([]models.OHLCVBar, error) {
	var out []models.OHLCVBar
	for _, b := range s.bars[series.String()] {
		if r.IsZero() || r.Contains(b.TS) {
			out = append(out, b)
		}
	}
	return out, nil
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
func (s *fakeStore) LastBarTS(context.Context, models.SeriesKey) (time.Time, error) {
	return time.Time{}, nil
}
func (s *fakeStore) WriteMacro(context.Context, models.MacroSeries) error { return nil }
func (s *fakeStore) QueryMacro(context.Context, models.Source, string, models.DateRange) (*models.MacroSeries, error) {
	return nil, models.ErrNotFound
}
func (s *fakeStore) WriteNews(context.Context, []models.NewsItem) error { return nil }
func (s *fakeStore) QueryNews(context.Context, models.DateRange, int) ([]models.NewsItem, error) {
	return nil, nil
}
func (s *fakeStore) RecordRun(context.Context, models.IngestionRun) error { return nil }
func (s *fakeStore) QueryRuns(context.Context, time.Time, int) ([]models.IngestionRun, error) {
	return nil, nil
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

func genBars(series models.SeriesKey, start, factor float64, n int) []models.OHLCVBar {
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

func newTestMarketData(t *testing.T, store *fakeStore, members ...models.SeriesKey) (*MarketData, *icache.Domain) {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)

	cache := icache.NewDomain(pkgcache.NewMemoryCache(), noopMetrics{}, time.Hour, time.Hour, time.Hour)
	cfg := analytics.Config{VolWindow: 5, MomentumWindow: 3, VaRWindow: 5, VaRConfidence: 0.95}
	universe := models.Universe{Name: "test", Version: 1, Members: members}
	engine := analytics.NewEngine(store, cache, noopMetrics{}, l, cfg, universe)
	return NewMarketData(store, cache, engine, status.NewRegistry(), l), cache
}

// Bars served from cache and, after forced eviction, from the store must be
// identical: the cache is an accelerator, never a second source of truth.
func TestGetSeriesStoreFallbackMatchesCache(t *testing.T) {
	ctx := context.Background()
	series := testSeries("AAPL.US")
	bars := genBars(series, 100, 1.01, 10)

	store := newFakeStore()
	store.bars[series.String()] = bars

	md, cache := newTestMarketData(t, store)
	asOf := bars[len(bars)-1].TS
	require.NoError(t, cache.PutBars(ctx, series, bars, asOf))

	window := models.DateRange{From: bars[0].TS, To: asOf.Add(24 * time.Hour)}

	cached, err := md.GetSeries(ctx, series, window, 0)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	require.Len(t, cached.Bars, len(bars))
	assert.Zero(t, store.reads())

	require.NoError(t, cache.InvalidateBars(ctx, series))

	evicted, err := md.GetSeries(ctx, series, window, 0)
	require.NoError(t, err)
	assert.False(t, evicted.FromCache)
	assert.Equal(t, 1, store.reads())

	require.Len(t, evicted.Bars, len(cached.Bars))
	for i := range cached.Bars {
		assert.True(t, evicted.Bars[i].TS.Equal(cached.Bars[i].TS))
		assert.Equal(t, cached.Bars[i].Open, evicted.Bars[i].Open)
		assert.Equal(t, cached.Bars[i].High, evicted.Bars[i].High)
		assert.Equal(t, cached.Bars[i].Low, evicted.Bars[i].Low)
		assert.Equal(t, cached.Bars[i].Close, evicted.Bars[i].Close)
		assert.Equal(t, cached.Bars[i].AdjClose, evicted.Bars[i].AdjClose)
		assert.Equal(t, cached.Bars[i].Volume, evicted.Bars[i].Volume)
	}
	assert.True(t, evicted.Freshness.AsOf.Equal(cached.Freshness.AsOf))
}

// A limit applies to the tail of the window regardless of which layer serves
// the read.
func TestGetSeriesLimitTail(t *testing.T) {
	ctx := context.Background()
	series := testSeries("MSFT.US")
	bars := genBars(series, 50, 1.0, 8)

	store := newFakeStore()
	store.bars[series.String()] = bars

	md, cache := newTestMarketData(t, store)
	require.NoError(t, cache.PutBars(ctx, series, bars, bars[len(bars)-1].TS))

	window := models.DateRange{From: bars[0].TS, To: bars[len(bars)-1].TS.Add(24 * time.Hour)}

	res, err := md.GetSeries(ctx, series, window, 3)
	require.NoError(t, err)
	require.Len(t, res.Bars, 3)
	assert.True(t, res.Bars[2].TS.Equal(bars[len(bars)-1].TS))

	require.NoError(t, cache.InvalidateBars(ctx, series))
	res, err = md.GetSeries(ctx, series, window, 3)
	require.NoError(t, err)
	require.Len(t, res.Bars, 3)
	assert.True(t, res.Bars[2].TS.Equal(bars[len(bars)-1].TS))
}
