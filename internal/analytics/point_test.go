package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/domain/models"
)

func TestLogReturnsSkipsFirstBar(t *testing.T) {
	closes := []float64{100, 110, 99}
	rets := LogReturns(closes)

	require.Len(t, rets, 2)
	assert.InDelta(t, math.Log(1.1), rets[0], 1e-12)
	assert.InDelta(t, math.Log(0.9), rets[1], 1e-12)

	assert.Nil(t, LogReturns([]float64{100}))
	assert.Nil(t, LogReturns(nil))
}

func TestSimpleReturns(t *testing.T) {
	rets := SimpleReturns([]float64{100, 110, 99})
	require.Len(t, rets, 2)
	assert.InDelta(t, 0.10, rets[0], 1e-12)
	assert.InDelta(t, -0.10, rets[1], 1e-12)
}

func TestRollingVolatilityNeedsFullWindow(t *testing.T) {
	rets := []float64{0.01, -0.02, 0.03}

	_, err := RollingVolatility(rets, 4)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)

	vol, err := RollingVolatility(rets, 3)
	require.NoError(t, err)
	assert.Greater(t, vol, 0.0)
}

func TestRollingVolatilityConstantReturnsIsZero(t *testing.T) {
	rets := []float64{0.01, 0.01, 0.01, 0.01, 0.01}
	vol, err := RollingVolatility(rets, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0, vol, 1e-12)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"monotonic rise", []float64{1, 2, 3, 4}, 0},
		{"half off the peak", []float64{100, 200, 100, 150}, 0.5},
		{"peak resets only at start", []float64{100, 50, 80, 40}, 0.6},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.closes), 1e-12)
		})
	}
}

func TestTrailingReturn(t *testing.T) {
	closes := []float64{100, 105, 110, 121}

	got, err := TrailingReturn(closes, 2)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(121.0/105.0), got, 1e-12)

	_, err = TrailingReturn(closes, 4)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
}

func TestHistoricalVaRIsPositiveLoss(t *testing.T) {
	// twenty returns, the worst being -5%
	rets := make([]float64, 20)
	for i := range rets {
		rets[i] = 0.001
	}
	rets[7] = -0.05

	v, err := HistoricalVaR(rets, 20, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, v, 1e-12)
}

func TestHistoricalVaRAllGainsIsZero(t *testing.T) {
	rets := []float64{0.01, 0.02, 0.01, 0.03}
	v, err := HistoricalVaR(rets, 4, 0.95)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestCorrelation(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, 0.01}
	inverse := []float64{-0.01, 0.02, -0.03, -0.01}

	r, err := Correlation(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1, r, 1e-12)

	r, err = Correlation(a, inverse)
	require.NoError(t, err)
	assert.InDelta(t, -1, r, 1e-12)

	_, err = Correlation(a, a[:2])
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
}

func TestZScore(t *testing.T) {
	assert.Zero(t, ZScore(1, []float64{1}))
	assert.Zero(t, ZScore(5, []float64{5, 5, 5}))

	// sample mean 0, stddev 1
	score := ZScore(1, []float64{-1, 0, 1})
	assert.InDelta(t, 1, score, 1e-12)
}

func TestTrendScore(t *testing.T) {
	allUp := []float64{0.01, 0.02, 0.005}
	got, err := TrendScore(allUp, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1, got, 1e-12)

	mixed := []float64{0.01, -0.02, 0.005, -0.01}
	got, err = TrendScore(mixed, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0, got, 1e-12)
}

// A year of steady gains: volatility becomes available exactly at the
// window, drawdown stays zero, and the annualized trailing return lands
// near the per-day drift times 252.
func TestSteadyYearScenario(t *testing.T) {
	const days = 252
	const drift = 0.00275 // ~100% annualized on log basis

	closes := make([]float64, days)
	closes[0] = 100
	for i := 1; i < days; i++ {
		closes[i] = closes[i-1] * math.Exp(drift)
	}
	rets := LogReturns(closes)
	require.Len(t, rets, days-1)

	_, err := RollingVolatility(rets[:19], 20)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
	vol, err := RollingVolatility(rets[:20], 20)
	require.NoError(t, err)
	assert.InDelta(t, 0, vol, 1e-9)

	assert.Zero(t, MaxDrawdown(closes))

	annual, err := TrailingReturn(closes, days-1)
	require.NoError(t, err)
	assert.InDelta(t, drift*(days-1), annual, 1e-9)
}
