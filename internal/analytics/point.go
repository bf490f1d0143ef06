package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"BloomPull/internal/domain/models"
)

// TradingDaysPerYear annualizes daily volatility and returns.
const TradingDaysPerYear = 252

// LogReturns computes r_t = ln(C_t / C_{t-1}) over an ordered close series.
// The first bar has no defined return and is skipped, so the result has
// len(closes)-1 entries; nil when fewer than two closes exist.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// SimpleReturns computes r_t = C_t/C_{t-1} - 1, first bar skipped.
func SimpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, cur/prev-1)
	}
	return out
}

// RollingVolatility returns the annualized standard deviation of the last
// window log returns. Undefined until window observations exist.
func RollingVolatility(logReturns []float64, window int) (float64, error) {
	if window < 2 || len(logReturns) < window {
		return 0, models.ErrInsufficientHistory
	}
	tail := logReturns[len(logReturns)-window:]
	sigma := stat.StdDev(tail, nil)
	return sigma * math.Sqrt(TradingDaysPerYear), nil
}

// MaxDrawdown returns the deepest fraction below the running maximum over
// the whole close series. The running maximum resets only at series start.
// A monotonically rising series has drawdown zero.
func MaxDrawdown(closes []float64) float64 {
	var peak, worst float64
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			if dd := (peak - c) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// TrailingReturn is the cumulative log-basis return over the last window
// observations: ln(C_t / C_{t-window}).
func TrailingReturn(closes []float64, window int) (float64, error) {
	if window < 1 || len(closes) < window+1 {
		return 0, models.ErrInsufficientHistory
	}
	start := closes[len(closes)-window-1]
	end := closes[len(closes)-1]
	if start <= 0 || end <= 0 {
		return 0, models.ErrInsufficientHistory
	}
	return math.Log(end / start), nil
}

// HistoricalVaR is the loss quantile of the last window log returns at the
// given confidence, reported as a positive fraction. confidence 0.95 reads
// the 5th percentile return.
func HistoricalVaR(logReturns []float64, window int, confidence float64) (float64, error) {
	if window < 2 || len(logReturns) < window {
		return 0, models.ErrInsufficientHistory
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	tail := append([]float64(nil), logReturns[len(logReturns)-window:]...)
	sort.Float64s(tail)
	q := stat.Quantile(1-confidence, stat.Empirical, tail, nil)
	if q > 0 {
		return 0, nil
	}
	return -q, nil
}

// Correlation is the Pearson correlation of two equal-length aligned return
// series.
func Correlation(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) < 2 {
		return 0, models.ErrInsufficientHistory
	}
	return stat.Correlation(a, b, nil), nil
}

// ZScore positions x within its peer sample. A degenerate sample (fewer than
// two peers, or zero dispersion) scores zero.
func ZScore(x float64, peers []float64) float64 {
	if len(peers) < 2 {
		return 0
	}
	mean := stat.Mean(peers, nil)
	sigma := stat.StdDev(peers, nil)
	if sigma == 0 {
		return 0
	}
	return (x - mean) / sigma
}

// TrendScore is the sign-weighted mean of the last n log returns: +1 when
// every recent day rose, -1 when every day fell.
func TrendScore(logReturns []float64, n int) (float64, error) {
	if n < 1 || len(logReturns) < n {
		return 0, models.ErrInsufficientHistory
	}
	tail := logReturns[len(logReturns)-n:]
	var sum float64
	for _, r := range tail {
		switch {
		case r > 0:
			sum++
		case r < 0:
			sum--
		}
	}
	return sum / float64(n), nil
}
