package analytics

import (
	"context"
	"errors"
	"time"

	"BloomPull/internal/domain/models"
)

// RegimeSnapshot summarizes where a benchmark series sits right now: recent
// volatility, short-term trend, and how far below the year's peak it trades.
type RegimeSnapshot struct {
	Series      models.SeriesKey `json:"series"`
	AsOf        time.Time        `json:"as_of"`
	Vol20D      float64          `json:"vol_20d"`
	TrendScore  float64          `json:"trend_score"`
	DrawdownYTD float64          `json:"drawdown_ytd"`
}

// Regime computes the snapshot for one series from committed bars. Values
// that need more history than exists are left zero rather than failing the
// whole snapshot.
func (e *Engine) Regime(ctx context.Context, series models.SeriesKey) (*RegimeSnapshot, error) {
	bars, err := e.reader.LatestBars(ctx, series, 300)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, models.ErrInsufficientHistory
	}

	asOf := bars[len(bars)-1].TS
	closes := models.Closes(bars)
	logReturns := LogReturns(closes)

	snap := &RegimeSnapshot{Series: series, AsOf: asOf}

	if vol, err := RollingVolatility(logReturns, 20); err == nil {
		snap.Vol20D = vol
	} else if !errors.Is(err, models.ErrInsufficientHistory) {
		return nil, err
	}

	if trend, err := TrendScore(logReturns, 10); err == nil {
		snap.TrendScore = trend
	}

	// drawdown since the start of asOf's calendar year
	yearStart := time.Date(asOf.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	var ytd []float64
	for _, b := range bars {
		if !b.TS.Before(yearStart) {
			ytd = append(ytd, b.Close)
		}
	}
	snap.DrawdownYTD = MaxDrawdown(ytd)

	return snap, nil
}
