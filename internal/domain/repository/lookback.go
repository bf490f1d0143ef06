package repository

import (
	"time"

	"BloomPull/internal/domain/models"
)

// Lookback is a named query window for the read surface.
type Lookback string

const (
	LB1D Lookback = "1d"
	LB5D Lookback = "5d"
	LB1M Lookback = "1m"
	LB6M Lookback = "6m"
	LB1Y Lookback = "1y"
)

// IsValidLookback returns true if lb is a supported lookback.
func IsValidLookback(lb Lookback) bool {
	switch lb {
	case LB1D, LB5D, LB1M, LB6M, LB1Y:
		return true
	default:
		return false
	}
}

// DefaultLookback returns the default query window.
func DefaultLookback() Lookback { return LB1Y }

// NormalizeLookback converts a raw string to a valid lookback (or default).
func NormalizeLookback(s string) Lookback {
	if s == "" {
		return DefaultLookback()
	}
	lb := Lookback(s)
	if IsValidLookback(lb) {
		return lb
	}
	return DefaultLookback()
}

// RangeEnding materializes the lookback as a date range ending at end.
func (lb Lookback) RangeEnding(end time.Time) models.DateRange {
	end = end.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	var days int
	switch lb {
	case LB1D:
		days = 1
	case LB5D:
		days = 7 // five trading days need a week of calendar
	case LB1M:
		days = 31
	case LB6M:
		days = 183
	default:
		days = 366
	}
	return models.DateRange{From: end.AddDate(0, 0, -days), To: end}
}
