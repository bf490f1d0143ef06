package repository

import (
	"context"

	"BloomPull/internal/domain/models"
)

// SeriesReader is the read-only view the analytics engine computes from.
// Implementations must serve committed data only, never in-flight batches.
type SeriesReader interface {
	LatestBars(ctx context.Context, series models.SeriesKey, n int) ([]models.OHLCVBar, error)
	BarsInRange(ctx context.Context, series models.SeriesKey, r models.DateRange) ([]models.OHLCVBar, error)
}
