package repository

import (
	"context"
	"time"

	"BloomPull/internal/domain/models"
)

// Store is the persistent source of truth for canonical entities. Writes are
// idempotent per the entity key rules; reads return committed data only.
type Store interface {
	Init(ctx context.Context) error // ensure tables, health checks

	UpsertInstruments(ctx context.Context, ins []models.Instrument) error
	GetInstrument(ctx context.Context, key models.InstrumentKey) (*models.Instrument, error)
	ListInstruments(ctx context.Context, class models.AssetClass) ([]models.Instrument, error)

	WriteBars(ctx context.Context, bars []models.OHLCVBar) error
	QueryBars(ctx context.Context, series models.SeriesKey, r models.DateRange, limit int) ([]models.OHLCVBar, error)
	LastBarTS(ctx context.Context, series models.SeriesKey) (time.Time, error)

	WriteMacro(ctx context.Context, series models.MacroSeries) error
	QueryMacro(ctx context.Context, provider models.Source, seriesID string, r models.DateRange) (*models.MacroSeries, error)

	WriteNews(ctx context.Context, items []models.NewsItem) error
	QueryNews(ctx context.Context, r models.DateRange, limit int) ([]models.NewsItem, error)

	RecordRun(ctx context.Context, run models.IngestionRun) error
	QueryRuns(ctx context.Context, since time.Time, limit int) ([]models.IngestionRun, error)

	Health(ctx context.Context) error
	Close() error
}

// Bus carries bar-update events from the write-through path to whoever
// recomputes analytics. Events name changed series, never data rows.
type Bus interface {
	PublishBarEvent(ctx context.Context, ev models.BarEvent) error
	Close() error
}

type Metrics interface {
	RecordRowsIngested(source string, n int)
	RecordJobOutcome(source, outcome string)
	RecordJobDuration(source string, seconds float64)
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
	RecordLastSuccess(source string, ts time.Time)
	RecordRecompute(n int)
}
