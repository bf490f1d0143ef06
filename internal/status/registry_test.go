package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/domain/models"
)

func run(source models.Source, outcome models.RunOutcome, latencyMS int64) models.IngestionRun {
	return models.IngestionRun{
		Source:     source,
		Outcome:    outcome,
		LatencyMS:  latencyMS,
		FinishedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Coverage:   1,
	}
}

func TestRecordSuccessResetsFailureStreak(t *testing.T) {
	r := NewRegistry()

	fail := run(models.SourceStooq, models.RunFailed, 100)
	fail.ErrorDetail = "connection reset"
	r.Record(fail)
	r.Record(fail)

	h, ok := r.Get(models.SourceStooq)
	require.True(t, ok)
	assert.Equal(t, 2, h.ConsecutiveFailures)
	assert.Equal(t, "connection reset", h.LastError)
	assert.True(t, h.LastSuccess.IsZero())

	r.Record(run(models.SourceStooq, models.RunSuccess, 100))

	h, _ = r.Get(models.SourceStooq)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Empty(t, h.LastError)
	assert.False(t, h.LastSuccess.IsZero())
	assert.Equal(t, models.RunSuccess, h.LastOutcome)
	assert.Equal(t, 3, h.Runs)
}

// A partial cycle proves reachability: the streak resets but the error detail
// stays visible.
func TestRecordPartialResetsStreakKeepsError(t *testing.T) {
	r := NewRegistry()

	r.Record(run(models.SourceFRED, models.RunFailed, 100))

	partial := run(models.SourceFRED, models.RunPartial, 100)
	partial.Coverage = 0.4
	partial.ErrorDetail = "partial window"
	r.Record(partial)

	h, _ := r.Get(models.SourceFRED)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Equal(t, "partial window", h.LastError)
	assert.Equal(t, 0.4, h.Coverage)
	assert.False(t, h.LastSuccess.IsZero())
}

func TestRollingMeanLatency(t *testing.T) {
	r := NewRegistry()

	r.Record(run(models.SourceStooq, models.RunSuccess, 100))
	r.Record(run(models.SourceStooq, models.RunSuccess, 200))
	r.Record(run(models.SourceStooq, models.RunSuccess, 300))

	h, _ := r.Get(models.SourceStooq)
	assert.Equal(t, int64(200), h.AvgLatencyMS)
}

func TestSnapshotOrderedBySource(t *testing.T) {
	r := NewRegistry()
	r.Record(run(models.SourceYahoo, models.RunSuccess, 10))
	r.Record(run(models.SourceECB, models.RunSuccess, 10))
	r.Record(run(models.SourceFRED, models.RunFailed, 10))

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, models.SourceECB, snap[0].Source)
	assert.Equal(t, models.SourceFRED, snap[1].Source)
	assert.Equal(t, models.SourceYahoo, snap[2].Source)
}

func TestFromRunsRebuildsAndDiscards(t *testing.T) {
	r := NewRegistry()
	r.Record(run(models.SourceGDELT, models.RunFailed, 10))

	r.FromRuns([]models.IngestionRun{
		run(models.SourceStooq, models.RunFailed, 100),
		run(models.SourceStooq, models.RunSuccess, 100),
	})

	// pre-existing state is gone
	_, ok := r.Get(models.SourceGDELT)
	assert.False(t, ok)

	h, ok := r.Get(models.SourceStooq)
	require.True(t, ok)
	assert.Equal(t, 2, h.Runs)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Equal(t, models.RunSuccess, h.LastOutcome)
}

func TestGetUnknownSource(t *testing.T) {
	_, ok := NewRegistry().Get(models.SourceCoinGecko)
	assert.False(t, ok)
}
