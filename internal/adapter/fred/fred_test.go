package fred

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/adapter"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/ratelimit"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	"BloomPull/pkg/logger"
)

func testDeps(t *testing.T) adapter.Deps {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return adapter.Deps{
		HTTP:    xhttp.NewClient(),
		Limiter: ratelimit.New(),
		Logger:  l,
	}
}

func macroScope(ids ...string) models.Scope {
	return models.Scope{
		Source:   models.SourceFRED,
		MacroIDs: ids,
		Range: models.DateRange{
			From: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestFetchObservations(t *testing.T) {
	const body = `{"observations":[
		{"date":"2025-05-01","value":"4.38"},
		{"date":"2025-05-02","value":"."},
		{"date":"2025-05-05","value":"4.41"}
	]}`

	var gotSeries, gotKey, gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSeries = r.URL.Query().Get("series_id")
		gotKey = r.URL.Query().Get("api_key")
		gotStart = r.URL.Query().Get("observation_start")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cfg := config.SourceConfig{BaseURL: srv.URL, APIKey: "secret", RatePerSec: 100, RateBurst: 10}
	client := New(testDeps(t), cfg)

	batch, err := client.Fetch(context.Background(), macroScope("DGS10"))
	require.NoError(t, err)

	assert.Equal(t, "DGS10", gotSeries)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "2025-05-01", gotStart)

	require.Len(t, batch.Records, 3)
	first := batch.Records[0]
	assert.Equal(t, models.RecordMacro, first.Kind)
	assert.Equal(t, "DGS10", first.MacroID)
	assert.Equal(t, models.ZonePolicy, first.MacroZone)
	assert.Equal(t, models.FreqDaily, first.Frequency)
	assert.Equal(t, 4.38, first.Value)
	assert.False(t, first.Missing)

	// "." marks a published gap, carried as a marker rather than a zero value
	gap := batch.Records[1]
	assert.True(t, gap.Missing)

	assert.True(t, batch.Complete)
}

func TestFetchAPIErrorIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"observations":[],"error_message":"Bad Request. The series does not exist."}`))
	}))
	defer srv.Close()

	client := New(testDeps(t), config.SourceConfig{BaseURL: srv.URL, RatePerSec: 100, RateBurst: 10})

	_, err := client.Fetch(context.Background(), macroScope("NOPE"))
	require.Error(t, err)
	assert.Equal(t, models.FailMalformed, models.KindOf(err))
}

func TestFetchBadDateIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"observations":[{"date":"05/01/2025","value":"1"}]}`))
	}))
	defer srv.Close()

	client := New(testDeps(t), config.SourceConfig{BaseURL: srv.URL, RatePerSec: 100, RateBurst: 10})

	_, err := client.Fetch(context.Background(), macroScope("DGS10"))
	require.Error(t, err)
	assert.Equal(t, models.FailMalformed, models.KindOf(err))
}

func TestZoneFor(t *testing.T) {
	assert.Equal(t, models.ZoneCPI, ZoneFor("CPIAUCSL"))
	assert.Equal(t, models.ZoneGDP, ZoneFor("GDPC1"))
	assert.Equal(t, models.ZonePolicy, ZoneFor("FEDFUNDS"))
	assert.Equal(t, models.ZonePolicy, ZoneFor("DGS10"))
	assert.Equal(t, models.ZoneUnemployment, ZoneFor("UNRATE"))
	assert.Equal(t, models.ZonePolicy, ZoneFor("SOMETHINGELSE"))
}

func TestFrequencyFor(t *testing.T) {
	assert.Equal(t, models.FreqQuarterly, frequencyFor("GDPC1"))
	assert.Equal(t, models.FreqDaily, frequencyFor("DGS10"))
	assert.Equal(t, models.FreqMonthly, frequencyFor("CPIAUCSL"))
	assert.Equal(t, models.FreqMonthly, frequencyFor("UNRATE"))
}
