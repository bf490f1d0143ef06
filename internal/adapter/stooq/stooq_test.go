package stooq

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

const sampleCSV = `Date,Open,High,Low,Close,Volume
2025-05-01,100.5,102.0,99.8,101.2,1200000
2025-05-02,101.2,103.4,101.0,103.1,980000
2025-05-03,103.1,103.5,100.9,101.0,1100000
`

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

func TestParseDaily(t *testing.T) {
	records, err := parseDaily(models.SourceStooq, "AAPL.US", "us", []byte(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, models.RecordBar, first.Kind)
	assert.Equal(t, "AAPL.US", first.Symbol)
	assert.Equal(t, models.AssetEquity, first.Class)
	assert.Equal(t, "us", first.Venue)
	assert.True(t, first.TS.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 100.5, first.Open)
	assert.Equal(t, 102.0, first.High)
	assert.Equal(t, 99.8, first.Low)
	assert.Equal(t, 101.2, first.Close)
	assert.Equal(t, 1200000.0, first.Volume)
}

func TestParseDailyMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong header", "No data\n"},
		{"short row", "Date,Open,High,Low,Close,Volume\n2025-05-01,100.5\n"},
		{"bad date", "Date,Open,High,Low,Close,Volume\nnotadate,1,1,1,1,1\n"},
		{"bad number", "Date,Open,High,Low,Close,Volume\n2025-05-01,x,1,1,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDaily(models.SourceStooq, "AAPL.US", "us", []byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, models.FailMalformed, models.KindOf(err))
			assert.False(t, models.IsTransient(err))
		})
	}
}

func TestParseDailySkipsBlankLines(t *testing.T) {
	records, err := parseDaily(models.SourceStooq, "AAPL.US", "us",
		[]byte("Date,Open,High,Low,Close,Volume\n\n2025-05-01,1,1,1,1,1\n\n"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFetchCoversRequestedWindow(t *testing.T) {
	var gotSymbol, gotD1, gotD2 string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("s")
		gotD1 = r.URL.Query().Get("d1")
		gotD2 = r.URL.Query().Get("d2")
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	cfg := config.SourceConfig{BaseURL: srv.URL, Venue: "us", RatePerSec: 100, RateBurst: 10}
	client := New(testDeps(t), cfg)

	scope := models.Scope{
		Source:  models.SourceStooq,
		Class:   models.AssetEquity,
		Venue:   "us",
		Symbols: []string{"AAPL"},
		Range: models.DateRange{
			From: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC),
		},
	}
	batch, err := client.Fetch(context.Background(), scope)
	require.NoError(t, err)

	// venue suffix appended, window sent as inclusive yyyymmdd dates
	assert.Equal(t, "aapl.us", gotSymbol)
	assert.Equal(t, "20250501", gotD1)
	assert.Equal(t, "20250503", gotD2)

	assert.Len(t, batch.Records, 3)
	assert.True(t, batch.Complete)
	assert.True(t, batch.Covered.From.Equal(scope.Range.From))
	assert.False(t, batch.Covered.To.Before(scope.Range.To))
}

func TestFetchRateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(testDeps(t), config.SourceConfig{BaseURL: srv.URL, RatePerSec: 100, RateBurst: 10})

	_, err := client.Fetch(context.Background(), models.Scope{Symbols: []string{"AAPL.US"}})
	require.Error(t, err)
	assert.Equal(t, models.FailRateLimit, models.KindOf(err))
	assert.True(t, models.IsTransient(err))
}
