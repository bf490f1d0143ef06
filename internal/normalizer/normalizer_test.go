package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/domain/models"
)

var asOf = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func barRecord(symbol string, day int, close float64) models.IntermediateRecord {
	return models.IntermediateRecord{
		Kind:   models.RecordBar,
		Source: models.SourceStooq,
		Symbol: symbol,
		Class:  models.AssetEquity,
		Venue:  "us",
		TS:     time.Date(2025, 5, day, 0, 0, 0, 0, time.UTC),
		Open:   close,
		High:   close * 1.01,
		Low:    close * 0.99,
		Close:  close,
		Volume: 1000,
	}
}

func TestNormalizeBarsCreatesIdentityOnce(t *testing.T) {
	batch := &models.IntermediateBatch{
		Source: models.SourceStooq,
		Records: []models.IntermediateRecord{
			barRecord("AAPL.US", 2, 100),
			barRecord("AAPL.US", 1, 99),
		},
	}

	res := Normalize(batch, IdentitySnapshot{}, asOf)

	assert.Empty(t, res.Rejected)
	require.Len(t, res.Instruments, 1)
	assert.Equal(t, "AAPL.US", res.Instruments[0].Key.Symbol)
	assert.True(t, res.Instruments[0].Active)
	assert.Equal(t, asOf, res.Instruments[0].CreatedAt)

	// bars come out sorted by timestamp regardless of payload order
	require.Len(t, res.Bars, 2)
	assert.True(t, res.Bars[0].TS.Before(res.Bars[1].TS))
	assert.Equal(t, 2, res.Rows())
}

func TestNormalizeKnownIdentityIsNotRecreated(t *testing.T) {
	key := models.NewInstrumentKey("AAPL.US", models.AssetEquity, "us")
	known := IdentitySnapshot{key: {Key: key, Currency: "USD"}}

	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{barRecord("AAPL.US", 1, 100)},
	}, known, asOf)

	assert.Empty(t, res.Rejected)
	assert.Empty(t, res.Instruments)
	assert.Len(t, res.Bars, 1)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	batch := &models.IntermediateBatch{
		Records: []models.IntermediateRecord{
			barRecord("MSFT.US", 3, 300),
			barRecord("AAPL.US", 1, 100),
			barRecord("AAPL.US", 2, 101),
		},
	}

	first := Normalize(batch, IdentitySnapshot{}, asOf)
	second := Normalize(batch, IdentitySnapshot{}, asOf)

	assert.Equal(t, first.Instruments, second.Instruments)
	assert.Equal(t, first.Bars, second.Bars)
}

func TestNormalizeRejections(t *testing.T) {
	noSymbol := barRecord("", 1, 100)
	badClass := barRecord("AAPL.US", 1, 100)
	badClass.Class = "bond"
	noTS := barRecord("AAPL.US", 1, 100)
	noTS.TS = time.Time{}
	badClose := barRecord("AAPL.US", 1, -5)
	inverted := barRecord("AAPL.US", 1, 100)
	inverted.High, inverted.Low = 90, 110
	unknownKind := barRecord("AAPL.US", 1, 100)
	unknownKind.Kind = "tick"

	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{noSymbol, badClass, noTS, badClose, inverted, unknownKind},
	}, IdentitySnapshot{}, asOf)

	assert.Empty(t, res.Bars)
	require.Len(t, res.Rejected, 6)
	reasons := make([]RejectReason, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		reasons = append(reasons, r.Reason)
	}
	assert.Equal(t, []RejectReason{
		ReasonMissingIdentity,
		ReasonMissingIdentity,
		ReasonBadTimestamp,
		ReasonBadValue,
		ReasonBadValue,
		ReasonUnsupportedKind,
	}, reasons)
}

func TestNormalizeCurrencyConflictIsAmbiguous(t *testing.T) {
	key := models.NewInstrumentKey("AAPL.US", models.AssetEquity, "us")
	known := IdentitySnapshot{key: {Key: key, Currency: "USD"}}

	rec := barRecord("AAPL.US", 1, 100)
	rec.Currency = "EUR"

	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{rec},
	}, known, asOf)

	assert.Empty(t, res.Bars)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonAmbiguousIdentity, res.Rejected[0].Reason)
}

func TestNormalizePriceScale(t *testing.T) {
	rec := barRecord("VOD.UK", 1, 12550) // GBX
	rec.Venue = "uk"
	rec.PriceScale = 100

	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{rec},
	}, IdentitySnapshot{}, asOf)

	require.Len(t, res.Bars, 1)
	assert.InDelta(t, 125.50, res.Bars[0].Close, 1e-9)
	assert.InDelta(t, 125.50, res.Bars[0].Open, 1e-9)
}

func TestNormalizeQuoteFillsOpenAndAdjClose(t *testing.T) {
	rec := models.IntermediateRecord{
		Kind:   models.RecordQuote,
		Source: models.SourceFinnhub,
		Symbol: "AAPL.US",
		Class:  models.AssetEquity,
		Venue:  "us",
		TS:     asOf,
		Close:  187.5,
	}

	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{rec},
	}, IdentitySnapshot{}, asOf)

	require.Len(t, res.Bars, 1)
	assert.Equal(t, 187.5, res.Bars[0].Open)
	assert.Equal(t, 187.5, res.Bars[0].AdjClose)
}

func TestNormalizeMacroSkipsGapMarkers(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 5, d, 0, 0, 0, 0, time.UTC) }
	point := func(d int, v float64, missing bool) models.IntermediateRecord {
		return models.IntermediateRecord{
			Kind:      models.RecordMacro,
			Source:    models.SourceFRED,
			MacroID:   "DGS10",
			MacroZone: models.ZonePolicy,
			Frequency: models.FreqDaily,
			TS:        day(d),
			Value:     v,
			Missing:   missing,
		}
	}

	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{
			point(3, 4.41, false),
			point(2, 0, true), // market holiday marker
			point(1, 4.38, false),
		},
	}, IdentitySnapshot{}, asOf)

	assert.Empty(t, res.Rejected)
	require.Len(t, res.Macro, 1)
	s := res.Macro[0]
	assert.Equal(t, "DGS10", s.SeriesID)
	assert.Equal(t, models.SourceFRED, s.Provider)
	require.Len(t, s.Points, 2)
	assert.True(t, s.Points[0].TS.Before(s.Points[1].TS))
	assert.Equal(t, 2, res.Rows())
}

func TestNormalizeMacroWithoutSeriesID(t *testing.T) {
	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{{
			Kind:   models.RecordMacro,
			Source: models.SourceFRED,
			TS:     asOf,
			Value:  1,
		}},
	}, IdentitySnapshot{}, asOf)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonMissingIdentity, res.Rejected[0].Reason)
}

func TestNormalizeNews(t *testing.T) {
	item := func(url string) models.IntermediateRecord {
		return models.IntermediateRecord{
			Kind:     models.RecordNews,
			Source:   models.SourceGDELT,
			TS:       asOf,
			Headline: "rates on the move",
			URL:      url,
			Tone:     -1.2,
			Tags:     []string{"rates"},
		}
	}

	withRelated := item("https://example.com/a")
	withRelated.Symbol = "AAPL.US"
	withRelated.Class = models.AssetEquity
	withRelated.Venue = "us"

	noURL := item("")

	res := Normalize(&models.IntermediateBatch{
		Records: []models.IntermediateRecord{withRelated, item("https://example.com/b"), noURL},
	}, IdentitySnapshot{}, asOf)

	require.Len(t, res.News, 2)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonBadValue, res.Rejected[0].Reason)

	var related int
	for _, n := range res.News {
		assert.NotEmpty(t, n.ID)
		related += len(n.Related)
	}
	assert.Equal(t, 1, related)
	// the related symbol minted an identity
	require.Len(t, res.Instruments, 1)
	assert.Equal(t, "AAPL.US", res.Instruments[0].Key.Symbol)
}
