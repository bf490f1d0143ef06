package normalizer

import (
	"fmt"
	"time"

	"BloomPull/internal/domain/models"
)

// RejectReason codes why a record could not be normalized. Rejected records
// are reported, never dropped silently.
type RejectReason string

const (
	ReasonMissingIdentity   RejectReason = "missing_identity"
	ReasonAmbiguousIdentity RejectReason = "ambiguous_identity"
	ReasonBadTimestamp      RejectReason = "bad_timestamp"
	ReasonBadValue          RejectReason = "bad_value"
	ReasonUnsupportedKind   RejectReason = "unsupported_kind"
)

type RejectedRecord struct {
	Record models.IntermediateRecord
	Reason RejectReason
	Detail string
}

// Result is the canonical output of one normalization pass. Instruments
// holds only identities created by this pass; existing identities come from
// the caller's snapshot and are not repeated here.
type Result struct {
	Instruments []models.Instrument
	Bars        []models.OHLCVBar
	Macro       []models.MacroSeries
	News        []models.NewsItem
	Rejected    []RejectedRecord
}

func (r *Result) Rows() int {
	n := len(r.Bars) + len(r.News)
	for _, s := range r.Macro {
		n += len(s.Points)
	}
	return n
}

// IdentitySnapshot is the known-instrument view a normalization pass resolves
// against. It is passed in explicitly so Normalize stays a pure mapping:
// identical input and snapshot always yield identical output.
type IdentitySnapshot map[models.InstrumentKey]models.Instrument

// Normalize maps an intermediate batch into canonical entities. asOf stamps
// identities created by this pass; callers pass the job start time so
// re-running a window is reproducible.
//
// The normalizer is the only component permitted to create instrument and
// series identities. Matching is strictly by deterministic key; any conflict
// with the snapshot is a rejection, never a guess.
func Normalize(batch *models.IntermediateBatch, known IdentitySnapshot, asOf time.Time) *Result {
	res := &Result{}
	created := make(map[models.InstrumentKey]*models.Instrument)
	macro := make(map[string]*models.MacroSeries)
	newsSeen := make(map[string]struct{})

	for _, rec := range batch.Records {
		switch rec.Kind {
		case models.RecordBar, models.RecordQuote:
			normalizeBar(rec, known, created, asOf, res)
		case models.RecordMacro:
			normalizeMacro(rec, macro, res)
		case models.RecordNews:
			normalizeNews(rec, known, created, newsSeen, asOf, res)
		default:
			reject(res, rec, ReasonUnsupportedKind, string(rec.Kind))
		}
	}

	for _, ins := range created {
		res.Instruments = append(res.Instruments, *ins)
	}

	// deterministic ordering regardless of provider payload order
	models.SortBarsByTS(res.Bars)
	for _, s := range macro {
		sortPoints(s.Points)
		res.Macro = append(res.Macro, *s)
	}
	sortMacroSeries(res.Macro)
	sortInstruments(res.Instruments)
	sortNews(res.News)

	return res
}

func normalizeBar(rec models.IntermediateRecord, known IdentitySnapshot, created map[models.InstrumentKey]*models.Instrument, asOf time.Time, res *Result) {
	key, ok := resolveIdentity(rec, known, created, asOf, res)
	if !ok {
		return
	}
	if rec.TS.IsZero() {
		reject(res, rec, ReasonBadTimestamp, "zero timestamp")
		return
	}
	if rec.Close <= 0 {
		reject(res, rec, ReasonBadValue, fmt.Sprintf("close %v", rec.Close))
		return
	}
	if rec.High != 0 && rec.Low != 0 && rec.High < rec.Low {
		reject(res, rec, ReasonBadValue, fmt.Sprintf("high %v below low %v", rec.High, rec.Low))
		return
	}

	scale := rec.PriceScale
	if scale == 0 {
		scale = 1
	}
	bar := models.OHLCVBar{
		Instrument: key,
		TS:         rec.TS.UTC(),
		Open:       rec.Open / scale,
		High:       rec.High / scale,
		Low:        rec.Low / scale,
		Close:      rec.Close / scale,
		AdjClose:   rec.AdjClose / scale,
		Volume:     rec.Volume,
		Source:     rec.Source,
	}
	if bar.AdjClose == 0 {
		bar.AdjClose = bar.Close
	}
	// quotes arrive without an open on some providers; carry the close so
	// the bar stays internally consistent
	if bar.Open == 0 {
		bar.Open = bar.Close
	}
	res.Bars = append(res.Bars, bar)
}

func normalizeMacro(rec models.IntermediateRecord, macro map[string]*models.MacroSeries, res *Result) {
	if rec.MacroID == "" {
		reject(res, rec, ReasonMissingIdentity, "empty series id")
		return
	}
	if rec.TS.IsZero() {
		reject(res, rec, ReasonBadTimestamp, "zero timestamp")
		return
	}
	if rec.Missing {
		return // a declared gap is not data and not an error
	}

	mapKey := string(rec.Source) + ":" + rec.MacroID
	s, ok := macro[mapKey]
	if !ok {
		s = &models.MacroSeries{
			SeriesID:  rec.MacroID,
			Provider:  rec.Source,
			Frequency: rec.Frequency,
			Zone:      rec.MacroZone,
		}
		macro[mapKey] = s
	}
	s.Points = append(s.Points, models.MacroPoint{TS: rec.TS.UTC(), Value: rec.Value})
}

func normalizeNews(rec models.IntermediateRecord, known IdentitySnapshot, created map[models.InstrumentKey]*models.Instrument, newsSeen map[string]struct{}, asOf time.Time, res *Result) {
	if rec.URL == "" || rec.Headline == "" {
		reject(res, rec, ReasonBadValue, "missing url or headline")
		return
	}
	if rec.TS.IsZero() {
		reject(res, rec, ReasonBadTimestamp, "zero timestamp")
		return
	}

	id := models.NewsID(rec.URL, rec.TS)
	item := models.NewsItem{
		ID:       id,
		TS:       rec.TS.UTC(),
		Source:   rec.Source,
		Headline: rec.Headline,
		URL:      rec.URL,
		Tone:     rec.Tone,
		Tags:     rec.Tags,
	}
	// a related symbol is optional on news; resolve it only when present
	if rec.Symbol != "" && rec.Class.Valid() {
		if key, ok := resolveIdentity(rec, known, created, asOf, res); ok {
			item.Related = append(item.Related, key)
		} else {
			return // resolveIdentity already recorded the rejection
		}
	}
	res.News = append(res.News, item)
}

// resolveIdentity matches rec against the snapshot or creates a new identity,
// strictly by deterministic key. A record whose stated currency contradicts
// the already-resolved instrument is ambiguous and rejected.
func resolveIdentity(rec models.IntermediateRecord, known IdentitySnapshot, created map[models.InstrumentKey]*models.Instrument, asOf time.Time, res *Result) (models.InstrumentKey, bool) {
	if rec.Symbol == "" {
		reject(res, rec, ReasonMissingIdentity, "empty symbol")
		return models.InstrumentKey{}, false
	}
	if !rec.Class.Valid() {
		reject(res, rec, ReasonMissingIdentity, fmt.Sprintf("invalid asset class %q", rec.Class))
		return models.InstrumentKey{}, false
	}

	key := models.NewInstrumentKey(rec.Symbol, rec.Class, rec.Venue)

	if existing, ok := known[key]; ok {
		if rec.Currency != "" && existing.Currency != "" && rec.Currency != existing.Currency {
			reject(res, rec, ReasonAmbiguousIdentity,
				fmt.Sprintf("currency %s conflicts with resolved %s for %s", rec.Currency, existing.Currency, key))
			return models.InstrumentKey{}, false
		}
		return key, true
	}
	if pending, ok := created[key]; ok {
		if rec.Currency != "" && pending.Currency != "" && rec.Currency != pending.Currency {
			reject(res, rec, ReasonAmbiguousIdentity,
				fmt.Sprintf("currency %s conflicts with %s within batch for %s", rec.Currency, pending.Currency, key))
			return models.InstrumentKey{}, false
		}
		if pending.Currency == "" {
			pending.Currency = rec.Currency
		}
		return key, true
	}

	created[key] = &models.Instrument{
		Key:       key,
		Currency:  rec.Currency,
		Active:    true,
		CreatedAt: asOf,
		UpdatedAt: asOf,
	}
	return key, true
}

func reject(res *Result, rec models.IntermediateRecord, reason RejectReason, detail string) {
	res.Rejected = append(res.Rejected, RejectedRecord{Record: rec, Reason: reason, Detail: detail})
}

func sortPoints(pts []models.MacroPoint) {
	for i := 1; i < len(pts); i++ {
		for j := i; j > 0 && pts[j].TS.Before(pts[j-1].TS); j-- {
			pts[j], pts[j-1] = pts[j-1], pts[j]
		}
	}
}

func sortMacroSeries(series []models.MacroSeries) {
	for i := 1; i < len(series); i++ {
		for j := i; j > 0 && series[j].Key() < series[j-1].Key(); j-- {
			series[j], series[j-1] = series[j-1], series[j]
		}
	}
}

func sortInstruments(ins []models.Instrument) {
	for i := 1; i < len(ins); i++ {
		for j := i; j > 0 && ins[j].Key.String() < ins[j-1].Key.String(); j-- {
			ins[j], ins[j-1] = ins[j-1], ins[j]
		}
	}
}

func sortNews(items []models.NewsItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].ID < items[j-1].ID; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
