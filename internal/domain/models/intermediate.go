package models

import "time"

// RecordKind tells the normalizer which canonical entity an intermediate
// record maps to.
type RecordKind string

const (
	RecordBar   RecordKind = "bar"
	RecordMacro RecordKind = "macro"
	RecordNews  RecordKind = "news"
	RecordQuote RecordKind = "quote" // snapshot quote, normalized into a bar for today
)

// IntermediateRecord is the provider-agnostic shape every adapter emits.
// Fields are populated per kind; the normalizer owns all interpretation.
type IntermediateRecord struct {
	Kind   RecordKind
	Source Source

	// identity hints, resolved by the normalizer
	Symbol string
	Class  AssetClass
	Venue  string

	TS time.Time

	// bar / quote fields
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   float64
	Currency string
	// PriceScale divides all price fields, e.g. 100 for GBX quotes. Zero
	// means no scaling.
	PriceScale float64

	// macro fields
	MacroID   string
	MacroZone MacroZone
	Frequency MacroFrequency
	Value     float64
	Missing   bool // provider reported a gap marker for this TS

	// news fields
	Headline string
	URL      string
	Tone     float64
	Tags     []string
}

// IntermediateBatch is one adapter fetch result. Covered is the window the
// provider actually returned data for; the orchestrator reschedules the
// remainder when Complete is false.
type IntermediateBatch struct {
	Source    Source
	Records   []IntermediateRecord
	Requested DateRange
	Covered   DateRange
	Complete  bool
}

// ObservedRange derives the covered window from record timestamps. Adapters
// call this when the provider gives no explicit coverage information.
func ObservedRange(records []IntermediateRecord) DateRange {
	var r DateRange
	for _, rec := range records {
		if rec.TS.IsZero() {
			continue
		}
		if r.From.IsZero() || rec.TS.Before(r.From) {
			r.From = rec.TS
		}
		if end := rec.TS.Add(24 * time.Hour); end.After(r.To) {
			r.To = end
		}
	}
	return r
}
