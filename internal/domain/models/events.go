package models

import "time"

// BarEvent announces that committed canonical bars changed for a series.
// Consumers re-read the series themselves; the event never carries rows, so
// analytics only ever observes committed data.
type BarEvent struct {
	Series SeriesKey `json:"series"`
	Range  DateRange `json:"range"`
	Rows   int       `json:"rows"`
	At     time.Time `json:"at"`
}
