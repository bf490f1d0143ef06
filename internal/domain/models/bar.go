package models

import "time"

// OHLCVBar is one daily bar of a canonical price series. Bars are keyed by
// (instrument, source, ts); ingesting the same timestamp again overwrites the
// prior row instead of appending.
type OHLCVBar struct {
	Instrument InstrumentKey
	TS         time.Time // bar date, UTC midnight for daily data
	Open       float64
	High       float64
	Low        float64
	Close      float64
	AdjClose   float64 // equals Close when the provider reports no adjustment
	Volume     float64
	Source     Source
}

func (b OHLCVBar) Series() SeriesKey {
	return SeriesKey{Instrument: b.Instrument, Source: b.Source}
}

// SortBarsByTS orders bars ascending by timestamp in place. Insertion sort:
// provider payloads arrive nearly ordered already.
func SortBarsByTS(bars []OHLCVBar) {
	for i := 1; i < len(bars); i++ {
		for j := i; j > 0 && bars[j].TS.Before(bars[j-1].TS); j-- {
			bars[j], bars[j-1] = bars[j-1], bars[j]
		}
	}
}

// DedupBarsByTS collapses duplicate timestamps keeping the last occurrence.
// Input must already be sorted by TS.
func DedupBarsByTS(bars []OHLCVBar) []OHLCVBar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if b.TS.Equal(out[len(out)-1].TS) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// Closes extracts the close column preserving order.
func Closes(bars []OHLCVBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
