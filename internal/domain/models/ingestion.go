package models

import (
	"fmt"
	"strings"
	"time"
)

// DateRange is a half-open window [From, To) over UTC dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

func (r DateRange) Days() int {
	if r.IsZero() || !r.To.After(r.From) {
		return 0
	}
	return int(r.To.Sub(r.From).Hours() / 24)
}

func (r DateRange) Contains(ts time.Time) bool {
	return !ts.Before(r.From) && ts.Before(r.To)
}

// Remainder returns the uncovered tail of r after covered. A zero covered
// range leaves r untouched; full coverage returns a zero range.
func (r DateRange) Remainder(covered DateRange) DateRange {
	if covered.IsZero() {
		return r
	}
	if !covered.To.Before(r.To) {
		return DateRange{}
	}
	return DateRange{From: covered.To, To: r.To}
}

// Fraction reports how much of r the covered range spans, in [0, 1].
func (r DateRange) Fraction(covered DateRange) float64 {
	total := r.Days()
	if total == 0 {
		return 0
	}
	got := covered.Days()
	if got > total {
		got = total
	}
	return float64(got) / float64(total)
}

// Scope is the unit of ingestion work: one source, a symbol set, a window.
// MacroIDs carries provider series ids for macro sources; Symbols carries
// instrument symbols for price/news sources.
type Scope struct {
	Source   Source
	Class    AssetClass
	Venue    string
	Symbols  []string
	MacroIDs []string
	Range    DateRange
}

// Key is the identity under which concurrent refreshes dedup. The window is
// deliberately excluded: two overlapping requests for the same symbols are
// one job.
func (s Scope) Key() string {
	ids := s.Symbols
	if len(ids) == 0 {
		ids = s.MacroIDs
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return fmt.Sprintf("%s:%s:%s:%s", s.Source, s.Class, s.Venue, strings.Join(sorted, ","))
}

type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunPartial RunOutcome = "partial"
	RunFailed  RunOutcome = "failed"
)

// IngestionRun is the append-only audit record of one adapter invocation.
// The status registry is rebuilt from this trail on restart.
type IngestionRun struct {
	ID           string
	Source       Source
	ScopeKey     string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      RunOutcome
	ErrorDetail  string
	RowsIngested int
	Coverage     float64
	LatencyMS    int64
}
