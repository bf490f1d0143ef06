package models

import (
	"fmt"
	"time"
)

// MacroZone groups macro series by what they describe. Mirrors how the
// FRED-style dashboards bucket their panels.
type MacroZone string

const (
	ZoneCPI          MacroZone = "cpi"
	ZoneGDP          MacroZone = "gdp"
	ZonePolicy       MacroZone = "policy"
	ZoneUnemployment MacroZone = "unemp"
	ZoneFX           MacroZone = "fx"
)

type MacroFrequency string

const (
	FreqDaily     MacroFrequency = "daily"
	FreqMonthly   MacroFrequency = "monthly"
	FreqQuarterly MacroFrequency = "quarterly"
)

type MacroPoint struct {
	TS    time.Time
	Value float64
}

// MacroSeries is a canonical macro or FX reference series. Points follow the
// same upsert-by-timestamp rule as OHLCVBar.
type MacroSeries struct {
	SeriesID  string
	Provider  Source
	Frequency MacroFrequency
	Zone      MacroZone
	Points    []MacroPoint
}

func (m MacroSeries) Key() string {
	return fmt.Sprintf("macro:%s:%s", m.Provider, m.SeriesID)
}
