package models

import (
	"fmt"
	"strings"
	"time"
)

type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetRate   AssetClass = "rate"
	AssetFX     AssetClass = "fx"
	AssetCrypto AssetClass = "crypto"
)

func (c AssetClass) Valid() bool {
	switch c {
	case AssetEquity, AssetRate, AssetFX, AssetCrypto:
		return true
	}
	return false
}

// Source identifies one upstream provider. Series from different sources are
// never merged, even for the same instrument and date.
type Source string

const (
	SourceStooq     Source = "stooq"
	SourceYahoo     Source = "yahoo"
	SourceFRED      Source = "fred"
	SourceECB       Source = "ecb"
	SourceCoinGecko Source = "coingecko"
	SourceGDELT     Source = "gdelt"
	SourceFinnhub   Source = "finnhub"
)

func (s Source) Valid() bool {
	switch s {
	case SourceStooq, SourceYahoo, SourceFRED, SourceECB, SourceCoinGecko, SourceGDELT, SourceFinnhub:
		return true
	}
	return false
}

// InstrumentKey is the deterministic identity an instrument is resolved by.
// Two records resolve to the same instrument iff their keys are equal after
// canonicalization; there is no fuzzy matching anywhere.
type InstrumentKey struct {
	Symbol string
	Class  AssetClass
	Venue  string
}

func NewInstrumentKey(symbol string, class AssetClass, venue string) InstrumentKey {
	return InstrumentKey{
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		Class:  class,
		Venue:  strings.ToLower(strings.TrimSpace(venue)),
	}
}

func (k InstrumentKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Class, k.Venue, k.Symbol)
}

func (k InstrumentKey) IsZero() bool {
	return k.Symbol == "" && k.Venue == "" && k.Class == ""
}

type Instrument struct {
	Key       InstrumentKey
	Currency  string
	Name      string
	Sector    string
	Active    bool // never deleted, only flipped inactive
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SeriesKey identifies one canonical time series: an instrument as reported
// by a single source.
type SeriesKey struct {
	Instrument InstrumentKey
	Source     Source
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s:%s", k.Instrument, k.Source)
}
