package api

import (
	"BloomPull/internal/analytics"
	"BloomPull/internal/domain/models"
)

// InstrumentRequest resolves one instrument by its deterministic key.
type InstrumentRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	Class  string `query:"class" validate:"required,oneof=equity rate fx crypto"`
	Venue  string `query:"venue"`
}

type ListInstrumentsRequest struct {
	Class string `query:"class" validate:"omitempty,oneof=equity rate fx crypto"`
}

// SeriesRequest reads one source's bars for a window. From/To accept
// RFC3339 or date-only strings; a named lookback applies when both are
// empty, and everything empty means the cached recency view.
type SeriesRequest struct {
	Symbol   string `query:"symbol" validate:"required"`
	Class    string `query:"class" validate:"required,oneof=equity rate fx crypto"`
	Venue    string `query:"venue"`
	Source   string `query:"source" validate:"required"`
	From     string `query:"from"`
	To       string `query:"to"`
	Lookback string `query:"lookback" validate:"omitempty,oneof=1d 5d 1m 6m 1y"`
	Limit    int    `query:"limit" default:"500" validate:"gte=0,lte=5000"`
}

type MacroRequest struct {
	Provider string `query:"provider" validate:"required,oneof=fred ecb"`
	SeriesID string `query:"series_id" validate:"required"`
	From     string `query:"from"`
	To       string `query:"to"`
}

type NewsRequest struct {
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"50" validate:"gte=0,lte=500"`
}

type MetricRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	Class  string `query:"class" validate:"required,oneof=equity rate fx crypto"`
	Venue  string `query:"venue"`
	Source string `query:"source" validate:"required"`
	Kind   string `query:"kind" validate:"required"`
	Window int    `query:"window" validate:"gte=0,lte=1000"`
	AsOf   string `query:"asof"`
}

// ScreenerRequest is the POST body for universe screening.
type ScreenerRequest struct {
	Predicates []analytics.Predicate `json:"predicates" validate:"dive"`
	RankBy     string                `json:"rank_by"`
	RankWindow int                   `json:"rank_window" validate:"gte=0,lte=1000"`
	Descending bool                  `json:"descending"`
	Limit      int                   `json:"limit" default:"50" validate:"gte=0,lte=500"`
}

type MoversRequest struct {
	Universe string `query:"universe"`
	N        int    `query:"n" default:"5" validate:"gte=0,lte=100"`
}

type RegimeRequest struct {
	Symbol string `query:"symbol"`
	Class  string `query:"class" validate:"omitempty,oneof=equity rate fx crypto"`
	Venue  string `query:"venue"`
	Source string `query:"source"`
}

type StatusRequest struct {
	Runs bool `query:"runs"`
}

// RefreshRequest is the POST body for a manual scope refresh. Symbols XOR
// MacroIDs depending on the source kind.
type RefreshRequest struct {
	Source   string   `json:"source" validate:"required"`
	Class    string   `json:"class" validate:"omitempty,oneof=equity rate fx crypto"`
	Venue    string   `json:"venue"`
	Symbols  []string `json:"symbols" validate:"max=100"`
	MacroIDs []string `json:"macro_ids" validate:"max=100"`
	From     string   `json:"from"`
	To       string   `json:"to"`
}

func (r SeriesRequest) seriesKey() models.SeriesKey {
	return models.SeriesKey{
		Instrument: models.NewInstrumentKey(r.Symbol, models.AssetClass(r.Class), r.Venue),
		Source:     models.Source(r.Source),
	}
}

func (r MetricRequest) seriesKey() models.SeriesKey {
	return models.SeriesKey{
		Instrument: models.NewInstrumentKey(r.Symbol, models.AssetClass(r.Class), r.Venue),
		Source:     models.Source(r.Source),
	}
}
