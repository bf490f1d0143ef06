package analytics

import (
	"context"
	"fmt"
	"sort"

	"BloomPull/internal/domain/models"
)

// Predicate is one boolean filter over an already-computed metric value.
type Predicate struct {
	Kind   models.MetricKind `json:"kind"`
	Window int               `json:"window"`
	Op     string            `json:"op"` // gt, gte, lt, lte
	Value  float64           `json:"value"`
}

func (p Predicate) eval(x float64) bool {
	switch p.Op {
	case "gt":
		return x > p.Value
	case "gte":
		return x >= p.Value
	case "lt":
		return x < p.Value
	case "lte":
		return x <= p.Value
	}
	return false
}

// ScreenerQuery filters the universe by predicates and ranks survivors by
// one metric.
type ScreenerQuery struct {
	Predicates []Predicate       `json:"predicates"`
	RankBy     models.MetricKind `json:"rank_by"`
	RankWindow int               `json:"rank_window"`
	Descending bool              `json:"descending"`
	Limit      int               `json:"limit"`
}

// ScreenerRow is one ranked survivor with the metric values the query read.
type ScreenerRow struct {
	Instrument models.InstrumentKey `json:"instrument"`
	Source     models.Source        `json:"source"`
	RankValue  float64              `json:"rank_value"`
	Values     map[string]float64   `json:"values"`
}

// RunScreener evaluates a query purely over cached DerivedMetric rows,
// bulk-fetched in one pass. It never re-derives raw analytics: an instrument
// whose required metric is absent from the cache simply does not pass.
func (e *Engine) RunScreener(ctx context.Context, q ScreenerQuery) ([]ScreenerRow, error) {
	if q.RankBy == "" {
		q.RankBy = models.MetricReturn
		q.RankWindow = 1
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	specs := make([]models.MetricSpec, 0, len(q.Predicates)+1)
	for _, p := range q.Predicates {
		specs = append(specs, models.MetricSpec{Kind: p.Kind, Window: p.Window})
	}
	specs = append(specs, models.MetricSpec{Kind: q.RankBy, Window: q.RankWindow})

	keys := make([]string, 0, len(e.universe.Members)*len(specs))
	for _, member := range e.universe.Members {
		for _, spec := range specs {
			keys = append(keys, e.memberKey(member, spec))
		}
	}
	cached, err := e.cache.MGetMetrics(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("screener metrics: %w", err)
	}

	var rows []ScreenerRow
	for _, member := range e.universe.Members {
		row := ScreenerRow{
			Instrument: member.Instrument,
			Source:     member.Source,
			Values:     make(map[string]float64, len(specs)),
		}
		pass := true
		for _, p := range q.Predicates {
			spec := models.MetricSpec{Kind: p.Kind, Window: p.Window}
			m, ok := cached[e.memberKey(member, spec)]
			if !ok || !p.eval(m.Value) {
				pass = false
				break
			}
			row.Values[spec.String()] = m.Value
		}
		if !pass {
			continue
		}

		rankSpec := models.MetricSpec{Kind: q.RankBy, Window: q.RankWindow}
		m, ok := cached[e.memberKey(member, rankSpec)]
		if !ok {
			continue
		}
		row.RankValue = m.Value
		row.Values[rankSpec.String()] = m.Value
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if q.Descending {
			return rows[i].RankValue > rows[j].RankValue
		}
		return rows[i].RankValue < rows[j].RankValue
	})
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// Movers is the top/bottom-N-by-1-day-return screener preset.
type Movers struct {
	Gainers []ScreenerRow `json:"gainers"`
	Losers  []ScreenerRow `json:"losers"`
}

func (e *Engine) TopMovers(ctx context.Context, n int) (*Movers, error) {
	if n <= 0 {
		n = 5
	}
	gainers, err := e.RunScreener(ctx, ScreenerQuery{
		RankBy: models.MetricReturn, RankWindow: 1, Descending: true, Limit: n,
	})
	if err != nil {
		return nil, err
	}
	losers, err := e.RunScreener(ctx, ScreenerQuery{
		RankBy: models.MetricReturn, RankWindow: 1, Descending: false, Limit: n,
	})
	if err != nil {
		return nil, err
	}
	return &Movers{Gainers: gainers, Losers: losers}, nil
}

// memberKey resolves the cache key for a member metric, honoring universe
// versioning on cross-sectional kinds.
func (e *Engine) memberKey(member models.SeriesKey, spec models.MetricSpec) string {
	version := 0
	if spec.Kind.CrossSectional() {
		version = e.universe.Version
	}
	return models.MetricCacheKey(member, spec, version)
}
