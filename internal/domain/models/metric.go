package models

import (
	"fmt"
	"time"
)

type MetricKind string

const (
	MetricReturn     MetricKind = "return"
	MetricVolatility MetricKind = "volatility"
	MetricDrawdown   MetricKind = "drawdown"
	MetricMomentum   MetricKind = "momentum_score"
	MetricLowVol     MetricKind = "lowvol_score"
	MetricVaR        MetricKind = "var"
	MetricCorr       MetricKind = "corr"
)

func (k MetricKind) Valid() bool {
	switch k {
	case MetricReturn, MetricVolatility, MetricDrawdown, MetricMomentum, MetricLowVol, MetricVaR, MetricCorr:
		return true
	}
	return false
}

// CrossSectional reports whether the kind is ranked against a peer universe
// rather than derived from the instrument's own series alone.
func (k MetricKind) CrossSectional() bool {
	return k == MetricMomentum || k == MetricLowVol
}

// MetricSpec names one metric to maintain for a series: a kind plus its
// window in observations. Window is ignored for kinds without one.
type MetricSpec struct {
	Kind   MetricKind
	Window int
}

func (s MetricSpec) String() string {
	return fmt.Sprintf("%s/%d", s.Kind, s.Window)
}

// DerivedMetric is always a pure function of the canonical series it derives
// from. It lives only in the cache and is reproducible by recomputation; it
// is never a source of truth.
type DerivedMetric struct {
	Series          SeriesKey
	Kind            MetricKind
	Window          int
	AsOf            time.Time
	Value           float64
	UniverseVersion int // zero for non cross-sectional kinds
	ComputedAt      time.Time
}

// MetricCacheKey is the canonical cache key for a metric value. Universe
// version participates for cross-sectional kinds so a universe change never
// silently rewrites scores already stored for audit.
func MetricCacheKey(series SeriesKey, spec MetricSpec, universeVersion int) string {
	if spec.Kind.CrossSectional() {
		return fmt.Sprintf("metric:%s:%s:%d:u%d", series, spec.Kind, spec.Window, universeVersion)
	}
	return fmt.Sprintf("metric:%s:%s:%d", series, spec.Kind, spec.Window)
}

// Universe is a versioned peer membership list for cross-sectional scores.
// Membership changes bump Version; historical scores keep the version they
// were computed under.
type Universe struct {
	Name    string
	Version int
	Members []SeriesKey
}

func (u Universe) Contains(key SeriesKey) bool {
	for _, m := range u.Members {
		if m == key {
			return true
		}
	}
	return false
}
