package status

import (
	"sort"
	"sync"
	"time"

	"BloomPull/internal/domain/models"
)

// SourceHealth is the per-source view the admin surface reads: when the
// source last succeeded, how many cycles in a row it has failed, and how
// much of its expected scope the latest cycle covered.
type SourceHealth struct {
	Source              models.Source     `json:"source"`
	LastSuccess         time.Time         `json:"last_success"`
	LastOutcome         models.RunOutcome `json:"last_outcome"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	Coverage            float64           `json:"coverage"`
	AvgLatencyMS        int64             `json:"avg_latency_ms"`
	LastError           string            `json:"last_error,omitempty"`
	Runs                int               `json:"runs"`
}

// Registry is the process-wide health record. It starts empty, is updated by
// the orchestrator after every job outcome, and is read-only to everyone
// else. It holds no durable state of its own: the IngestionRun trail can
// rebuild it after a restart.
type Registry struct {
	mu sync.RWMutex
	m  map[models.Source]*SourceHealth
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[models.Source]*SourceHealth)}
}

// Record folds one finished run into the source's health.
func (r *Registry) Record(run models.IngestionRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(run)
}

func (r *Registry) record(run models.IngestionRun) {
	h, ok := r.m[run.Source]
	if !ok {
		h = &SourceHealth{Source: run.Source}
		r.m[run.Source] = h
	}

	h.Runs++
	h.LastOutcome = run.Outcome
	h.Coverage = run.Coverage
	// rolling mean over all observed runs
	h.AvgLatencyMS += (run.LatencyMS - h.AvgLatencyMS) / int64(h.Runs)

	switch run.Outcome {
	case models.RunSuccess:
		h.LastSuccess = run.FinishedAt
		h.ConsecutiveFailures = 0
		h.LastError = ""
	case models.RunPartial:
		// a partial cycle still proves the source is reachable
		h.LastSuccess = run.FinishedAt
		h.ConsecutiveFailures = 0
		h.LastError = run.ErrorDetail
	case models.RunFailed:
		h.ConsecutiveFailures++
		h.LastError = run.ErrorDetail
	}
}

// Snapshot returns a copy of every source's health, ordered by source name.
func (r *Registry) Snapshot() []SourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SourceHealth, 0, len(r.m))
	for _, h := range r.m {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Get returns one source's health, if any run has been recorded for it.
func (r *Registry) Get(source models.Source) (SourceHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.m[source]
	if !ok {
		return SourceHealth{}, false
	}
	return *h, true
}

// FromRuns rebuilds the registry from the audit trail, replaying runs in
// order. Existing state is discarded.
func (r *Registry) FromRuns(runs []models.IngestionRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.m = make(map[models.Source]*SourceHealth, len(r.m))
	for _, run := range runs {
		r.record(run)
	}
}
