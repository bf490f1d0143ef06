package usecase

import (
	"fmt"
	"time"

	"BloomPull/internal/domain/models"
	"BloomPull/internal/orchestrator"
	"BloomPull/pkg/util"
)

// Submitter is the slice of the orchestrator the refresh path needs.
type Submitter interface {
	Submit(scope models.Scope) (*orchestrator.Job, bool)
	Jobs() []orchestrator.View
}

// Refresh turns API refresh requests into orchestrator jobs. Duplicate
// requests for a scope already in flight return the existing job handle.
type Refresh struct {
	submitter    Submitter
	backfillDays int
}

func NewRefresh(submitter Submitter, backfillDays int) *Refresh {
	if backfillDays <= 0 {
		backfillDays = 365
	}
	return &Refresh{submitter: submitter, backfillDays: backfillDays}
}

// Request validates the scope, fills a default window, and submits. deduped
// is true when an in-flight job absorbed the request.
func (r *Refresh) Request(scope models.Scope) (orchestrator.View, bool, error) {
	if !scope.Source.Valid() {
		return orchestrator.View{}, false, fmt.Errorf("unknown source %q", scope.Source)
	}
	if len(scope.Symbols) == 0 && len(scope.MacroIDs) == 0 {
		return orchestrator.View{}, false, fmt.Errorf("scope names no symbols or series ids")
	}
	if len(scope.Symbols) > 0 && !scope.Class.Valid() {
		return orchestrator.View{}, false, fmt.Errorf("invalid asset class %q", scope.Class)
	}

	if scope.Range.IsZero() {
		to := util.TruncateDay(time.Now()).Add(24 * time.Hour)
		scope.Range = models.DateRange{From: to.AddDate(0, 0, -r.backfillDays), To: to}
	}
	if scope.Range.Days() <= 0 {
		return orchestrator.View{}, false, fmt.Errorf("empty date range")
	}

	job, isNew := r.submitter.Submit(scope)
	return job.View(), !isNew, nil
}

// InFlight lists currently running or queued jobs.
func (r *Refresh) InFlight() []orchestrator.View {
	return r.submitter.Jobs()
}
