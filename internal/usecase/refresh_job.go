package usecase

import (
	"context"
	"fmt"

	"BloomPull/internal/domain/models"
	"BloomPull/pkg/logger"
	"BloomPull/pkg/queue"
	"BloomPull/pkg/util"
)

// RefreshJob consumes refresh requests from the Redis queue, so other
// processes (or an operator with redis-cli) can trigger ingestion without
// going through the HTTP surface.
type RefreshJob struct {
	refresh *Refresh
	msgType string
	l       *logger.Logger
}

func NewRefreshJob(refresh *Refresh, msgType string, l *logger.Logger) *RefreshJob {
	return &RefreshJob{refresh: refresh, msgType: msgType, l: l}
}

var _ queue.Job = (*RefreshJob)(nil)

func (j *RefreshJob) Name() string { return "scope_refresh" }
func (j *RefreshJob) Type() string { return j.msgType }

type refreshPayload struct {
	Source   string   `json:"source"`
	Class    string   `json:"class"`
	Venue    string   `json:"venue"`
	Symbols  []string `json:"symbols"`
	MacroIDs []string `json:"macro_ids"`
	From     string   `json:"from"`
	To       string   `json:"to"`
}

func (j *RefreshJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[refreshPayload](payload)
	if err != nil {
		return fmt.Errorf("refresh payload: %w", err)
	}

	scope := models.Scope{
		Source:   models.Source(req.Source),
		Class:    models.AssetClass(req.Class),
		Venue:    req.Venue,
		Symbols:  req.Symbols,
		MacroIDs: req.MacroIDs,
	}
	if from, ok := util.ParseTime(req.From); ok {
		scope.Range.From = from
	}
	if to, ok := util.ParseTime(req.To); ok {
		scope.Range.To = to
	}

	view, deduped, err := j.refresh.Request(scope)
	if err != nil {
		return err
	}
	j.l.Info("queued refresh accepted",
		logger.String("job_id", view.ID),
		logger.String("scope", view.ScopeKey),
		logger.Bool("deduped", deduped))
	return nil
}
