package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"BloomPull/internal/domain/models"
	"BloomPull/internal/ratelimit"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	"BloomPull/pkg/logger"
)

// Fetcher is the one capability every source adapter implements. Adapters are
// stateless between calls and never touch canonical entities; they translate
// one provider's payloads into intermediate records and report how much of
// the requested window they actually covered.
type Fetcher interface {
	Source() models.Source
	Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error)
}

// Deps bundles the transport infrastructure shared by all adapters. The HTTP
// client is one instance; rate limits are enforced per source key so one
// provider's budget never throttles another.
type Deps struct {
	HTTP    *xhttp.Client
	Limiter *ratelimit.Limiter
	Logger  *logger.Logger
}

// Get acquires a rate-limit token for src, applies the per-request timeout,
// sends the request, and tags any failure with its kind.
func (d Deps) Get(ctx context.Context, src models.Source, cfg config.SourceConfig, opts *xhttp.RequestOptions, dest interface{}) error {
	capacity := float64(cfg.RateBurst)
	if capacity < 1 {
		capacity = 1
	}
	rate := cfg.RatePerSec
	if rate <= 0 {
		rate = 1
	}
	if err := d.Limiter.Wait(ctx, string(src), capacity, rate); err != nil {
		return models.NewNetworkError(src, err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.HTTP.SendAndParse(rctx, opts, dest); err != nil {
		return Classify(src, err)
	}
	return nil
}

// Classify maps a transport or decode failure to its tagged kind so the
// orchestrator can pick the right retry policy.
func Classify(src models.Source, err error) error {
	var se *models.SourceError
	if errors.As(err, &se) {
		return err // already tagged
	}

	var status *xhttp.StatusError
	if errors.As(err, &status) {
		if status.StatusCode == 429 {
			return models.NewRateLimitError(src, err)
		}
		return models.NewNetworkError(src, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return models.NewMalformedError(src, err)
	}

	// timeouts, refused connections, DNS failures
	return models.NewNetworkError(src, err)
}

// FinishBatch fills coverage bookkeeping on a fetched batch. Covered defaults
// to the observed record range; Complete means the provider returned the
// whole requested window.
func FinishBatch(b *models.IntermediateBatch) *models.IntermediateBatch {
	if b.Covered.IsZero() {
		b.Covered = models.ObservedRange(b.Records)
	}
	if !b.Requested.IsZero() && !b.Covered.IsZero() {
		b.Complete = !b.Covered.To.Before(b.Requested.To) && !b.Covered.From.After(b.Requested.From)
	} else {
		b.Complete = len(b.Records) > 0
	}
	return b
}
