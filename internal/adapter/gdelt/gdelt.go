package gdelt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"BloomPull/internal/adapter"
	"BloomPull/internal/domain/models"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
)

const defaultBaseURL = "https://api.gdeltproject.org"

// seendate format used by the DOC API artlist mode.
const seenDateLayout = "20060102T150405Z"

// Client fetches news headlines from the GDELT DOC API.
type Client struct {
	deps adapter.Deps
	cfg  config.SourceConfig
}

func New(deps adapter.Deps, cfg config.SourceConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Query == "" {
		cfg.Query = "markets OR economy"
	}
	return &Client{deps: deps, cfg: cfg}
}

func (c *Client) Source() models.Source { return models.SourceGDELT }

type artlistResponse struct {
	Articles []struct {
		URL           string  `json:"url"`
		Title         string  `json:"title"`
		SeenDate      string  `json:"seendate"`
		Domain        string  `json:"domain"`
		SourceCountry string  `json:"sourcecountry"`
		Tone          float64 `json:"tone"`
	} `json:"articles"`
}

func (c *Client) Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error) {
	query := c.cfg.Query
	if len(scope.Symbols) > 0 {
		query = strings.Join(scope.Symbols, " OR ")
	}

	var resp artlistResponse
	err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.cfg.BaseURL + "/api/v2/doc/doc",
		QueryParams: map[string][]string{
			"query":         {query},
			"mode":          {"artlist"},
			"format":        {"json"},
			"maxrecords":    {"250"},
			"startdatetime": {scope.Range.From.UTC().Format("20060102150405")},
			"enddatetime":   {scope.Range.To.UTC().Format("20060102150405")},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	batch := &models.IntermediateBatch{Source: c.Source(), Requested: scope.Range}
	seen := make(map[string]struct{}, len(resp.Articles))
	for _, art := range resp.Articles {
		if art.URL == "" || art.Title == "" {
			continue
		}
		ts, err := time.Parse(seenDateLayout, art.SeenDate)
		if err != nil {
			return nil, models.NewMalformedError(c.Source(), fmt.Errorf("bad seendate %q: %w", art.SeenDate, err))
		}
		// the API repeats syndicated articles; dedup by (url, ts)
		dedupKey := art.URL + "|" + art.SeenDate
		if _, dup := seen[dedupKey]; dup {
			continue
		}
		seen[dedupKey] = struct{}{}

		var tags []string
		if art.Domain != "" {
			tags = append(tags, art.Domain)
		}
		if art.SourceCountry != "" {
			tags = append(tags, art.SourceCountry)
		}
		batch.Records = append(batch.Records, models.IntermediateRecord{
			Kind:     models.RecordNews,
			Source:   c.Source(),
			TS:       ts.UTC(),
			Headline: art.Title,
			URL:      art.URL,
			Tone:     art.Tone,
			Tags:     tags,
		})
	}

	// a news query window is covered whenever the API answers, even with
	// zero matching articles
	batch.Covered = scope.Range
	return adapter.FinishBatch(batch), nil
}
