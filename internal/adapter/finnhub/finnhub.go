package finnhub

import (
	"context"
	"fmt"
	"time"

	"BloomPull/internal/adapter"
	"BloomPull/internal/domain/models"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	"BloomPull/pkg/util"
)

const defaultBaseURL = "https://finnhub.io/api/v1"

// Client fetches quote snapshots and company news from Finnhub. Quotes are
// normalized into a bar for the current day; they complement the EOD
// providers with an intraday last price.
type Client struct {
	deps adapter.Deps
	cfg  config.SourceConfig
}

func New(deps adapter.Deps, cfg config.SourceConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{deps: deps, cfg: cfg}
}

func (c *Client) Source() models.Source { return models.SourceFinnhub }

type quoteResponse struct {
	Current float64 `json:"c"`
	High    float64 `json:"h"`
	Low     float64 `json:"l"`
	Open    float64 `json:"o"`
	Prev    float64 `json:"pc"`
	TS      int64   `json:"t"`
}

type newsItem struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	Related  string `json:"related"`
	Category string `json:"category"`
}

func (c *Client) Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error) {
	batch := &models.IntermediateBatch{Source: c.Source(), Requested: scope.Range}

	for _, symbol := range scope.Symbols {
		quote, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if quote.TS == 0 || quote.Current == 0 {
			return nil, models.NewMalformedError(c.Source(), fmt.Errorf("empty quote for %s", symbol))
		}
		batch.Records = append(batch.Records, models.IntermediateRecord{
			Kind:   models.RecordQuote,
			Source: c.Source(),
			Symbol: symbol,
			Class:  models.AssetEquity,
			Venue:  scope.Venue,
			TS:     util.TruncateDay(time.Unix(quote.TS, 0)),
			Open:   quote.Open,
			High:   quote.High,
			Low:    quote.Low,
			Close:  quote.Current,
		})

		news, err := c.fetchNews(ctx, symbol, scope.Range)
		if err != nil {
			return nil, err
		}
		batch.Records = append(batch.Records, news...)
	}

	// snapshot fetches cover their whole requested window by definition
	batch.Covered = scope.Range
	return adapter.FinishBatch(batch), nil
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (*quoteResponse, error) {
	var quote quoteResponse
	err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.cfg.BaseURL + "/quote",
		QueryParams: map[string][]string{
			"symbol": {symbol},
			"token":  {c.cfg.APIKey},
		},
	}, &quote)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *Client) fetchNews(ctx context.Context, symbol string, r models.DateRange) ([]models.IntermediateRecord, error) {
	var items []newsItem
	err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.cfg.BaseURL + "/company-news",
		QueryParams: map[string][]string{
			"symbol": {symbol},
			"from":   {util.FormatDay(r.From)},
			"to":     {util.FormatDay(r.To)},
			"token":  {c.cfg.APIKey},
		},
	}, &items)
	if err != nil {
		return nil, err
	}

	out := make([]models.IntermediateRecord, 0, len(items))
	for _, it := range items {
		if it.URL == "" || it.Headline == "" {
			continue
		}
		var tags []string
		if it.Source != "" {
			tags = append(tags, it.Source)
		}
		if it.Category != "" {
			tags = append(tags, it.Category)
		}
		out = append(out, models.IntermediateRecord{
			Kind:     models.RecordNews,
			Source:   c.Source(),
			Symbol:   it.Related,
			Class:    models.AssetEquity,
			Venue:    c.cfg.Venue,
			TS:       time.Unix(it.Datetime, 0).UTC(),
			Headline: it.Headline,
			URL:      it.URL,
			Tags:     tags,
		})
	}
	return out, nil
}
