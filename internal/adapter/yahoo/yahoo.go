package yahoo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"BloomPull/internal/adapter"
	"BloomPull/internal/domain/models"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	"BloomPull/pkg/util"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches daily history from the Yahoo Finance chart API. It is the
// fallback price source: its series stays independent from Stooq's, never
// merged.
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

func (c *Client) Source() models.Source { return models.SourceYahoo }

// chartResponse is the subset of the v8 chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error) {
	batch := &models.IntermediateBatch{Source: c.Source(), Requested: scope.Range}

	for _, symbol := range scope.Symbols {
		var resp chartResponse
		err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    fmt.Sprintf("%s/v8/finance/chart/%s", c.cfg.BaseURL, symbol),
			QueryParams: map[string][]string{
				"period1":  {strconv.FormatInt(scope.Range.From.Unix(), 10)},
				"period2":  {strconv.FormatInt(scope.Range.To.Unix(), 10)},
				"interval": {"1d"},
				"events":   {"div,splits"},
			},
		}, &resp)
		if err != nil {
			return nil, err
		}

		records, err := flatten(c.Source(), symbol, scope.Venue, &resp)
		if err != nil {
			return nil, err
		}
		batch.Records = append(batch.Records, records...)
	}

	return adapter.FinishBatch(batch), nil
}

func flatten(src models.Source, symbol, venue string, resp *chartResponse) ([]models.IntermediateRecord, error) {
	if resp.Chart.Error != nil {
		return nil, models.NewMalformedError(src, fmt.Errorf("chart error for %s: %s", symbol, resp.Chart.Error.Code))
	}
	if len(resp.Chart.Result) == 0 {
		return nil, models.NewMalformedError(src, fmt.Errorf("empty chart result for %s", symbol))
	}
	res := resp.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, models.NewMalformedError(src, fmt.Errorf("missing quote block for %s", symbol))
	}
	quote := res.Indicators.Quote[0]
	if len(quote.Close) != len(res.Timestamp) {
		return nil, models.NewMalformedError(src, fmt.Errorf("column length mismatch for %s", symbol))
	}

	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	deref := func(col []*float64, i int) float64 {
		if i < len(col) && col[i] != nil {
			return *col[i]
		}
		return 0
	}

	out := make([]models.IntermediateRecord, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		cls := deref(quote.Close, i)
		if cls == 0 {
			continue // market holiday rows come back null
		}
		rec := models.IntermediateRecord{
			Kind:     models.RecordBar,
			Source:   src,
			Symbol:   symbol,
			Class:    models.AssetEquity,
			Venue:    venue,
			TS:       util.TruncateDay(time.Unix(ts, 0)),
			Open:     deref(quote.Open, i),
			High:     deref(quote.High, i),
			Low:      deref(quote.Low, i),
			Close:    cls,
			AdjClose: deref(adj, i),
			Volume:   deref(quote.Volume, i),
			Currency: res.Meta.Currency,
		}
		// GBX-quoted LSE listings arrive in pence
		if rec.Currency == "GBp" {
			rec.Currency = "GBP"
			rec.PriceScale = 100
		}
		out = append(out, rec)
	}
	return out, nil
}
