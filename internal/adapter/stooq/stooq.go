package stooq

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"BloomPull/internal/adapter"
	"BloomPull/internal/domain/models"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	"BloomPull/pkg/util"
)

const defaultBaseURL = "https://stooq.com"

// Client fetches daily equity history from the Stooq CSV endpoint.
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

func (c *Client) Source() models.Source { return models.SourceStooq }

func (c *Client) Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error) {
	batch := &models.IntermediateBatch{Source: c.Source(), Requested: scope.Range}

	for _, symbol := range scope.Symbols {
		body, err := c.fetchCSV(ctx, symbol, scope.Range)
		if err != nil {
			return nil, err
		}
		records, err := parseDaily(c.Source(), symbol, scope.Venue, body)
		if err != nil {
			return nil, err
		}
		batch.Records = append(batch.Records, records...)
	}

	return adapter.FinishBatch(batch), nil
}

func (c *Client) fetchCSV(ctx context.Context, symbol string, r models.DateRange) ([]byte, error) {
	// Stooq quotes US equities as "aapl.us"; the venue suffix is implied by
	// the configured venue.
	sym := strings.ToLower(symbol)
	if c.cfg.Venue != "" && !strings.Contains(sym, ".") {
		sym = sym + "." + c.cfg.Venue
	}

	params := map[string][]string{
		"s": {sym},
		"i": {"d"},
	}
	if !r.IsZero() {
		params["d1"] = []string{r.From.UTC().Format("20060102")}
		params["d2"] = []string{r.To.Add(-24 * time.Hour).UTC().Format("20060102")}
	}

	var body []byte
	err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + "/q/d/l/",
		QueryParams: params,
	}, &body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseDaily decodes the Stooq CSV layout: Date,Open,High,Low,Close,Volume.
func parseDaily(src models.Source, symbol, venue string, body []byte) ([]models.IntermediateRecord, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	var out []models.IntermediateRecord
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if !strings.HasPrefix(line, "Date,") {
				return nil, models.NewMalformedError(src, fmt.Errorf("unexpected header %q for %s", line, symbol))
			}
			continue
		}
		cells := util.SplitCSVLine(line)
		if len(cells) < 6 {
			return nil, models.NewMalformedError(src, fmt.Errorf("short row %q for %s", line, symbol))
		}
		ts, ok := util.ParseTime(cells[0])
		if !ok {
			return nil, models.NewMalformedError(src, fmt.Errorf("bad date %q for %s", cells[0], symbol))
		}
		open, okO := util.ParseFloat(cells[1])
		high, okH := util.ParseFloat(cells[2])
		low, okL := util.ParseFloat(cells[3])
		cls, okC := util.ParseFloat(cells[4])
		vol, _ := util.ParseFloat(cells[5])
		if !okO || !okH || !okL || !okC {
			return nil, models.NewMalformedError(src, fmt.Errorf("bad numeric row %q for %s", line, symbol))
		}
		out = append(out, models.IntermediateRecord{
			Kind:   models.RecordBar,
			Source: src,
			Symbol: symbol,
			Class:  models.AssetEquity,
			Venue:  venue,
			TS:     util.TruncateDay(ts),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cls,
			Volume: vol,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, models.NewMalformedError(src, err)
	}
	return out, nil
}
