package coingecko

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"BloomPull/internal/adapter"
	"BloomPull/internal/domain/models"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	"BloomPull/pkg/util"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// coinIDs maps ticker symbols to CoinGecko coin ids. Unknown symbols are
// passed through lowercased, which works for coins whose id equals the
// ticker.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
}

// Client fetches crypto market history from the CoinGecko public API.
type Client struct {
	deps adapter.Deps
	cfg  config.SourceConfig
}

func New(deps adapter.Deps, cfg config.SourceConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	return &Client{deps: deps, cfg: cfg}
}

func (c *Client) Source() models.Source { return models.SourceCoinGecko }

// marketChart is the /coins/{id}/market_chart payload: columns of
// [unix_ms, value] pairs.
type marketChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

func (c *Client) Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error) {
	batch := &models.IntermediateBatch{Source: c.Source(), Requested: scope.Range}

	for _, symbol := range scope.Symbols {
		coinID := CoinID(symbol)

		var chart marketChart
		err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    fmt.Sprintf("%s/coins/%s/market_chart/range", c.cfg.BaseURL, coinID),
			QueryParams: map[string][]string{
				"vs_currency": {c.cfg.VsCurrency},
				"from":        {strconv.FormatInt(scope.Range.From.Unix(), 10)},
				"to":          {strconv.FormatInt(scope.Range.To.Unix(), 10)},
			},
		}, &chart)
		if err != nil {
			return nil, err
		}

		records, err := c.flatten(symbol, scope.Venue, &chart)
		if err != nil {
			return nil, err
		}
		batch.Records = append(batch.Records, records...)
	}

	return adapter.FinishBatch(batch), nil
}

// flatten collapses the intraday price points into one daily bar per UTC day.
// CoinGecko trades around the clock, so a day's open is its first point and
// close its last.
func (c *Client) flatten(symbol, venue string, chart *marketChart) ([]models.IntermediateRecord, error) {
	if len(chart.Prices) == 0 {
		return nil, models.NewMalformedError(c.Source(), fmt.Errorf("empty price chart for %s", symbol))
	}

	volumeByDay := make(map[time.Time]float64, len(chart.TotalVolumes))
	for _, p := range chart.TotalVolumes {
		volumeByDay[dayOf(p[0])] = p[1]
	}

	var out []models.IntermediateRecord
	var cur *models.IntermediateRecord
	for _, p := range chart.Prices {
		day, price := dayOf(p[0]), p[1]
		if cur == nil || !cur.TS.Equal(day) {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &models.IntermediateRecord{
				Kind:     models.RecordBar,
				Source:   c.Source(),
				Symbol:   symbol,
				Class:    models.AssetCrypto,
				Venue:    venue,
				TS:       day,
				Open:     price,
				High:     price,
				Low:      price,
				Close:    price,
				Volume:   volumeByDay[day],
				Currency: strings.ToUpper(c.cfg.VsCurrency),
			}
			continue
		}
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Close = price
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

// CoinID resolves a ticker symbol to the CoinGecko coin id.
func CoinID(symbol string) string {
	if id, ok := coinIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

func dayOf(unixMS float64) time.Time {
	return util.TruncateDay(time.UnixMilli(int64(unixMS)))
}
