package ecb

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

const defaultBaseURL = "https://data-api.ecb.europa.eu"

// aliases maps friendly series ids to SDMX (dataflow, series key) pairs.
// EUR is always the base currency in the EXR dataflow, so EURUSD is the USD
// per EUR daily reference rate.
var aliases = map[string]struct {
	flow string
	key  string
	zone models.MacroZone
}{
	"EURUSD": {flow: "EXR", key: "D.USD.EUR.SP00.A", zone: models.ZoneFX},
	"EURGBP": {flow: "EXR", key: "D.GBP.EUR.SP00.A", zone: models.ZoneFX},
	"EURJPY": {flow: "EXR", key: "D.JPY.EUR.SP00.A", zone: models.ZoneFX},
	"EURCHF": {flow: "EXR", key: "D.CHF.EUR.SP00.A", zone: models.ZoneFX},
	"DE10Y":  {flow: "IRS", key: "M.DE.L.L40.CI.0000.EUR.N.Z", zone: models.ZonePolicy},
}

// Client fetches EUR FX reference rates and euro-area series from the ECB
// SDMX-JSON data API.
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

func (c *Client) Source() models.Source { return models.SourceECB }

// sdmxResponse covers the slice of SDMX-JSON we need: one series of dated
// observations.
type sdmxResponse struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]*float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
	Structure struct {
		Dimensions struct {
			Observation []struct {
				ID     string `json:"id"`
				Values []struct {
					ID string `json:"id"`
				} `json:"values"`
			} `json:"observation"`
		} `json:"dimensions"`
	} `json:"structure"`
}

func (c *Client) Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error) {
	batch := &models.IntermediateBatch{Source: c.Source(), Requested: scope.Range}

	for _, id := range scope.MacroIDs {
		alias, ok := aliases[strings.ToUpper(id)]
		if !ok {
			return nil, models.NewMalformedError(c.Source(), fmt.Errorf("unknown series alias %q", id))
		}

		var resp sdmxResponse
		err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    fmt.Sprintf("%s/service/data/%s/%s", c.cfg.BaseURL, alias.flow, alias.key),
			Headers: map[string]string{
				"Accept": "application/vnd.sdmx.data+json;version=1.0.0-wd",
			},
			QueryParams: map[string][]string{
				"startPeriod": {util.FormatDay(scope.Range.From)},
				"endPeriod":   {util.FormatDay(scope.Range.To)},
				"detail":      {"dataonly"},
			},
		}, &resp)
		if err != nil {
			return nil, err
		}

		records, err := c.flatten(strings.ToUpper(id), alias.zone, &resp)
		if err != nil {
			return nil, err
		}
		batch.Records = append(batch.Records, records...)
	}

	return adapter.FinishBatch(batch), nil
}

func (c *Client) flatten(id string, zone models.MacroZone, resp *sdmxResponse) ([]models.IntermediateRecord, error) {
	if len(resp.DataSets) == 0 {
		return nil, models.NewMalformedError(c.Source(), fmt.Errorf("no datasets for %s", id))
	}

	// observation dimension 0 carries the time periods, indexed by position
	var periods []string
	for _, dim := range resp.Structure.Dimensions.Observation {
		if dim.ID == "TIME_PERIOD" {
			for _, v := range dim.Values {
				periods = append(periods, v.ID)
			}
		}
	}
	if len(periods) == 0 {
		return nil, models.NewMalformedError(c.Source(), fmt.Errorf("no time dimension for %s", id))
	}

	freq := models.FreqDaily
	if strings.HasPrefix(id, "DE10Y") {
		freq = models.FreqMonthly
	}

	var out []models.IntermediateRecord
	for _, series := range resp.DataSets[0].Series {
		for idxStr, vals := range series.Observations {
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 || idx >= len(periods) {
				return nil, models.NewMalformedError(c.Source(), fmt.Errorf("observation index %q out of range for %s", idxStr, id))
			}
			ts, ok := parsePeriod(periods[idx])
			if !ok {
				return nil, models.NewMalformedError(c.Source(), fmt.Errorf("bad period %q for %s", periods[idx], id))
			}
			rec := models.IntermediateRecord{
				Kind:      models.RecordMacro,
				Source:    c.Source(),
				MacroID:   id,
				MacroZone: zone,
				Frequency: freq,
				TS:        ts,
			}
			if len(vals) == 0 || vals[0] == nil {
				rec.Missing = true
			} else {
				rec.Value = *vals[0]
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// parsePeriod handles the two SDMX period shapes we see: daily 2024-10-10
// and monthly 2024-10 (mapped to the first of the month).
func parsePeriod(p string) (time.Time, bool) {
	if t, ok := util.ParseTime(p); ok {
		return t, true
	}
	if t, err := time.Parse("2006-01", p); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
