package fred

import (
	"context"
	"fmt"
	"strings"

	"BloomPull/internal/adapter"
	"BloomPull/internal/domain/models"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	"BloomPull/pkg/util"
)

const defaultBaseURL = "https://api.stlouisfed.org"

// Client fetches US macro series from the FRED observations API.
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

func (c *Client) Source() models.Source { return models.SourceFRED }

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) Fetch(ctx context.Context, scope models.Scope) (*models.IntermediateBatch, error) {
	batch := &models.IntermediateBatch{Source: c.Source(), Requested: scope.Range}

	for _, seriesID := range scope.MacroIDs {
		var resp observationsResponse
		err := c.deps.Get(ctx, c.Source(), c.cfg, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    c.cfg.BaseURL + "/fred/series/observations",
			QueryParams: map[string][]string{
				"series_id":         {seriesID},
				"api_key":           {c.cfg.APIKey},
				"file_type":         {"json"},
				"observation_start": {util.FormatDay(scope.Range.From)},
				"observation_end":   {util.FormatDay(scope.Range.To)},
			},
		}, &resp)
		if err != nil {
			return nil, err
		}
		if resp.ErrorMessage != "" {
			return nil, models.NewMalformedError(c.Source(), fmt.Errorf("series %s: %s", seriesID, resp.ErrorMessage))
		}

		for _, obs := range resp.Observations {
			ts, ok := util.ParseTime(obs.Date)
			if !ok {
				return nil, models.NewMalformedError(c.Source(), fmt.Errorf("bad date %q in series %s", obs.Date, seriesID))
			}
			// "." marks a gap in the published series
			value, present := util.ParseFloat(obs.Value)
			batch.Records = append(batch.Records, models.IntermediateRecord{
				Kind:      models.RecordMacro,
				Source:    c.Source(),
				MacroID:   seriesID,
				MacroZone: ZoneFor(seriesID),
				Frequency: frequencyFor(seriesID),
				TS:        util.TruncateDay(ts),
				Value:     value,
				Missing:   !present,
			})
		}
	}

	return adapter.FinishBatch(batch), nil
}

// ZoneFor buckets well-known FRED series ids into dashboard zones.
func ZoneFor(seriesID string) models.MacroZone {
	switch {
	case strings.HasPrefix(seriesID, "CPI"), strings.HasPrefix(seriesID, "PCEPI"):
		return models.ZoneCPI
	case strings.HasPrefix(seriesID, "GDP"):
		return models.ZoneGDP
	case seriesID == "FEDFUNDS", strings.HasPrefix(seriesID, "DFF"), strings.HasPrefix(seriesID, "DGS"):
		return models.ZonePolicy
	case seriesID == "UNRATE", strings.HasPrefix(seriesID, "ICSA"):
		return models.ZoneUnemployment
	default:
		return models.ZonePolicy
	}
}

func frequencyFor(seriesID string) models.MacroFrequency {
	switch {
	case strings.HasPrefix(seriesID, "GDP"):
		return models.FreqQuarterly
	case strings.HasPrefix(seriesID, "DFF"), strings.HasPrefix(seriesID, "DGS"), strings.HasPrefix(seriesID, "ICSA"):
		return models.FreqDaily
	default:
		return models.FreqMonthly
	}
}
