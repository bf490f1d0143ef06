package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"BloomPull/internal/domain/models"
	pkgch "BloomPull/pkg/clickhouse"
	applogger "BloomPull/pkg/logger"
)

// insert chunk size, tuned to keep single statements comfortably under the
// server's max_query_size
const chunkSize = 2000

// CHStore implements the canonical Store backed by ClickHouse. Upsert
// semantics come from the ReplacingMergeTree keys; reads use FINAL so a
// not-yet-merged duplicate never surfaces.
type CHStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHStore {
	return &CHStore{db: ch.DB(), database: database, l: l}
}

func (s *CHStore) table(name string) string { return s.database + "." + name }

func (s *CHStore) Init(ctx context.Context) error {
	for _, stmt := range SchemaStatements(s.database) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// --- instruments ---

func (s *CHStore) UpsertInstruments(ctx context.Context, ins []models.Instrument) error {
	if len(ins) == 0 {
		return nil
	}
	values := make([]string, 0, len(ins))
	args := make([]interface{}, 0, len(ins)*9)
	for _, in := range ins {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			in.Key.Symbol, string(in.Key.Class), in.Key.Venue,
			in.Currency, in.Name, in.Sector, boolToUInt8(in.Active),
			in.CreatedAt, in.UpdatedAt,
		)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (symbol, class, venue, currency, name, sector, active, created_at, updated_at) VALUES %s",
		s.table("instruments"), strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse upsert instruments", applogger.Int("count", len(ins)), applogger.Error(err))
		return fmt.Errorf("upsert instruments: %w", err)
	}
	return nil
}

func (s *CHStore) GetInstrument(ctx context.Context, key models.InstrumentKey) (*models.Instrument, error) {
	q := fmt.Sprintf(`
		SELECT symbol, class, venue, currency, name, sector, active, created_at, updated_at
		FROM %s FINAL
		WHERE symbol = ? AND class = ? AND venue = ?`, s.table("instruments"))
	row := s.db.QueryRowContext(ctx, q, key.Symbol, string(key.Class), key.Venue)

	var in models.Instrument
	var class string
	var active uint8
	err := row.Scan(&in.Key.Symbol, &class, &in.Key.Venue, &in.Currency, &in.Name, &in.Sector, &active, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	in.Key.Class = models.AssetClass(class)
	in.Active = active != 0
	return &in, nil
}

func (s *CHStore) ListInstruments(ctx context.Context, class models.AssetClass) ([]models.Instrument, error) {
	q := fmt.Sprintf(`
		SELECT symbol, class, venue, currency, name, sector, active, created_at, updated_at
		FROM %s FINAL`, s.table("instruments"))
	args := []interface{}{}
	if class != "" {
		q += " WHERE class = ?"
		args = append(args, string(class))
	}
	q += " ORDER BY class, venue, symbol"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var out []models.Instrument
	for rows.Next() {
		var in models.Instrument
		var cls string
		var active uint8
		if err := rows.Scan(&in.Key.Symbol, &cls, &in.Key.Venue, &in.Currency, &in.Name, &in.Sector, &active, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		in.Key.Class = models.AssetClass(cls)
		in.Active = active != 0
		out = append(out, in)
	}
	return out, rows.Err()
}

// --- bars ---

func (s *CHStore) WriteBars(ctx context.Context, bars []models.OHLCVBar) error {
	start := time.Now()
	for begin := 0; begin < len(bars); begin += chunkSize {
		end := begin + chunkSize
		if end > len(bars) {
			end = len(bars)
		}
		values := make([]string, 0, end-begin)
		args := make([]interface{}, 0, (end-begin)*11)
		for _, b := range bars[begin:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.Instrument.Symbol, string(b.Instrument.Class), b.Instrument.Venue,
				string(b.Source), b.TS, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume,
			)
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (symbol, class, venue, source, ts, open, high, low, close, adj_close, volume) VALUES %s",
			s.table("ohlcv_bars"), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse write bars", applogger.Int("count", len(bars)), applogger.Error(err))
			return fmt.Errorf("write bars: %w", err)
		}
	}
	if len(bars) > 0 {
		s.l.Debug("clickhouse write bars ok",
			applogger.Int("rows", len(bars)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return nil
}

func (s *CHStore) QueryBars(ctx context.Context, series models.SeriesKey, r models.DateRange, limit int) ([]models.OHLCVBar, error) {
	if limit <= 0 {
		limit = 10000
	}
	q := fmt.Sprintf(`
		SELECT ts, open, high, low, close, adj_close, volume
		FROM %s FINAL
		WHERE symbol = ? AND class = ? AND venue = ? AND source = ?`, s.table("ohlcv_bars"))
	args := []interface{}{
		series.Instrument.Symbol, string(series.Instrument.Class),
		series.Instrument.Venue, string(series.Source),
	}
	if !r.IsZero() {
		q += " AND ts >= ? AND ts < ?"
		args = append(args, r.From, r.To)
	}
	q += " ORDER BY ts ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse query bars", applogger.String("series", series.String()), applogger.Error(err))
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.OHLCVBar, 0, 256)
	for rows.Next() {
		b := models.OHLCVBar{Instrument: series.Instrument, Source: series.Source}
		if err := rows.Scan(&b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *CHStore) LastBarTS(ctx context.Context, series models.SeriesKey) (time.Time, error) {
	q := fmt.Sprintf(`
		SELECT max(ts) FROM %s
		WHERE symbol = ? AND class = ? AND venue = ? AND source = ?`, s.table("ohlcv_bars"))
	var ts time.Time
	err := s.db.QueryRowContext(ctx, q,
		series.Instrument.Symbol, string(series.Instrument.Class),
		series.Instrument.Venue, string(series.Source)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last bar ts: %w", err)
	}
	// max() over an empty set yields the epoch zero
	if ts.Unix() <= 0 {
		return time.Time{}, nil
	}
	return ts, nil
}

// --- series reader for analytics ---

func (s *CHStore) LatestBars(ctx context.Context, series models.SeriesKey, n int) ([]models.OHLCVBar, error) {
	q := fmt.Sprintf(`
		SELECT ts, open, high, low, close, adj_close, volume
		FROM %s FINAL
		WHERE symbol = ? AND class = ? AND venue = ? AND source = ?
		ORDER BY ts DESC LIMIT ?`, s.table("ohlcv_bars"))
	rows, err := s.db.QueryContext(ctx, q,
		series.Instrument.Symbol, string(series.Instrument.Class),
		series.Instrument.Venue, string(series.Source), n)
	if err != nil {
		return nil, fmt.Errorf("latest bars: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.OHLCVBar, 0, n)
	for rows.Next() {
		b := models.OHLCVBar{Instrument: series.Instrument, Source: series.Source}
		if err := rows.Scan(&b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		tmp = append(tmp, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to ascending
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHStore) BarsInRange(ctx context.Context, series models.SeriesKey, r models.DateRange) ([]models.OHLCVBar, error) {
	return s.QueryBars(ctx, series, r, 0)
}

// --- macro ---

func (s *CHStore) WriteMacro(ctx context.Context, series models.MacroSeries) error {
	if len(series.Points) == 0 {
		return nil
	}
	values := make([]string, 0, len(series.Points))
	args := make([]interface{}, 0, len(series.Points)*6)
	for _, p := range series.Points {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args,
			string(series.Provider), series.SeriesID, string(series.Frequency),
			string(series.Zone), p.TS, p.Value,
		)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (provider, series_id, frequency, zone, ts, value) VALUES %s",
		s.table("macro_points"), strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse write macro", applogger.String("series", series.SeriesID), applogger.Error(err))
		return fmt.Errorf("write macro: %w", err)
	}
	return nil
}

func (s *CHStore) QueryMacro(ctx context.Context, provider models.Source, seriesID string, r models.DateRange) (*models.MacroSeries, error) {
	q := fmt.Sprintf(`
		SELECT frequency, zone, ts, value
		FROM %s FINAL
		WHERE provider = ? AND series_id = ?`, s.table("macro_points"))
	args := []interface{}{string(provider), seriesID}
	if !r.IsZero() {
		q += " AND ts >= ? AND ts < ?"
		args = append(args, r.From, r.To)
	}
	q += " ORDER BY ts ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query macro: %w", err)
	}
	defer rows.Close()

	series := &models.MacroSeries{SeriesID: seriesID, Provider: provider}
	for rows.Next() {
		var freq, zone string
		var p models.MacroPoint
		if err := rows.Scan(&freq, &zone, &p.TS, &p.Value); err != nil {
			return nil, fmt.Errorf("scan macro point: %w", err)
		}
		series.Frequency = models.MacroFrequency(freq)
		series.Zone = models.MacroZone(zone)
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(series.Points) == 0 {
		return nil, models.ErrNotFound
	}
	return series, nil
}

// --- news ---

func (s *CHStore) WriteNews(ctx context.Context, items []models.NewsItem) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)*8)
	for _, it := range items {
		related := make([]string, 0, len(it.Related))
		for _, k := range it.Related {
			related = append(related, k.String())
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			it.ID, it.TS, string(it.Source), it.Headline, it.URL, it.Tone,
			it.Tags, related,
		)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (id, ts, source, headline, url, tone, tags, related) VALUES %s",
		s.table("news_items"), strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse write news", applogger.Int("count", len(items)), applogger.Error(err))
		return fmt.Errorf("write news: %w", err)
	}
	return nil
}

func (s *CHStore) QueryNews(ctx context.Context, r models.DateRange, limit int) ([]models.NewsItem, error) {
	if limit <= 0 {
		limit = 200
	}
	q := fmt.Sprintf(`
		SELECT id, ts, source, headline, url, tone, tags, related
		FROM %s FINAL`, s.table("news_items"))
	args := []interface{}{}
	if !r.IsZero() {
		q += " WHERE ts >= ? AND ts < ?"
		args = append(args, r.From, r.To)
	}
	q += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer rows.Close()

	var out []models.NewsItem
	for rows.Next() {
		var it models.NewsItem
		var src string
		var related []string
		if err := rows.Scan(&it.ID, &it.TS, &src, &it.Headline, &it.URL, &it.Tone, &it.Tags, &related); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		it.Source = models.Source(src)
		for _, rk := range related {
			if key, ok := parseInstrumentKey(rk); ok {
				it.Related = append(it.Related, key)
			}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- ingestion runs ---

func (s *CHStore) RecordRun(ctx context.Context, run models.IngestionRun) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (id, source, scope_key, started_at, finished_at, outcome, error_detail, rows_ingested, coverage, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table("ingestion_runs"))
	_, err := s.db.ExecContext(ctx, q,
		run.ID, string(run.Source), run.ScopeKey, run.StartedAt, run.FinishedAt,
		string(run.Outcome), run.ErrorDetail, int64(run.RowsIngested), run.Coverage, run.LatencyMS,
	)
	if err != nil {
		s.l.Error("clickhouse record run", applogger.String("source", string(run.Source)), applogger.Error(err))
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *CHStore) QueryRuns(ctx context.Context, since time.Time, limit int) ([]models.IngestionRun, error) {
	if limit <= 0 {
		limit = 1000
	}
	q := fmt.Sprintf(`
		SELECT id, source, scope_key, started_at, finished_at, outcome, error_detail, rows_ingested, coverage, latency_ms
		FROM %s
		WHERE started_at >= ?
		ORDER BY started_at ASC LIMIT ?`, s.table("ingestion_runs"))
	rows, err := s.db.QueryContext(ctx, q, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.IngestionRun
	for rows.Next() {
		var run models.IngestionRun
		var src, outcome string
		var rowsIngested int64
		if err := rows.Scan(&run.ID, &src, &run.ScopeKey, &run.StartedAt, &run.FinishedAt,
			&outcome, &run.ErrorDetail, &rowsIngested, &run.Coverage, &run.LatencyMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Source = models.Source(src)
		run.Outcome = models.RunOutcome(outcome)
		run.RowsIngested = int(rowsIngested)
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *CHStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHStore) Close() error {
	return nil // connection pool owned by pkg/clickhouse
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// parseInstrumentKey inverts InstrumentKey.String: "class:venue:SYMBOL".
func parseInstrumentKey(s string) (models.InstrumentKey, bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return models.InstrumentKey{}, false
	}
	return models.InstrumentKey{
		Class:  models.AssetClass(parts[0]),
		Venue:  parts[1],
		Symbol: parts[2],
	}, true
}
