package repository

import "fmt"

// SchemaStatements returns the idempotent DDL for the canonical tables.
// Upsert-by-key tables (bars, macro points, instruments) use
// ReplacingMergeTree so re-ingesting a timestamp overwrites instead of
// duplicating, and news items dedup the same way by id (which is what makes
// the FINAL reads correct); only the append-only run trail is plain
// MergeTree.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.instruments (
				symbol     String,
				class      LowCardinality(String),
				venue      LowCardinality(String),
				currency   LowCardinality(String),
				name       String,
				sector     String,
				active     UInt8,
				created_at DateTime,
				updated_at DateTime
			) ENGINE = ReplacingMergeTree(updated_at)
			ORDER BY (class, venue, symbol)`, database),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.ohlcv_bars (
				symbol    String,
				class     LowCardinality(String),
				venue     LowCardinality(String),
				source    LowCardinality(String),
				ts        DateTime,
				open      Float64,
				high      Float64,
				low       Float64,
				close     Float64,
				adj_close Float64,
				volume    Float64
			) ENGINE = ReplacingMergeTree()
			ORDER BY (class, venue, symbol, source, ts)`, database),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.macro_points (
				provider  LowCardinality(String),
				series_id String,
				frequency LowCardinality(String),
				zone      LowCardinality(String),
				ts        DateTime,
				value     Float64
			) ENGINE = ReplacingMergeTree()
			ORDER BY (provider, series_id, ts)`, database),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.news_items (
				id       String,
				ts       DateTime,
				source   LowCardinality(String),
				headline String,
				url      String,
				tone     Float64,
				tags     Array(String),
				related  Array(String)
			) ENGINE = ReplacingMergeTree()
			ORDER BY (id)`, database),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.ingestion_runs (
				id           String,
				source       LowCardinality(String),
				scope_key    String,
				started_at   DateTime64(3),
				finished_at  DateTime64(3),
				outcome      LowCardinality(String),
				error_detail String,
				rows_ingested Int64,
				coverage     Float64,
				latency_ms   Int64
			) ENGINE = MergeTree()
			ORDER BY (started_at)`, database),
	}
}
