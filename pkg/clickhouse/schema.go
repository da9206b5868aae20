package clickhouse

import "fmt"

// Table names used by the repository adapters.
const (
	BarsTable        = "fx_bars"
	PredictionsTable = "fx_predictions"
)

// Schema returns the DDL for the bar and prediction tables in database.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	symbol    LowCardinality(String),
	timeframe LowCardinality(String),
	ts        DateTime64(3, 'UTC'),
	open      Float64,
	high      Float64,
	low       Float64,
	close     Float64,
	volume    Nullable(Float64)
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, timeframe, ts)`, database, BarsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	id               UUID,
	symbol           LowCardinality(String),
	as_of            DateTime64(3, 'UTC'),
	horizon          UInt16,
	strategy         LowCardinality(String),
	predicted_change Float64,
	lower            Float64,
	upper            Float64,
	last_close       Float64,
	predicted_price  Float64,
	realized_vol     Float64,
	created_at       DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (symbol, as_of)`, database, PredictionsTable),
	}
}
