package clickhouse

import "fmt"

// Schema returns idempotent DDL for the candle, decision and trade tables.
func Schema(database string) []string {
	if database == "" {
		database = "blocktrader"
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
	symbol LowCardinality(String),
	tf LowCardinality(String),
	ts DateTime64(3, 'UTC'),
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64,
	inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY (symbol, tf, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decisions (
	id String,
	ts DateTime64(3, 'UTC'),
	symbol LowCardinality(String),
	patterns_detected UInt32,
	high_quality UInt32,
	best_score Float64,
	best_timeframe LowCardinality(String),
	dispatched UInt8,
	order_id String,
	side LowCardinality(String),
	quantity Int32,
	entry Float64,
	stop Float64,
	target Float64,
	rejection_reason LowCardinality(String),
	detail String,
	payload String
) ENGINE = MergeTree
ORDER BY (symbol, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.trades (
	order_id String,
	ts DateTime64(3, 'UTC'),
	symbol LowCardinality(String),
	event LowCardinality(String),
	side LowCardinality(String),
	quantity Int32,
	entry Float64,
	fill Float64,
	exit Float64,
	slippage Float64,
	pnl Float64,
	r_multiple Float64,
	reason String
) ENGINE = MergeTree
ORDER BY (symbol, ts)`, database),
	}
}
