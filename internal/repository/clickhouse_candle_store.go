package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	pkgch "BlockTrader/pkg/clickhouse"
	applogger "BlockTrader/pkg/logger"
)

// CHCandleStore reads and writes candles in ClickHouse. It serves as the
// MarketDataSource for source "clickhouse" and as the CandleWriter for
// candles built from the live stream.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), table: qualified(ch.Database(), "candles"), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func qualified(database, table string) string {
	if database == "" {
		database = "blocktrader"
	}
	return database + "." + table
}

// FetchCandles returns the latest count candles in ascending time order.
func (s *CHCandleStore) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND tf = ?
        ORDER BY ts DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), count)
	if err != nil {
		s.l.Error("clickhouse fetch_candles query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("%w: query candles: %v", domrepo.ErrDataUnavailable, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, count)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)

	s.l.Debug("clickhouse fetch_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func reverse(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}

// StoreCandles inserts candles in one batch. Re-inserting the same bucket
// replaces the earlier row.
func (s *CHCandleStore) StoreCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (symbol, tf, ts, open, high, low, close, volume)", s.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append candle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit candles: %w", err)
	}
	return nil
}

var (
	_ domrepo.MarketDataSource = (*CHCandleStore)(nil)
	_ domrepo.CandleWriter     = (*CHCandleStore)(nil)
)
