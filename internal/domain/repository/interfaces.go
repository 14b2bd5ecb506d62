package repository

import (
	"context"
	"errors"

	"BlockTrader/internal/domain/models"
)

var (
	// ErrDataUnavailable marks a candle fetch that could not be served.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrOrderRejected marks a bracket the sink refused.
	ErrOrderRejected = errors.New("order rejected")
	// ErrLateTick marks a tick older than the open candle; it is dropped, not retried.
	ErrLateTick = errors.New("tick older than open candle")
)

// MarketDataSource returns validated, chronologically ordered candles.
// Implementations own retry and timeout policy.
type MarketDataSource interface {
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, count int) ([]models.Candle, error)
}

// OrderSink submits bracket orders to the execution layer.
type OrderSink interface {
	SubmitBracket(ctx context.Context, plan models.OrderPlan) (models.OrderSubmissionResult, error)
}

// ReportSink receives one DecisionReport per cycle.
type ReportSink interface {
	Report(ctx context.Context, r models.DecisionReport) error
}

// TradeJournal records applied execution events.
type TradeJournal interface {
	RecordTrade(ctx context.Context, t models.TradeRecord) error
}

// StateStore persists the trading state across restarts.
type StateStore interface {
	Load(ctx context.Context, symbol string) (*models.StateSnapshot, error)
	Save(ctx context.Context, symbol string, s models.StateSnapshot) error
}

// CandleWriter persists completed candles.
type CandleWriter interface {
	StoreCandles(ctx context.Context, symbol string, tf Timeframe, candles []models.Candle) error
}

// TickStream delivers live trade prints.
type TickStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordCycle(outcome string)
	RecordPatterns(tf string, n int)
	RecordScore(tf string, score float64)
	RecordRejection(reason string)
	RecordOrder(side string, accepted bool)
	RecordDailyPnL(symbol string, pnl float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
