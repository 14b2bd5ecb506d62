package models

import "time"

// ExecutionEventType discriminates broker feedback events.
type ExecutionEventType string

const (
	EventFill           ExecutionEventType = "fill"
	EventReject         ExecutionEventType = "reject"
	EventPositionClosed ExecutionEventType = "position_closed"
	EventDailyReset     ExecutionEventType = "daily_reset"
)

// ExecutionEvent is fill, reject or close feedback from the execution layer.
type ExecutionEvent struct {
	Type        ExecutionEventType `json:"type" validate:"required,oneof=fill reject position_closed daily_reset"`
	OrderID     string             `json:"order_id"`
	Symbol      string             `json:"symbol"`
	Side        Side               `json:"side"`
	Quantity    int                `json:"quantity"`
	FillPrice   float64            `json:"fill_price"`
	ExitPrice   float64            `json:"exit_price"`
	RealizedPnL float64            `json:"realized_pnl"`
	Reason      string             `json:"reason"`
	Timestamp   time.Time          `json:"timestamp"`
}

// TradeRecord is the journal row written when an execution event is applied.
type TradeRecord struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Event       string    `json:"event"`
	Side        string    `json:"side"`
	Quantity    int       `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	FillPrice   float64   `json:"fill_price"`
	ExitPrice   float64   `json:"exit_price"`
	Slippage    float64   `json:"slippage"`
	RealizedPnL float64   `json:"realized_pnl"`
	RMultiple   float64   `json:"r_multiple"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}
