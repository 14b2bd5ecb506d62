package models

import "github.com/google/uuid"

// Side is an order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// PartialTarget is one scale-out leg of a position.
type PartialTarget struct {
	Level    int     `json:"level"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Ratio    float64 `json:"ratio"`
}

// OrderPlan is a validated bracket order. It is never mutated after validation.
type OrderPlan struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    int             `json:"quantity"`
	EntryPrice  float64         `json:"entry_price"`
	StopPrice   float64         `json:"stop_price"`
	TargetPrice float64         `json:"target_price"`
	StopTicks   int             `json:"stop_ticks"`
	RiskAmount  float64         `json:"risk_amount"`
	Score       float64         `json:"score"`
	Timeframe   string          `json:"timeframe,omitempty"`
	ScaleOut    []PartialTarget `json:"scale_out,omitempty"`
}

// OrderSubmissionResult is the sink's answer to a bracket submission.
type OrderSubmissionResult struct {
	OrderID  string `json:"order_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// NewID returns a random identifier for plans, reports and paper orders.
func NewID() string { return uuid.NewString() }
