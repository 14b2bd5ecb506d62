package models

// Requests for the bot HTTP API.

type PatternsRequest struct {
	TF    string `query:"tf" json:"tf" default:"15m" validate:"oneof=1m 5m 15m 1h"`
	Count int    `query:"count" json:"count" default:"100" validate:"gte=3,lte=1000"`
}

type ExecutionRequest struct {
	Type        string  `json:"type" validate:"required,oneof=fill reject position_closed daily_reset"`
	OrderID     string  `json:"order_id"`
	Side        string  `json:"side" validate:"omitempty,oneof=BUY SELL"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	FillPrice   float64 `json:"fill_price" validate:"gte=0"`
	ExitPrice   float64 `json:"exit_price" validate:"gte=0"`
	RealizedPnL float64 `json:"realized_pnl"`
	Reason      string  `json:"reason"`
}
