package models

import "time"

// Rejection reasons carried by DecisionReport.
const (
	ReasonNotRunning      = "not_running"
	ReasonDailyLossLimit  = "daily_loss_limit"
	ReasonConsecutiveLoss = "consecutive_losses"
	ReasonOutsideSession  = "outside_session"
	ReasonNewsBlackout    = "news_blackout"
	ReasonCooldown        = "cooldown"
	ReasonCircuitOpen     = "circuit_open"
	ReasonDataUnavailable = "data_unavailable"
	ReasonInvalidData     = "invalid_data"
	ReasonNoPatterns      = "no_patterns"
	ReasonBelowMinScore   = "below_min_score"
	ReasonLevelAbovePrice = "level_above_price"
	ReasonLevelBelowPrice = "level_below_price"
	ReasonInvalidOrder    = "invalid_order"
	ReasonDispatchFailed  = "dispatch_failed"
	ReasonOrderRejected   = "order_rejected"
	ReasonStoppedMidCycle = "stopped"
)

// DecisionReport summarizes one decision-loop cycle.
type DecisionReport struct {
	ID               string                 `json:"id"`
	Timestamp        time.Time              `json:"timestamp"`
	Symbol           string                 `json:"symbol"`
	PatternsDetected int                    `json:"patterns_detected"`
	HighQualityCount int                    `json:"high_quality_count"`
	BestCandidate    *ScoredPattern         `json:"best_candidate,omitempty"`
	ChosenPlan       *OrderPlan             `json:"chosen_plan,omitempty"`
	Submission       *OrderSubmissionResult `json:"submission,omitempty"`
	RejectionReason  string                 `json:"rejection_reason,omitempty"`
	Detail           string                 `json:"detail,omitempty"`
}

// Dispatched reports whether the cycle handed an accepted order to the sink.
func (r DecisionReport) Dispatched() bool {
	return r.ChosenPlan != nil && r.Submission != nil && r.Submission.Accepted
}

// StateSnapshot is a point-in-time copy of the trading state.
type StateSnapshot struct {
	Day               string    `json:"day"`
	DailyPnL          float64   `json:"daily_pnl"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	LastSignalTime    time.Time `json:"last_signal_time"`
	Running           bool      `json:"running"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	TotalTrades       int       `json:"total_trades"`
}

// BotStatus is the operator view served by the status endpoint.
type BotStatus struct {
	Symbol           string          `json:"symbol"`
	State            StateSnapshot   `json:"state"`
	CanTrade         bool            `json:"can_trade"`
	GateReason       string          `json:"gate_reason,omitempty"`
	Breaker          string          `json:"breaker"`
	LastReport       *DecisionReport `json:"last_report,omitempty"`
	PatternsToday    int             `json:"patterns_today"`
	HighQualityToday int             `json:"high_quality_today"`
	WinRate          float64         `json:"win_rate"`
	MarketContext    any             `json:"market_context,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
