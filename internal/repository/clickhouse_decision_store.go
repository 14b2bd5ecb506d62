package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	pkgch "BlockTrader/pkg/clickhouse"
)

// CHDecisionStore journals decision reports and trade events.
type CHDecisionStore struct {
	db        *sql.DB
	decisions string
	trades    string
}

func NewCHDecisionStore(ch *pkgch.Client) *CHDecisionStore {
	return &CHDecisionStore{
		db:        ch.DB(),
		decisions: qualified(ch.Database(), "decisions"),
		trades:    qualified(ch.Database(), "trades"),
	}
}

type decisionRow struct {
	ID               string
	Symbol           string
	PatternsDetected uint32
	HighQuality      uint32
	BestScore        float64
	BestTimeframe    string
	Dispatched       uint8
	OrderID          string
	Side             string
	Quantity         int32
	Entry            float64
	Stop             float64
	Target           float64
	Reason           string
	Detail           string
	Payload          string
}

func toDecisionRow(r models.DecisionReport) (decisionRow, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return decisionRow{}, fmt.Errorf("marshal report: %w", err)
	}
	row := decisionRow{
		ID:               r.ID,
		Symbol:           r.Symbol,
		PatternsDetected: uint32(r.PatternsDetected),
		HighQuality:      uint32(r.HighQualityCount),
		Reason:           r.RejectionReason,
		Detail:           r.Detail,
		Payload:          string(payload),
	}
	if r.BestCandidate != nil {
		row.BestScore = r.BestCandidate.Score
		row.BestTimeframe = r.BestCandidate.Timeframe
	}
	if p := r.ChosenPlan; p != nil {
		row.Side = string(p.Side)
		row.Quantity = int32(p.Quantity)
		row.Entry, row.Stop, row.Target = p.EntryPrice, p.StopPrice, p.TargetPrice
	}
	if r.Submission != nil {
		row.OrderID = r.Submission.OrderID
	}
	if r.Dispatched() {
		row.Dispatched = 1
	}
	return row, nil
}

// Report inserts one decision row.
func (s *CHDecisionStore) Report(ctx context.Context, r models.DecisionReport) error {
	row, err := toDecisionRow(r)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, ts, symbol, patterns_detected, high_quality, best_score, best_timeframe,
        dispatched, order_id, side, quantity, entry, stop, target, rejection_reason, detail, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.decisions)
	_, err = s.db.ExecContext(ctx, q,
		row.ID, r.Timestamp.UTC(), row.Symbol, row.PatternsDetected, row.HighQuality, row.BestScore, row.BestTimeframe,
		row.Dispatched, row.OrderID, row.Side, row.Quantity, row.Entry, row.Stop, row.Target, row.Reason, row.Detail, row.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// RecordTrade inserts one execution journal row.
func (s *CHDecisionStore) RecordTrade(ctx context.Context, t models.TradeRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (order_id, ts, symbol, event, side, quantity, entry, fill, exit, slippage, pnl, r_multiple, reason)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.trades)
	_, err := s.db.ExecContext(ctx, q,
		t.OrderID, t.Timestamp.UTC(), t.Symbol, t.Event, t.Side, int32(t.Quantity),
		t.EntryPrice, t.FillPrice, t.ExitPrice, t.Slippage, t.RealizedPnL, t.RMultiple, t.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

var (
	_ domrepo.ReportSink   = (*CHDecisionStore)(nil)
	_ domrepo.TradeJournal = (*CHDecisionStore)(nil)
)
