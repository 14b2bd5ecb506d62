package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/risk"
)

type fakeJournal struct {
	recs []models.TradeRecord
	err  error
}

func (j *fakeJournal) RecordTrade(_ context.Context, r models.TradeRecord) error {
	if j.err != nil {
		return j.err
	}
	j.recs = append(j.recs, r)
	return nil
}

func newExecHarness() (*ExecutionHandler, *risk.State, *PlanBook, *fakeJournal, *fakeStore) {
	state := risk.NewState(time.UTC, time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC))
	plans := NewPlanBook(0)
	plans.Put("ord-1", models.OrderPlan{ID: "p1", Side: models.Buy, EntryPrice: 2063, RiskAmount: 60})
	plans.Put("ord-2", models.OrderPlan{ID: "p2", Side: models.Sell, EntryPrice: 2040, RiskAmount: 60})
	journal := &fakeJournal{}
	store := &fakeStore{}
	h := NewExecutionHandler("executions", "MGC", state, plans, journal, store, nil, nil)
	return h, state, plans, journal, store
}

func TestApplyPositionClosed(t *testing.T) {
	h, state, _, journal, store := newExecHarness()
	ctx := context.Background()

	if err := h.Apply(ctx, models.ExecutionEvent{Type: models.EventPositionClosed, OrderID: "ord-1", RealizedPnL: -60}); err != nil {
		t.Fatalf("apply loss: %v", err)
	}
	if state.DailyPnL() != -60 || state.ConsecutiveLosses() != 1 {
		t.Fatalf("loss not recorded: pnl %v losses %d", state.DailyPnL(), state.ConsecutiveLosses())
	}
	rec := journal.recs[0]
	if rec.RMultiple != -1 || rec.Side != string(models.Buy) || rec.EntryPrice != 2063 || rec.Symbol != "MGC" {
		t.Fatalf("unexpected journal row %+v", rec)
	}
	if store.snap == nil || store.snap.DailyPnL != -60 {
		t.Fatalf("state not persisted")
	}

	if err := h.Apply(ctx, models.ExecutionEvent{Type: models.EventPositionClosed, OrderID: "ord-2", RealizedPnL: 90}); err != nil {
		t.Fatalf("apply win: %v", err)
	}
	if state.DailyPnL() != 30 || state.ConsecutiveLosses() != 0 {
		t.Fatalf("win should reset the streak: pnl %v losses %d", state.DailyPnL(), state.ConsecutiveLosses())
	}
	if journal.recs[1].RMultiple != 1.5 {
		t.Fatalf("unexpected r multiple %v", journal.recs[1].RMultiple)
	}
}

func TestApplyUnknownOrderHasNoRMultiple(t *testing.T) {
	h, state, _, journal, _ := newExecHarness()
	if err := h.Apply(context.Background(), models.ExecutionEvent{Type: models.EventPositionClosed, OrderID: "manual", RealizedPnL: -25}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.DailyPnL() != -25 || journal.recs[0].RMultiple != 0 {
		t.Fatalf("unexpected result: pnl %v row %+v", state.DailyPnL(), journal.recs[0])
	}
}

func TestApplyFillSlippage(t *testing.T) {
	h, _, _, journal, _ := newExecHarness()
	ctx := context.Background()
	if err := h.Apply(ctx, models.ExecutionEvent{Type: models.EventFill, OrderID: "ord-1", FillPrice: 2063.3}); err != nil {
		t.Fatalf("apply buy fill: %v", err)
	}
	if err := h.Apply(ctx, models.ExecutionEvent{Type: models.EventFill, OrderID: "ord-2", FillPrice: 2039.8}); err != nil {
		t.Fatalf("apply sell fill: %v", err)
	}
	if got := journal.recs[0].Slippage; math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("buy slippage %v", got)
	}
	if got := journal.recs[1].Slippage; math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("sell slippage %v", got)
	}
}

func TestApplyRejectsInvalidType(t *testing.T) {
	h, state, _, journal, _ := newExecHarness()
	if err := h.Apply(context.Background(), models.ExecutionEvent{Type: "partial", OrderID: "ord-1", RealizedPnL: -10}); err == nil {
		t.Fatalf("expected validation error")
	}
	if len(journal.recs) != 0 || state.DailyPnL() != 0 {
		t.Fatalf("invalid event must not change anything")
	}
}

func TestApplyDailyReset(t *testing.T) {
	h, state, _, _, store := newExecHarness()
	state.RecordClose(-200)
	if err := h.Apply(context.Background(), models.ExecutionEvent{Type: models.EventDailyReset}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.DailyPnL() != 0 || state.ConsecutiveLosses() != 1 {
		t.Fatalf("reset should clear pnl only: pnl %v losses %d", state.DailyPnL(), state.ConsecutiveLosses())
	}
	if store.snap == nil || store.snap.DailyPnL != 0 {
		t.Fatalf("reset not persisted")
	}
}

func TestHandleDecodesPayload(t *testing.T) {
	h, state, _, journal, _ := newExecHarness()
	msg := []byte(`{"type":"position_closed","order_id":"ord-2","realized_pnl":-30,"timestamp":"2024-06-03T19:00:00Z"}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if state.DailyPnL() != -30 || journal.recs[0].Side != string(models.Sell) || journal.recs[0].RMultiple != -0.5 {
		t.Fatalf("unexpected result %+v", journal.recs[0])
	}
	if err := h.Handle(context.Background(), []byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestApplyJournalFailure(t *testing.T) {
	h, _, _, journal, _ := newExecHarness()
	journal.err = errors.New("clickhouse down")
	if err := h.Apply(context.Background(), models.ExecutionEvent{Type: models.EventReject, OrderID: "ord-1", Reason: "margin"}); err != nil {
		t.Fatalf("journal failure should be logged, got %v", err)
	}
}

func TestHandleRedeliveryAppliesCloseOnce(t *testing.T) {
	h, state, _, journal, store := newExecHarness()
	journal.err = errors.New("clickhouse down")
	msg := []byte(`{"type":"position_closed","order_id":"ord-1","realized_pnl":-60}`)

	for i := 0; i < 4; i++ {
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if state.DailyPnL() != -60 || state.ConsecutiveLosses() != 1 {
		t.Fatalf("close applied more than once: pnl %v losses %d", state.DailyPnL(), state.ConsecutiveLosses())
	}
	if store.saves != 1 {
		t.Fatalf("state saved %d times, want 1", store.saves)
	}

	journal.err = nil
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("late redelivery: %v", err)
	}
	if len(journal.recs) != 0 || state.DailyPnL() != -60 {
		t.Fatalf("redelivery after recovery must be ignored: rows %d pnl %v", len(journal.recs), state.DailyPnL())
	}
}

func TestPlanBookMarkApplied(t *testing.T) {
	b := NewPlanBook(1)
	if !b.MarkApplied("ord-1", models.EventFill) || !b.MarkApplied("ord-1", models.EventPositionClosed) {
		t.Fatalf("distinct event types must both be new")
	}
	if b.MarkApplied("ord-1", models.EventPositionClosed) {
		t.Fatalf("repeat must be reported")
	}
	if !b.MarkApplied("", models.EventReject) || !b.MarkApplied("", models.EventReject) {
		t.Fatalf("events without an order id are never deduplicated")
	}
}

func fakePlan(id string) models.OrderPlan {
	return models.OrderPlan{ID: id, Side: models.Buy, EntryPrice: 2050, RiskAmount: 60}
}
