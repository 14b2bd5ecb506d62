package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/internal/services/market"
	"BlockTrader/internal/services/orderblock"
	"BlockTrader/internal/services/risk"
	pkgmetrics "BlockTrader/pkg/metrics"
	"BlockTrader/pkg/util"
)

var t0 = time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC)

func flatCandle(i int, base float64) models.Candle {
	open, close := base, base+2
	if i%2 == 1 {
		open, close = base+2, base
	}
	return models.Candle{
		Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute),
		Open:      open, High: base + 3, Low: base - 1, Close: close, Volume: 100,
	}
}

func flatCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = flatCandle(i, 2050)
	}
	return out
}

// bullishBlock has one order block at idx scoring 8 on a single timeframe.
func bullishBlock(n, idx int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		base := 2050.0
		if i > idx+1 {
			base = 2063
		}
		out[i] = flatCandle(i, base)
	}
	ts := func(i int) time.Time { return t0.Add(time.Duration(i) * 15 * time.Minute) }
	out[idx] = models.Candle{Timestamp: ts(idx), Open: 2060, High: 2061, Low: 2049, Close: 2050, Volume: 300}
	out[idx+1] = models.Candle{Timestamp: ts(idx + 1), Open: 2051, High: 2066, Low: 2050, Close: 2065, Volume: 150}
	return out
}

// brokenBlock is bullishBlock with price falling back through the block to
// close at 2040. The block loses its clean-level bonus and scores 6.
func brokenBlock(n, idx int) []models.Candle {
	out := bullishBlock(n, idx)
	for i := idx + 2; i < n; i++ {
		out[i] = flatCandle(i, 2040)
	}
	return out
}

// stopOnPrice stops the engine when the cycle records the reference price,
// which happens after the post-fetch running check and before planning.
type stopOnPrice struct {
	pkgmetrics.Nop
	stop func()
}

func (m stopOnPrice) RecordLastPrice(string, float64) { m.stop() }

type fakeSource struct {
	mu      sync.Mutex
	candles []models.Candle
	err     error
	calls   int
	onFetch func()
}

func (s *fakeSource) FetchCandles(_ context.Context, _ string, _ domrepo.Timeframe, _ int) ([]models.Candle, error) {
	s.mu.Lock()
	s.calls++
	hook := s.onFetch
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.Candle(nil), s.candles...), nil
}

type fakeSink struct {
	res   models.OrderSubmissionResult
	err   error
	plans []models.OrderPlan
}

func (s *fakeSink) SubmitBracket(_ context.Context, p models.OrderPlan) (models.OrderSubmissionResult, error) {
	s.plans = append(s.plans, p)
	return s.res, s.err
}

type fakeReports struct{ got []models.DecisionReport }

func (r *fakeReports) Report(_ context.Context, rep models.DecisionReport) error {
	r.got = append(r.got, rep)
	return nil
}

type fakeStore struct {
	snap  *models.StateSnapshot
	saves int
}

func (s *fakeStore) Load(context.Context, string) (*models.StateSnapshot, error) { return s.snap, nil }

func (s *fakeStore) Save(_ context.Context, _ string, snap models.StateSnapshot) error {
	s.saves++
	s.snap = &snap
	return nil
}

type harness struct {
	engine  *Engine
	clock   *util.FixedClock
	state   *risk.State
	source  *fakeSource
	sink    *fakeSink
	reports *fakeReports
	store   *fakeStore
}

func newHarness(t *testing.T, candles []models.Candle, minScore float64) *harness {
	t.Helper()
	reg, err := market.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	spec, err := reg.Lookup("MGC")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	gp, err := risk.NewGateParams(800, 2, "16:45", "22:30", "22:15", "UTC")
	if err != nil {
		t.Fatalf("gate params: %v", err)
	}
	clock := &util.FixedClock{T: time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC)}
	state := risk.NewState(time.UTC, clock.Now())
	h := &harness{
		clock:   clock,
		state:   state,
		source:  &fakeSource{candles: candles},
		sink:    &fakeSink{res: models.OrderSubmissionResult{OrderID: "ord-1", Accepted: true}},
		reports: &fakeReports{},
		store:   &fakeStore{},
	}
	h.engine = NewEngine(EngineParams{
		Symbol:     "MGC",
		Timeframes: []domrepo.Timeframe{domrepo.TF15m},
		Cooldown:   5 * time.Minute,
		MinScore:   minScore,
	}, EngineDeps{
		Source:    h.source,
		Sink:      h.sink,
		Reports:   h.reports,
		Store:     h.store,
		Validator: market.NewValidator(reg, 0, 0),
		Detector:  orderblock.NewDetector(orderblock.DefaultParams()),
		Scorer:    orderblock.NewScorer(orderblock.DefaultParams(), nil),
		Planner:   risk.NewPlanner(risk.PlannerParams{Contract: spec, TP1: 1}),
		Gate:      risk.NewGate(gp, state),
		State:     state,
		Breaker:   risk.NewCircuitBreaker(2, time.Minute),
		Clock:     clock,
	})
	h.engine.Start()
	return h
}

func TestCycleDispatchesQualifyingBlock(t *testing.T) {
	h := newHarness(t, bullishBlock(40, 30), 7)
	r := h.engine.RunCycle(context.Background())

	if !r.Dispatched() || r.RejectionReason != "" {
		t.Fatalf("expected dispatch, got reason %q detail %q", r.RejectionReason, r.Detail)
	}
	if r.PatternsDetected != 1 || r.HighQualityCount != 1 {
		t.Fatalf("unexpected counts %d/%d", r.PatternsDetected, r.HighQualityCount)
	}
	if r.BestCandidate == nil || r.BestCandidate.Score != 8 {
		t.Fatalf("unexpected best candidate %+v", r.BestCandidate)
	}
	p := r.ChosenPlan
	if p == nil || p.Side != models.Buy || p.EntryPrice != 2063 || p.StopPrice >= p.EntryPrice || p.TargetPrice <= p.EntryPrice {
		t.Fatalf("unexpected plan %+v", p)
	}
	if len(h.sink.plans) != 1 || h.sink.plans[0].ID != p.ID {
		t.Fatalf("sink should receive the chosen plan once")
	}
	if !h.state.LastSignal().Equal(h.clock.Now()) {
		t.Fatalf("last signal not marked")
	}
	if _, ok := h.engine.Plans.Get("ord-1"); !ok {
		t.Fatalf("plan not remembered under broker order id")
	}
	if h.store.saves == 0 {
		t.Fatalf("state not persisted after dispatch")
	}
	if len(h.reports.got) != 1 || h.reports.got[0].ID != r.ID {
		t.Fatalf("report not emitted")
	}

	st := h.engine.Status()
	if st.LastReport == nil || st.PatternsToday != 1 || st.HighQualityToday != 1 || !st.CanTrade {
		t.Fatalf("unexpected status %+v", st)
	}

	h.clock.Advance(time.Minute)
	r = h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonCooldown || h.source.calls != 1 {
		t.Fatalf("expected cooldown without fetching, got %q after %d fetches", r.RejectionReason, h.source.calls)
	}
}

func TestCycleGateClosedSkipsFetch(t *testing.T) {
	h := newHarness(t, bullishBlock(40, 30), 7)
	h.clock.T = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonOutsideSession {
		t.Fatalf("expected outside_session, got %q", r.RejectionReason)
	}
	if h.source.calls != 0 || len(h.sink.plans) != 0 {
		t.Fatalf("gate must short-circuit the cycle")
	}
	if r.ChosenPlan != nil || r.Submission != nil {
		t.Fatalf("rejected report must carry no plan")
	}
}

func TestCycleBelowMinScore(t *testing.T) {
	h := newHarness(t, bullishBlock(40, 30), 9)
	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonBelowMinScore {
		t.Fatalf("expected below_min_score, got %q", r.RejectionReason)
	}
	if r.BestCandidate == nil || r.BestCandidate.Score != 8 || r.HighQualityCount != 0 {
		t.Fatalf("best candidate should still be reported: %+v", r.BestCandidate)
	}
	if len(h.sink.plans) != 0 {
		t.Fatalf("nothing should be dispatched")
	}
}

func TestCycleNoPatterns(t *testing.T) {
	h := newHarness(t, flatCandles(40), 7)
	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonNoPatterns || r.PatternsDetected != 0 {
		t.Fatalf("expected no_patterns, got %q", r.RejectionReason)
	}
}

func TestCycleInvalidData(t *testing.T) {
	candles := bullishBlock(40, 30)
	candles[12].High = candles[12].Low - 1
	h := newHarness(t, candles, 7)
	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonInvalidData {
		t.Fatalf("expected invalid_data, got %q", r.RejectionReason)
	}
}

func TestCycleStopDuringFetch(t *testing.T) {
	h := newHarness(t, bullishBlock(40, 30), 7)
	h.source.onFetch = h.engine.Stop
	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonStoppedMidCycle {
		t.Fatalf("expected stopped, got %q", r.RejectionReason)
	}
	if len(h.sink.plans) != 0 {
		t.Fatalf("no order may be dispatched after stop")
	}
	r = h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonNotRunning {
		t.Fatalf("expected not_running, got %q", r.RejectionReason)
	}
}

func TestCycleFetchFailureOpensBreaker(t *testing.T) {
	h := newHarness(t, nil, 7)
	h.source.err = fmt.Errorf("gateway: %w", domrepo.ErrDataUnavailable)
	for i := 0; i < 2; i++ {
		r := h.engine.RunCycle(context.Background())
		if r.RejectionReason != models.ReasonDataUnavailable {
			t.Fatalf("cycle %d: expected data_unavailable, got %q", i, r.RejectionReason)
		}
	}
	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonCircuitOpen || h.source.calls != 2 {
		t.Fatalf("expected circuit_open without fetching, got %q after %d calls", r.RejectionReason, h.source.calls)
	}
	if h.engine.Status().Breaker != string(risk.BreakerOpen) {
		t.Fatalf("breaker should report open")
	}
}

func TestCycleSinkOutcomes(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		h := newHarness(t, bullishBlock(40, 30), 7)
		h.sink.res = models.OrderSubmissionResult{OrderID: "ord-2", Accepted: false, Reason: "margin"}
		r := h.engine.RunCycle(context.Background())
		if r.RejectionReason != models.ReasonOrderRejected || r.Detail != "margin" {
			t.Fatalf("expected order_rejected, got %q %q", r.RejectionReason, r.Detail)
		}
		if !h.state.LastSignal().IsZero() {
			t.Fatalf("rejected order must not start the cooldown")
		}
	})
	t.Run("error", func(t *testing.T) {
		h := newHarness(t, bullishBlock(40, 30), 7)
		h.sink.err = errors.New("connection reset")
		r := h.engine.RunCycle(context.Background())
		if r.RejectionReason != models.ReasonDispatchFailed || r.ChosenPlan == nil || r.Submission != nil {
			t.Fatalf("expected dispatch_failed with plan and no submission, got %+v", r)
		}
	})
}

func TestCycleRollsDay(t *testing.T) {
	h := newHarness(t, flatCandles(40), 7)
	h.state.RecordClose(-120)
	h.clock.T = time.Date(2024, 6, 4, 18, 0, 0, 0, time.UTC)
	h.engine.RunCycle(context.Background())
	if h.state.DailyPnL() != 0 || h.state.ConsecutiveLosses() != 1 {
		t.Fatalf("day roll should reset pnl only: pnl %v losses %d", h.state.DailyPnL(), h.state.ConsecutiveLosses())
	}
	if h.store.snap == nil || h.store.snap.Day != "2024-06-04" {
		t.Fatalf("rolled state not persisted: %+v", h.store.snap)
	}
}

func TestRestoreKeepsRunningFlag(t *testing.T) {
	h := newHarness(t, flatCandles(40), 7)
	h.store.snap = &models.StateSnapshot{Day: "2024-06-03", DailyPnL: -300, ConsecutiveLosses: 1}
	if err := h.engine.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if h.state.DailyPnL() != -300 || !h.state.IsRunning() {
		t.Fatalf("unexpected state after restore: pnl %v running %v", h.state.DailyPnL(), h.state.IsRunning())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, flatCandles(40), 7)
	h.engine.p.LoopDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.engine.LastReport(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no cycle ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestCycleLevelAbovePriceRejectsPlan(t *testing.T) {
	h := newHarness(t, brokenBlock(40, 30), 5)
	r := h.engine.RunCycle(context.Background())

	if r.RejectionReason != models.ReasonLevelAbovePrice {
		t.Fatalf("expected level_above_price, got %q detail %q", r.RejectionReason, r.Detail)
	}
	if r.BestCandidate == nil || r.BestCandidate.Level != 2049 || r.BestCandidate.Score != 6 {
		t.Fatalf("unexpected best candidate %+v", r.BestCandidate)
	}
	if r.ChosenPlan != nil || r.Submission != nil || len(h.sink.plans) != 0 {
		t.Fatalf("no order may be sent when the level is above price")
	}
	if len(h.reports.got) != 1 || h.reports.got[0].RejectionReason != models.ReasonLevelAbovePrice {
		t.Fatalf("rejection not reported")
	}
}

func TestCycleInvalidOrderRejectsPlan(t *testing.T) {
	h := newHarness(t, bullishBlock(40, 30), 7)
	c := h.engine.Planner.Contract()
	c.MaxPrice = 2063.05
	h.engine.Planner = risk.NewPlanner(risk.PlannerParams{Contract: c, TP1: 1})

	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonInvalidOrder {
		t.Fatalf("expected invalid_order, got %q detail %q", r.RejectionReason, r.Detail)
	}
	if r.ChosenPlan != nil || len(h.sink.plans) != 0 {
		t.Fatalf("invalid order must not be dispatched")
	}
}

func TestCycleStopBeforeDispatch(t *testing.T) {
	h := newHarness(t, bullishBlock(40, 30), 7)
	h.engine.Metrics = stopOnPrice{stop: h.engine.Stop}

	r := h.engine.RunCycle(context.Background())
	if r.RejectionReason != models.ReasonStoppedMidCycle || r.Detail != "stopped before dispatch" {
		t.Fatalf("expected stop before dispatch, got %q detail %q", r.RejectionReason, r.Detail)
	}
	if r.ChosenPlan != nil || len(h.sink.plans) != 0 {
		t.Fatalf("stopped engine must not submit")
	}
	if !h.state.LastSignal().IsZero() {
		t.Fatalf("cooldown must not start without a dispatch")
	}
}

func TestCycleSessionUsesGateZone(t *testing.T) {
	h := newHarness(t, bullishBlock(40, 30), 7)
	gp, err := risk.NewGateParams(800, 2, "09:00", "17:00", "16:30", "America/New_York")
	if err != nil {
		t.Fatalf("gate params: %v", err)
	}
	h.engine.Gate = risk.NewGate(gp, h.state)

	// 18:00 UTC is 14:00 in New York.
	if r := h.engine.RunCycle(context.Background()); !r.Dispatched() {
		t.Fatalf("expected dispatch, got %q", r.RejectionReason)
	}
	mctx, ok := h.engine.Status().MarketContext.(market.Context)
	if !ok || mctx.Session != "EUROPEAN" {
		t.Fatalf("session should follow the gate zone, got %+v", h.engine.Status().MarketContext)
	}
}
