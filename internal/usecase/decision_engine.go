package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	stagemetrics "BlockTrader/internal/service/metrics"
	"BlockTrader/internal/services/market"
	"BlockTrader/internal/services/orderblock"
	"BlockTrader/internal/services/risk"
	"BlockTrader/pkg/logger"
	pkgmetrics "BlockTrader/pkg/metrics"
	"BlockTrader/pkg/util"
)

// EngineParams is the static configuration of the decision loop.
type EngineParams struct {
	Symbol string
	// Timeframes lists primary first; entry and higher follow in MTF mode.
	Timeframes        []domrepo.Timeframe
	MTF               bool
	CandleCount       int
	LoopDelay         time.Duration
	IdleDelay         time.Duration
	Cooldown          time.Duration
	FetchTimeout      time.Duration
	SubmitTimeout     time.Duration
	MinScore          float64
	ATRPeriod         int
	DynamicThresholds bool
}

// EngineDeps groups the engine's collaborators.
type EngineDeps struct {
	Source    domrepo.MarketDataSource
	Sink      domrepo.OrderSink
	Reports   domrepo.ReportSink
	Store     domrepo.StateStore
	Metrics   domrepo.Metrics
	Validator *market.Validator
	Detector  *orderblock.Detector
	Scorer    *orderblock.Scorer
	Planner   *risk.Planner
	Gate      *risk.Gate
	State     *risk.State
	Breaker   *risk.CircuitBreaker
	Analyzer  *market.Analyzer
	Plans     *PlanBook
	Clock     util.Clock
	Logger    *logger.Logger
}

// Engine runs the fetch, detect, score, select, gate, plan and dispatch loop.
type Engine struct {
	p EngineParams
	EngineDeps

	wake chan struct{}

	mu               sync.RWMutex
	lastReport       *models.DecisionReport
	lastContext      *market.Context
	patternsToday    int
	highQualityToday int
}

func NewEngine(p EngineParams, d EngineDeps) *Engine {
	if len(p.Timeframes) == 0 {
		p.Timeframes = []domrepo.Timeframe{domrepo.DefaultTimeframe()}
	}
	if p.CandleCount <= 0 {
		p.CandleCount = 100
	}
	if p.LoopDelay <= 0 {
		p.LoopDelay = 30 * time.Second
	}
	if p.IdleDelay <= 0 {
		p.IdleDelay = p.LoopDelay
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 300 * time.Second
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = 14
	}
	if d.Clock == nil {
		d.Clock = util.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = pkgmetrics.Nop{}
	}
	if d.Breaker == nil {
		d.Breaker = risk.NewCircuitBreaker(0, 0)
	}
	if d.Analyzer == nil {
		d.Analyzer = market.NewAnalyzer(p.ATRPeriod)
	}
	if d.Plans == nil {
		d.Plans = NewPlanBook(0)
	}
	return &Engine{p: p, EngineDeps: d, wake: make(chan struct{}, 1)}
}

// Restore loads persisted trading state, if a store is configured.
func (e *Engine) Restore(ctx context.Context) error {
	if e.Store == nil {
		return nil
	}
	snap, err := e.Store.Load(ctx, e.p.Symbol)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if snap != nil {
		e.State.Restore(*snap)
		e.Logger.Info("trading state restored",
			logger.String("symbol", e.p.Symbol),
			logger.Float64("daily_pnl", snap.DailyPnL),
			logger.Int("consecutive_losses", snap.ConsecutiveLosses),
		)
	}
	return nil
}

// Start sets the running flag and wakes a paused loop.
func (e *Engine) Start() {
	e.State.SetRunning(true)
	e.signal()
}

// Stop clears the running flag. The loop notices at its next check and
// never between planning and dispatch.
func (e *Engine) Stop() {
	e.State.SetRunning(false)
	e.signal()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run drives cycles until ctx is cancelled. While stopped it idles until Start.
func (e *Engine) Run(ctx context.Context) error {
	e.Start()
	e.Logger.Info("decision loop started",
		logger.String("symbol", e.p.Symbol),
		logger.Bool("mtf", e.p.MTF),
		logger.Float64("min_score", e.p.MinScore),
	)
	for {
		if !e.State.IsRunning() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wake:
				continue
			}
		}

		report := e.RunCycle(ctx)
		if !e.pause(ctx, e.delayAfter(report)) {
			return ctx.Err()
		}
	}
}

func (e *Engine) delayAfter(r models.DecisionReport) time.Duration {
	if r.Dispatched() {
		return e.p.Cooldown
	}
	switch r.RejectionReason {
	case models.ReasonDailyLossLimit, models.ReasonConsecutiveLoss,
		models.ReasonOutsideSession, models.ReasonNewsBlackout, models.ReasonCircuitOpen:
		return e.p.IdleDelay
	}
	return e.p.LoopDelay
}

// pause sleeps d, returning early on Start/Stop. It reports false once ctx is done.
func (e *Engine) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	case <-e.wake:
	}
	return true
}

// RunCycle performs one decision pass and emits its report.
func (e *Engine) RunCycle(ctx context.Context) models.DecisionReport {
	start := time.Now()
	now := e.Clock.Now()
	report := models.DecisionReport{ID: models.NewID(), Timestamp: now, Symbol: e.p.Symbol}

	e.cycle(ctx, now, &report)

	outcome := "rejected"
	if report.Dispatched() {
		outcome = "dispatched"
	}
	if report.RejectionReason != "" {
		e.Metrics.RecordRejection(report.RejectionReason)
	}
	e.Metrics.RecordCycle(outcome)
	e.Metrics.RecordLatency("cycle", time.Since(start).Seconds())
	e.emit(ctx, report)
	return report
}

func (e *Engine) reject(r *models.DecisionReport, reason, detail string) {
	r.RejectionReason = reason
	r.Detail = detail
}

func (e *Engine) cycle(ctx context.Context, now time.Time, r *models.DecisionReport) {
	if !e.State.IsRunning() {
		e.reject(r, models.ReasonNotRunning, "")
		return
	}
	if e.State.RollDay(now) {
		e.mu.Lock()
		e.patternsToday, e.highQualityToday = 0, 0
		e.mu.Unlock()
		e.Logger.Info("new trading day", logger.String("day", e.State.Snapshot().Day))
		e.persist(ctx)
	}
	if ok, reason := e.Gate.CanTrade(now); !ok {
		e.reject(r, reason, "")
		return
	}
	if e.State.InCooldown(now, e.p.Cooldown) {
		e.reject(r, models.ReasonCooldown, fmt.Sprintf("last signal %s", e.State.LastSignal().Format(time.RFC3339)))
		return
	}
	if !e.Breaker.Allow(now) {
		e.reject(r, models.ReasonCircuitOpen, "")
		return
	}

	frames, err := e.fetchFrames(ctx)
	if err != nil {
		var dve *market.DataValidationError
		if errors.As(err, &dve) {
			e.reject(r, models.ReasonInvalidData, err.Error())
		} else {
			e.reject(r, models.ReasonDataUnavailable, err.Error())
		}
		e.Logger.Warn("candle fetch failed", logger.String("symbol", e.p.Symbol), logger.Error(err))
		return
	}
	if !e.State.IsRunning() {
		e.reject(r, models.ReasonStoppedMidCycle, "stopped after fetch")
		return
	}

	primary := frames[0].Series
	detector, scorer, minScore := e.thresholds(primary, now)

	total := 0
	stageStart := time.Now()
	for i := range frames {
		frames[i].Patterns = detector.Detect(frames[i].Series)
		total += len(frames[i].Patterns)
		e.Metrics.RecordPatterns(frames[i].Series.Timeframe(), len(frames[i].Patterns))
	}
	stagemetrics.ObserveStage("detect", stageStart)
	stageStart = time.Now()
	scored := scorer.ScoreFrames(frames, e.p.MTF && len(frames) > 1)
	stagemetrics.ObserveStage("score", stageStart)
	for _, sp := range scored {
		e.Metrics.RecordScore(sp.Timeframe, sp.Score)
	}
	r.PatternsDetected = total
	r.HighQualityCount = orderblock.HighQuality(scored, minScore)
	e.mu.Lock()
	e.patternsToday += total
	e.highQualityToday += r.HighQualityCount
	e.mu.Unlock()

	if total == 0 {
		e.reject(r, models.ReasonNoPatterns, "")
		return
	}
	order := make([]string, len(frames))
	for i, f := range frames {
		order[i] = f.Series.Timeframe()
	}
	if top, ok := orderblock.SelectRanked(scored, 0, order); ok {
		r.BestCandidate = &top
	}
	best, ok := orderblock.SelectRanked(scored, minScore, order)
	if !ok {
		e.reject(r, models.ReasonBelowMinScore, fmt.Sprintf("min score %.1f", minScore))
		return
	}

	last := primary.Last()
	e.Metrics.RecordLastPrice(e.p.Symbol, last.Close)
	stageStart = time.Now()
	plan, err := e.Planner.Plan(best, last.Close, primary.ATR(e.p.ATRPeriod), e.State.ConsecutiveLosses())
	stagemetrics.ObserveStage("plan", stageStart)
	if err != nil {
		stagemetrics.StageFailed("plan")
		switch {
		case errors.Is(err, risk.ErrLevelAbovePrice):
			e.reject(r, models.ReasonLevelAbovePrice, err.Error())
		case errors.Is(err, risk.ErrLevelBelowPrice):
			e.reject(r, models.ReasonLevelBelowPrice, err.Error())
		default:
			e.reject(r, models.ReasonInvalidOrder, err.Error())
		}
		e.Logger.Debug("plan rejected", logger.String("reason", r.RejectionReason), logger.Error(err))
		return
	}
	if !e.State.IsRunning() {
		e.reject(r, models.ReasonStoppedMidCycle, "stopped before dispatch")
		return
	}

	r.ChosenPlan = plan
	e.dispatch(ctx, now, plan, r)
}

// thresholds returns the detector, scorer and min score for this cycle,
// scaled by market conditions when dynamic thresholds are enabled.
func (e *Engine) thresholds(primary *market.Series, now time.Time) (*orderblock.Detector, *orderblock.Scorer, float64) {
	if loc := e.Gate.Location(); loc != nil {
		now = now.In(loc)
	}
	mctx := e.Analyzer.Analyze(primary, now)
	e.mu.Lock()
	e.lastContext = &mctx
	e.mu.Unlock()

	if !e.p.DynamicThresholds {
		return e.Detector, e.Scorer, e.p.MinScore
	}
	sp := e.Scorer.Params()
	t := market.DynamicThresholds(market.Thresholds{
		MinScore:       e.p.MinScore,
		BodyMultiplier: e.Detector.Params().BodyMultiplier,
		MinVolumeRatio: sp.VolumeMultiplier,
		Tolerance:      sp.Tolerance,
	}, mctx)
	e.Logger.Debug("dynamic thresholds",
		logger.String("regime", string(mctx.Regime)),
		logger.String("session", mctx.Session),
		logger.Float64("adjustment", mctx.TotalAdjustment),
		logger.Float64("min_score", t.MinScore),
	)
	return e.Detector.WithBodyMultiplier(t.BodyMultiplier), e.Scorer.WithThresholds(t.Tolerance, t.MinVolumeRatio), t.MinScore
}

// fetchFrames loads and validates every configured timeframe. The primary
// must succeed; secondary failures drop that timeframe.
func (e *Engine) fetchFrames(ctx context.Context) ([]orderblock.Sibling, error) {
	tfs := e.p.Timeframes
	if !e.p.MTF {
		tfs = tfs[:1]
	}
	frames := make([]orderblock.Sibling, 0, len(tfs))
	for i, tf := range tfs {
		s, err := e.fetch(ctx, tf)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("primary %s: %w", tf, err)
			}
			e.Logger.Warn("dropping timeframe", logger.String("timeframe", string(tf)), logger.Error(err))
			continue
		}
		frames = append(frames, orderblock.Sibling{Series: s})
	}
	return frames, nil
}

func (e *Engine) fetch(ctx context.Context, tf domrepo.Timeframe) (*market.Series, error) {
	fctx := ctx
	if e.p.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.p.FetchTimeout)
		defer cancel()
	}
	start := time.Now()
	candles, err := e.Source.FetchCandles(fctx, e.p.Symbol, tf, e.p.CandleCount)
	e.Metrics.RecordLatency("fetch", time.Since(start).Seconds())
	if err != nil {
		e.Breaker.Failure(e.Clock.Now())
		e.Metrics.RecordError("fetch")
		return nil, err
	}
	e.Breaker.Success()
	s, err := e.Validator.Validate(e.p.Symbol, string(tf), candles)
	if err != nil {
		e.Metrics.RecordError("validate")
		return nil, err
	}
	return s, nil
}

func (e *Engine) dispatch(ctx context.Context, now time.Time, plan *models.OrderPlan, r *models.DecisionReport) {
	sctx := ctx
	if e.p.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, e.p.SubmitTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := e.Sink.SubmitBracket(sctx, *plan)
	e.Metrics.RecordLatency("submit", time.Since(start).Seconds())
	if err != nil {
		e.Breaker.Failure(e.Clock.Now())
		e.Metrics.RecordError("submit")
		e.Metrics.RecordOrder(string(plan.Side), false)
		e.reject(r, models.ReasonDispatchFailed, err.Error())
		e.Logger.Error("bracket submission failed", logger.String("plan_id", plan.ID), logger.Error(err))
		return
	}
	e.Breaker.Success()
	r.Submission = &res
	e.Metrics.RecordOrder(string(plan.Side), res.Accepted)
	if !res.Accepted {
		e.reject(r, models.ReasonOrderRejected, res.Reason)
		e.Logger.Warn("bracket rejected", logger.String("plan_id", plan.ID), logger.String("reason", res.Reason))
		return
	}

	e.State.MarkSignal(now)
	e.Plans.Put(res.OrderID, *plan)
	e.persist(ctx)
	e.Logger.Info("bracket submitted",
		logger.String("order_id", res.OrderID),
		logger.String("side", string(plan.Side)),
		logger.Int("quantity", plan.Quantity),
		logger.Float64("entry", plan.EntryPrice),
		logger.Float64("stop", plan.StopPrice),
		logger.Float64("target", plan.TargetPrice),
		logger.Float64("score", plan.Score),
	)
}

func (e *Engine) emit(ctx context.Context, r models.DecisionReport) {
	e.mu.Lock()
	e.lastReport = &r
	e.mu.Unlock()
	if e.Reports == nil {
		return
	}
	if err := e.Reports.Report(ctx, r); err != nil {
		e.Metrics.RecordError("report")
		e.Logger.Warn("report sink failed", logger.Error(err))
	}
}

func (e *Engine) persist(ctx context.Context) {
	if e.Store == nil {
		return
	}
	if err := e.Store.Save(ctx, e.p.Symbol, e.State.Snapshot()); err != nil {
		e.Metrics.RecordError("state_save")
		e.Logger.Warn("state save failed", logger.Error(err))
	}
}

// LastReport returns the most recent cycle report.
func (e *Engine) LastReport() (models.DecisionReport, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastReport == nil {
		return models.DecisionReport{}, false
	}
	return *e.lastReport, true
}

// Status summarises state, gate and today's activity.
func (e *Engine) Status() models.BotStatus {
	now := e.Clock.Now()
	snap := e.State.Snapshot()
	ok, reason := e.Gate.CanTrade(now)

	e.mu.RLock()
	defer e.mu.RUnlock()
	st := models.BotStatus{
		Symbol:           e.p.Symbol,
		State:            snap,
		CanTrade:         ok,
		GateReason:       reason,
		Breaker:          string(e.Breaker.State()),
		LastReport:       e.lastReport,
		PatternsToday:    e.patternsToday,
		HighQualityToday: e.highQualityToday,
		UpdatedAt:        now,
	}
	if e.lastContext != nil {
		st.MarketContext = *e.lastContext
	}
	if snap.TotalTrades > 0 {
		st.WinRate = float64(snap.Wins) / float64(snap.TotalTrades)
	}
	return st
}

// ScanPatterns fetches one timeframe and returns its scored patterns
// without touching trading state.
func (e *Engine) ScanPatterns(ctx context.Context, tf domrepo.Timeframe, count int) ([]models.ScoredPattern, error) {
	if count <= 0 {
		count = e.p.CandleCount
	}
	candles, err := e.Source.FetchCandles(ctx, e.p.Symbol, tf, count)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", tf, err)
	}
	s, err := e.Validator.Validate(e.p.Symbol, string(tf), candles)
	if err != nil {
		return nil, err
	}
	frames := []orderblock.Sibling{{Series: s, Patterns: e.Detector.Detect(s)}}
	return e.Scorer.ScoreFrames(frames, false), nil
}

// MinScore is the configured acceptance threshold.
func (e *Engine) MinScore() float64 { return e.p.MinScore }
