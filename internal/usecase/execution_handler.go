package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/internal/services/risk"
	pkgkafka "BlockTrader/pkg/kafka"
	"BlockTrader/pkg/logger"
	pkgmetrics "BlockTrader/pkg/metrics"

	"github.com/go-playground/validator/v10"
)

var eventValidator = validator.New()

// ExecutionHandler applies broker feedback to the trading state. It consumes
// the executions topic and is also called directly by the paper sink.
type ExecutionHandler struct {
	topic   string
	symbol  string
	state   *risk.State
	plans   *PlanBook
	journal domrepo.TradeJournal
	store   domrepo.StateStore
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewExecutionHandler(topic, symbol string, state *risk.State, plans *PlanBook, journal domrepo.TradeJournal,
	store domrepo.StateStore, metrics domrepo.Metrics, log *logger.Logger) *ExecutionHandler {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &ExecutionHandler{topic: topic, symbol: symbol, state: state, plans: plans,
		journal: journal, store: store, metrics: metrics, log: log}
}

func (h *ExecutionHandler) Topic() string { return h.topic }

func (h *ExecutionHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ExecutionEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("execution_unmarshal")
		return err
	}
	return h.Apply(ctx, ev)
}

// Apply updates state for one execution event and journals it. A repeated
// (order id, type) pair is ignored. Journal failures are logged, not
// returned, because the state change has already happened and a consumer
// retry must not apply it again.
func (h *ExecutionHandler) Apply(ctx context.Context, ev models.ExecutionEvent) error {
	if err := eventValidator.Struct(ev); err != nil {
		h.metrics.RecordError("execution_invalid")
		return fmt.Errorf("invalid execution event: %w", err)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Symbol == "" {
		ev.Symbol = h.symbol
	}
	if ev.Type != models.EventDailyReset && !h.plans.MarkApplied(ev.OrderID, ev.Type) {
		h.log.Debug("duplicate execution event ignored",
			logger.String("order_id", ev.OrderID),
			logger.String("type", string(ev.Type)),
		)
		return nil
	}

	rec := models.TradeRecord{
		OrderID:     ev.OrderID,
		Symbol:      ev.Symbol,
		Event:       string(ev.Type),
		Side:        string(ev.Side),
		Quantity:    ev.Quantity,
		FillPrice:   ev.FillPrice,
		ExitPrice:   ev.ExitPrice,
		RealizedPnL: ev.RealizedPnL,
		Reason:      ev.Reason,
		Timestamp:   ev.Timestamp,
	}
	plan, known := h.plans.Get(ev.OrderID)
	if known {
		rec.EntryPrice = plan.EntryPrice
		if rec.Side == "" {
			rec.Side = string(plan.Side)
		}
	}

	switch ev.Type {
	case models.EventFill:
		if known && ev.FillPrice > 0 {
			rec.Slippage = ev.FillPrice - plan.EntryPrice
			if plan.Side == models.Sell {
				rec.Slippage = -rec.Slippage
			}
		}
		h.log.Info("order filled",
			logger.String("order_id", ev.OrderID),
			logger.Float64("fill_price", ev.FillPrice),
			logger.Float64("slippage", rec.Slippage),
		)
	case models.EventPositionClosed:
		snap := h.state.RecordClose(ev.RealizedPnL)
		if known && plan.RiskAmount > 0 {
			rec.RMultiple = ev.RealizedPnL / plan.RiskAmount
		}
		h.metrics.RecordDailyPnL(ev.Symbol, snap.DailyPnL)
		h.log.Info("position closed",
			logger.String("order_id", ev.OrderID),
			logger.Float64("pnl", ev.RealizedPnL),
			logger.Float64("daily_pnl", snap.DailyPnL),
			logger.Int("consecutive_losses", snap.ConsecutiveLosses),
		)
		h.persist(ctx, snap)
	case models.EventReject:
		h.log.Warn("order rejected by broker", logger.String("order_id", ev.OrderID), logger.String("reason", ev.Reason))
	case models.EventDailyReset:
		h.state.ResetDaily()
		h.metrics.RecordDailyPnL(ev.Symbol, 0)
		h.persist(ctx, h.state.Snapshot())
		h.log.Info("daily counters reset")
	}

	if h.journal != nil {
		if err := h.journal.RecordTrade(ctx, rec); err != nil {
			h.metrics.RecordError("journal")
			h.log.Error("journal write failed",
				logger.String("order_id", ev.OrderID),
				logger.String("type", string(ev.Type)),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (h *ExecutionHandler) persist(ctx context.Context, snap models.StateSnapshot) {
	if h.store == nil {
		return
	}
	if err := h.store.Save(ctx, h.symbol, snap); err != nil {
		h.metrics.RecordError("state_save")
		h.log.Warn("state save failed", logger.Error(err))
	}
}

var _ pkgkafka.MessageHandler = (*ExecutionHandler)(nil)
