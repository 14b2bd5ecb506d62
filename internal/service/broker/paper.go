package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/internal/services/market"
	"BlockTrader/pkg/logger"
	"BlockTrader/pkg/util"

	"github.com/google/uuid"
)

// ExecutionFunc receives simulated execution events.
type ExecutionFunc func(ctx context.Context, ev models.ExecutionEvent) error

type PaperConfig struct {
	StartPrice  float64
	Step        float64
	Seed        int64
	FillLatency time.Duration
	// BlockChance is the per-candle probability of planting an order block.
	BlockChance float64
}

type paperSeries struct {
	candles []models.Candle
}

type paperPosition struct {
	plan    models.OrderPlan
	orderID string
	fill    float64
}

// PaperBroker simulates a market and a broker. Every FetchCandles call
// advances the requested series by one bar; open positions are checked
// against each new primary bar and closed at stop or target.
type PaperBroker struct {
	cfg      PaperConfig
	contract market.ContractSpec
	primary  domrepo.Timeframe
	clock    util.Clock
	log      *logger.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	series    map[domrepo.Timeframe]*paperSeries
	positions map[string]*paperPosition
	onExec    ExecutionFunc
}

func NewPaperBroker(cfg PaperConfig, contract market.ContractSpec, primary domrepo.Timeframe, clock util.Clock, log *logger.Logger) *PaperBroker {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = (contract.MinPrice + contract.MaxPrice) / 2
	}
	if cfg.Step <= 0 {
		cfg.Step = cfg.StartPrice * 0.0004
	}
	if cfg.BlockChance <= 0 {
		cfg.BlockChance = 0.06
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PaperBroker{
		cfg:       cfg,
		contract:  contract,
		primary:   primary,
		clock:     clock,
		log:       log,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		series:    make(map[domrepo.Timeframe]*paperSeries),
		positions: make(map[string]*paperPosition),
	}
}

// OnExecution registers the receiver of fills and closes.
func (b *PaperBroker) OnExecution(fn ExecutionFunc) {
	b.mu.Lock()
	b.onExec = fn
	b.mu.Unlock()
}

func (b *PaperBroker) snap(v float64) float64 {
	if b.contract.TickSize <= 0 {
		return v
	}
	return math.Round(v/b.contract.TickSize) * b.contract.TickSize
}

// bar builds the next candle from prev close. Caller holds mu.
func (b *PaperBroker) bar(ts time.Time, prev float64, body float64) models.Candle {
	open := prev
	closeP := b.snap(math.Max(b.contract.TickSize, open+body))
	wick := math.Abs(b.rng.NormFloat64()) * b.cfg.Step * 0.3
	return models.Candle{
		Timestamp: ts,
		Open:      open,
		High:      b.snap(math.Max(open, closeP) + wick),
		Low:       b.snap(math.Min(open, closeP) - wick),
		Close:     closeP,
		Volume:    math.Round(80 + b.rng.Float64()*60),
	}
}

// extend appends n bars to s. Caller holds mu.
func (b *PaperBroker) extend(s *paperSeries, tf domrepo.Timeframe, n int) {
	d := tf.Duration()
	for i := 0; i < n; i++ {
		prev := b.snap(b.cfg.StartPrice)
		ts := b.clock.Now().UTC().Truncate(d).Add(-time.Duration(n) * d)
		if len(s.candles) > 0 {
			last := s.candles[len(s.candles)-1]
			prev, ts = last.Close, last.Timestamp.Add(d)
		}
		if len(s.candles) >= 20 && b.rng.Float64() < b.cfg.BlockChance {
			b.plantBlock(s, ts, d, prev)
			continue
		}
		s.candles = append(s.candles, b.bar(ts, prev, b.rng.NormFloat64()*b.cfg.Step))
	}
	if over := len(s.candles) - 1000; over > 0 {
		s.candles = s.candles[over:]
	}
}

// plantBlock appends an oversized candle and a reversal through its range.
func (b *PaperBroker) plantBlock(s *paperSeries, ts time.Time, d time.Duration, prev float64) {
	dir := 1.0
	if b.rng.Intn(2) == 0 {
		dir = -1
	}
	block := b.bar(ts, prev, -dir*b.cfg.Step*4)
	block.Volume *= 2.5
	span := block.High - block.Low
	next := b.bar(ts.Add(d), block.Close, dir*(span+b.cfg.Step))
	s.candles = append(s.candles, block, next)
}

// FetchCandles advances tf by one bar and returns the last count bars.
func (b *PaperBroker) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Candle, error) {
	if symbol != b.contract.Symbol {
		return nil, fmt.Errorf("%w: paper broker trades %s", domrepo.ErrDataUnavailable, b.contract.Symbol)
	}
	if tf.Duration() <= 0 {
		return nil, fmt.Errorf("%w: unknown timeframe %q", domrepo.ErrDataUnavailable, tf)
	}

	b.mu.Lock()
	s, ok := b.series[tf]
	if !ok {
		s = &paperSeries{}
		b.series[tf] = s
		b.extend(s, tf, count)
	} else {
		b.extend(s, tf, 1)
	}
	from := max(0, len(s.candles)-count)
	out := append([]models.Candle(nil), s.candles[from:]...)
	var closes []models.ExecutionEvent
	if tf == b.primary {
		closes = b.checkExits(out[len(out)-1])
	}
	fn := b.onExec
	b.mu.Unlock()

	b.deliver(ctx, fn, closes)
	return out, nil
}

// checkExits closes positions whose stop or target lies within bar. The
// stop wins when both are touched. Caller holds mu.
func (b *PaperBroker) checkExits(bar models.Candle) []models.ExecutionEvent {
	var out []models.ExecutionEvent
	for id, p := range b.positions {
		var exit float64
		hitStop, hitTarget := false, false
		if p.plan.Side == models.Buy {
			hitStop, hitTarget = bar.Low <= p.plan.StopPrice, bar.High >= p.plan.TargetPrice
		} else {
			hitStop, hitTarget = bar.High >= p.plan.StopPrice, bar.Low <= p.plan.TargetPrice
		}
		switch {
		case hitStop:
			exit = p.plan.StopPrice
		case hitTarget:
			exit = p.plan.TargetPrice
		default:
			continue
		}
		out = append(out, models.ExecutionEvent{
			Type:        models.EventPositionClosed,
			OrderID:     id,
			Symbol:      p.plan.Symbol,
			Side:        p.plan.Side,
			Quantity:    p.plan.Quantity,
			FillPrice:   p.fill,
			ExitPrice:   exit,
			RealizedPnL: b.pnl(p.plan.Side, p.fill, exit, p.plan.Quantity),
			Timestamp:   bar.Timestamp,
		})
		delete(b.positions, id)
	}
	return out
}

func (b *PaperBroker) pnl(side models.Side, entry, exit float64, qty int) float64 {
	if b.contract.TickSize <= 0 {
		return 0
	}
	ticks := (exit - entry) / b.contract.TickSize
	if side == models.Sell {
		ticks = -ticks
	}
	return math.Round(ticks*b.contract.TickValue*float64(qty)*100) / 100
}

// SubmitBracket accepts every valid plan and fills it at the planned entry
// after the configured latency.
func (b *PaperBroker) SubmitBracket(ctx context.Context, plan models.OrderPlan) (models.OrderSubmissionResult, error) {
	if err := ctx.Err(); err != nil {
		return models.OrderSubmissionResult{}, err
	}
	if plan.Quantity <= 0 || !plan.Side.Valid() {
		return models.OrderSubmissionResult{Accepted: false, Reason: "malformed plan"}, nil
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.positions[id] = &paperPosition{plan: plan, orderID: id, fill: plan.EntryPrice}
	fn := b.onExec
	b.mu.Unlock()

	b.log.Info("paper bracket accepted",
		logger.String("order_id", id),
		logger.String("side", string(plan.Side)),
		logger.Int("quantity", plan.Quantity),
	)
	fill := models.ExecutionEvent{
		Type:      models.EventFill,
		OrderID:   id,
		Symbol:    plan.Symbol,
		Side:      plan.Side,
		Quantity:  plan.Quantity,
		FillPrice: plan.EntryPrice,
		Timestamp: b.clock.Now().Add(b.cfg.FillLatency),
	}
	if fn != nil {
		go func() {
			if b.cfg.FillLatency > 0 {
				time.Sleep(b.cfg.FillLatency)
			}
			b.deliver(context.Background(), fn, []models.ExecutionEvent{fill})
		}()
	}
	return models.OrderSubmissionResult{OrderID: id, Accepted: true}, nil
}

func (b *PaperBroker) deliver(ctx context.Context, fn ExecutionFunc, evs []models.ExecutionEvent) {
	if fn == nil {
		return
	}
	for _, ev := range evs {
		if err := fn(ctx, ev); err != nil {
			b.log.Warn("paper execution not applied", logger.String("type", string(ev.Type)), logger.Error(err))
		}
	}
}

// OpenPositions returns the number of simulated open positions.
func (b *PaperBroker) OpenPositions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

var (
	_ domrepo.MarketDataSource = (*PaperBroker)(nil)
	_ domrepo.OrderSink        = (*PaperBroker)(nil)
)
