package risk

import (
	"errors"
	"fmt"
	"math"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/market"

	"github.com/shopspring/decimal"
)

var (
	ErrLevelAbovePrice = errors.New("bullish level above current price")
	ErrLevelBelowPrice = errors.New("bearish level below current price")
)

type PlannerParams struct {
	Contract      market.ContractSpec
	TP1           float64
	ATRStops      bool
	ATRMultiplier float64
	// ScaleOutRatios and ScaleOutSplit describe optional partial targets.
	ScaleOutRatios []float64
	ScaleOutSplit  []float64
}

// Planner turns a selected pattern into a validated bracket order.
type Planner struct {
	params PlannerParams
}

func NewPlanner(p PlannerParams) *Planner {
	if p.TP1 <= 0 {
		p.TP1 = 1.0
	}
	if p.ATRMultiplier <= 0 {
		p.ATRMultiplier = 1.5
	}
	return &Planner{params: p}
}

func (pl *Planner) Contract() market.ContractSpec { return pl.params.Contract }

// StopTicks is the default stop unless ATR sizing is on and ATR is known.
func (pl *Planner) StopTicks(atr float64) int {
	c := pl.params.Contract
	if !pl.params.ATRStops || atr <= 0 || c.TickSize <= 0 {
		return c.DefaultStopTicks
	}
	ticks := int(decimal.NewFromFloat(atr).
		Mul(decimal.NewFromFloat(pl.params.ATRMultiplier)).
		Div(decimal.NewFromFloat(c.TickSize)).
		IntPart())
	return max(c.MinStopTicks, min(c.MaxStopTicks, ticks))
}

// PositionSize halves the default after any loss and clamps to contract limits.
func (pl *Planner) PositionSize(consecutiveLosses int) int {
	c := pl.params.Contract
	size := c.DefaultPosition
	if consecutiveLosses >= 1 {
		size = max(c.MinPosition, size/2)
	}
	return max(c.MinPosition, min(size, c.MaxPosition))
}

// Plan builds and validates an order for sp at reference price. No plan is
// returned on any error.
func (pl *Planner) Plan(sp models.ScoredPattern, price, atr float64, consecutiveLosses int) (*models.OrderPlan, error) {
	c := pl.params.Contract
	if !c.InBounds(price) || math.IsNaN(price) {
		return nil, &market.DataValidationError{Field: "current_price", Index: -1, Reason: fmt.Sprintf("invalid price %v", price)}
	}

	var side models.Side
	switch sp.Type {
	case models.Bullish:
		if sp.Level > price {
			return nil, fmt.Errorf("%w: level %.2f, price %.2f", ErrLevelAbovePrice, sp.Level, price)
		}
		side = models.Buy
	case models.Bearish:
		if sp.Level < price {
			return nil, fmt.Errorf("%w: level %.2f, price %.2f", ErrLevelBelowPrice, sp.Level, price)
		}
		side = models.Sell
	default:
		return nil, &market.DataValidationError{Field: "type", Index: -1, Reason: fmt.Sprintf("unknown pattern type %q", sp.Type)}
	}

	ticks := pl.StopTicks(atr)
	tick := decimal.NewFromFloat(c.TickSize)
	entry := decimal.NewFromFloat(price)
	stopDist := tick.Mul(decimal.NewFromInt(int64(ticks)))
	targetDist := stopDist.Mul(decimal.NewFromFloat(pl.params.TP1))

	var stop, target decimal.Decimal
	if side == models.Buy {
		stop, target = entry.Sub(stopDist), entry.Add(targetDist)
	} else {
		stop, target = entry.Add(stopDist), entry.Sub(targetDist)
	}

	qty := pl.PositionSize(consecutiveLosses)
	plan := &models.OrderPlan{
		ID:          models.NewID(),
		Symbol:      c.Symbol,
		Side:        side,
		Quantity:    qty,
		EntryPrice:  price,
		StopPrice:   SnapToTick(stop, tick),
		TargetPrice: SnapToTick(target, tick),
		StopTicks:   ticks,
		RiskAmount:  float64(ticks) * c.TickValue * float64(qty),
		Score:       sp.Score,
		Timeframe:   sp.Timeframe,
	}
	if err := ValidateOrder(*plan, c); err != nil {
		return nil, err
	}
	if len(pl.params.ScaleOutRatios) > 0 {
		plan.ScaleOut = PartialTargets(side, plan.EntryPrice, plan.StopPrice, qty, c.TickSize,
			pl.params.ScaleOutRatios, pl.params.ScaleOutSplit)
	}
	return plan, nil
}

// SnapToTick rounds v to the nearest multiple of tick.
func SnapToTick(v, tick decimal.Decimal) float64 {
	if tick.IsZero() {
		f, _ := v.Float64()
		return f
	}
	f, _ := v.Div(tick).Round(0).Mul(tick).Float64()
	return f
}
