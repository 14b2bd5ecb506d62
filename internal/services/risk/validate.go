package risk

import (
	"fmt"
	"math"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/market"
)

const priceEpsilon = 1e-9

func orderInvalid(field, format string, args ...any) error {
	return &market.DataValidationError{Field: field, Index: -1, Reason: fmt.Sprintf(format, args...)}
}

// ValidateOrder rejects the whole plan on the first broken rule.
func ValidateOrder(p models.OrderPlan, c market.ContractSpec) error {
	if !p.Side.Valid() {
		return orderInvalid("side", "invalid side %q", p.Side)
	}
	if p.Quantity < c.MinPosition || p.Quantity > c.MaxPosition {
		return orderInvalid("quantity", "%d outside [%d, %d]", p.Quantity, c.MinPosition, c.MaxPosition)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"entry_price", p.EntryPrice}, {"stop_price", p.StopPrice}, {"target_price", p.TargetPrice}} {
		if math.IsNaN(f.v) || !c.InBounds(f.v) {
			return orderInvalid(f.name, "price %v invalid or outside [%v, %v]", f.v, c.MinPrice, c.MaxPrice)
		}
	}
	if dist := math.Abs(p.EntryPrice - p.StopPrice); dist > c.MaxStopDistance()+priceEpsilon {
		return orderInvalid("stop_price", "stop distance %.4f exceeds max %.4f", dist, c.MaxStopDistance())
	}
	switch p.Side {
	case models.Buy:
		if !(p.StopPrice < p.EntryPrice && p.EntryPrice < p.TargetPrice) {
			return orderInvalid("stop_price", "BUY requires stop < entry < target, got %v/%v/%v", p.StopPrice, p.EntryPrice, p.TargetPrice)
		}
	case models.Sell:
		if !(p.TargetPrice < p.EntryPrice && p.EntryPrice < p.StopPrice) {
			return orderInvalid("stop_price", "SELL requires target < entry < stop, got %v/%v/%v", p.TargetPrice, p.EntryPrice, p.StopPrice)
		}
	}
	return nil
}
