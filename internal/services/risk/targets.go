package risk

import (
	"math"

	"BlockTrader/internal/domain/models"

	"github.com/shopspring/decimal"
)

var (
	DefaultScaleOutRatios = []float64{1.0, 2.0, 2.5}
	DefaultScaleOutSplit  = []float64{0.5, 0.4, 0.1}
)

// PartialTargets splits qty into scale-out legs at multiples of the entry to
// stop risk. The last leg takes the remainder; legs with no contracts are dropped.
func PartialTargets(side models.Side, entry, stop float64, qty int, tickSize float64, ratios, split []float64) []models.PartialTarget {
	if qty <= 0 || len(ratios) == 0 {
		return nil
	}
	if len(split) == 0 {
		split = DefaultScaleOutSplit
	}
	riskDist := math.Abs(entry - stop)
	tick := decimal.NewFromFloat(tickSize)

	out := make([]models.PartialTarget, 0, len(ratios))
	remaining := qty
	for i, ratio := range ratios {
		var n int
		if i == len(ratios)-1 {
			n = remaining
		} else {
			share := 0.0
			if i < len(split) {
				share = split[i]
			}
			n = min(remaining, int(float64(qty)*share))
		}
		remaining -= n
		if n <= 0 {
			continue
		}
		dist := decimal.NewFromFloat(riskDist).Mul(decimal.NewFromFloat(ratio))
		price := decimal.NewFromFloat(entry)
		if side == models.Buy {
			price = price.Add(dist)
		} else {
			price = price.Sub(dist)
		}
		out = append(out, models.PartialTarget{
			Level:    i + 1,
			Price:    SnapToTick(price, tick),
			Quantity: n,
			Ratio:    ratio,
		})
	}
	return out
}
