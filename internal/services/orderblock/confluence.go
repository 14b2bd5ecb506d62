package orderblock

import (
	"math"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/features"
	"BlockTrader/internal/services/market"
)

// confluence adds 2*weight for every same-type sibling pattern whose level
// sits within ConfluencePct of p's level.
func (sc *Scorer) confluence(p models.Pattern, siblings []Sibling) float64 {
	bonus := 0.0
	for _, sib := range siblings {
		if sib.Series == nil || sib.Series.Owns(p.Series) {
			continue
		}
		w := weight(sc.params.ConfluenceWeights, sib.Series.Timeframe(), defaultConfluenceWeight)
		for _, other := range sib.Patterns {
			if other.Type != p.Type {
				continue
			}
			if math.Abs(other.Level-p.Level)/p.Level < sc.params.ConfluencePct {
				bonus += 2 * w
			}
		}
	}
	return bonus
}

// trendAlignment adds each timeframe's weight when its EMA 8/21 trend matches p.
// The pattern's own series counts; series with fewer than 20 candles do not.
func (sc *Scorer) trendAlignment(p models.Pattern, own *market.Series, siblings []Sibling) float64 {
	series := make([]*market.Series, 0, len(siblings)+1)
	series = append(series, own)
	for _, sib := range siblings {
		if sib.Series != nil && !sib.Series.Owns(own.Ref()) {
			series = append(series, sib.Series)
		}
	}

	bonus := 0.0
	for _, s := range series {
		trend, ok := Trend(s)
		if !ok || trend != p.Type {
			continue
		}
		bonus += weight(sc.params.TrendWeights, s.Timeframe(), defaultTrendWeight)
	}
	return bonus
}

// Trend classifies the series by its last fast and slow EMA.
func Trend(s *market.Series) (models.PatternType, bool) {
	if s == nil || s.Len() < trendMinCandles {
		return "", false
	}
	closes := s.Closes()
	fast := features.EMA(closes, fastSpan)
	slow := features.EMA(closes, slowSpan)
	if fast[len(fast)-1] > slow[len(slow)-1] {
		return models.Bullish, true
	}
	return models.Bearish, true
}
