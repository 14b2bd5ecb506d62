package orderblock

import (
	"math"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/market"
)

// Detector scans the most recent MaxAge candles for order blocks.
type Detector struct {
	params Params
}

func NewDetector(p Params) *Detector {
	return &Detector{params: p.withDefaults()}
}

// WithBodyMultiplier returns a detector sharing params except the body threshold.
func (d *Detector) WithBodyMultiplier(m float64) *Detector {
	p := d.params
	if m > 0 {
		p.BodyMultiplier = m
	}
	return &Detector{params: p}
}

// Detect returns patterns in ascending index order. Indices without a
// defined, positive average body are skipped.
func (d *Detector) Detect(s *market.Series) []models.Pattern {
	if s == nil || s.Len() < 3 {
		return nil
	}
	n := s.Len()
	start := n - d.params.MaxAge
	if start < 0 {
		start = 0
	}

	var out []models.Pattern
	for i := start; i < n-1; i++ {
		avg, ok := s.AvgBody(i)
		if !ok || avg <= 0 {
			continue
		}
		cur, next := s.Candle(i), s.Candle(i+1)
		body := cur.Body()
		if body <= avg*d.params.BodyMultiplier {
			continue
		}
		strength := math.Min(body/avg, d.params.StrengthCap)

		switch {
		case cur.IsBearish() && next.Close > cur.High && next.IsBullish():
			out = append(out, models.Pattern{
				Type:      models.Bullish,
				Index:     i,
				Level:     cur.Low,
				Top:       cur.High,
				Strength:  strength,
				Timestamp: cur.Timestamp,
				Series:    s.Ref(),
			})
		case cur.IsBullish() && next.Close < cur.Low && next.IsBearish():
			out = append(out, models.Pattern{
				Type:      models.Bearish,
				Index:     i,
				Level:     cur.High,
				Bottom:    cur.Low,
				Strength:  strength,
				Timestamp: cur.Timestamp,
				Series:    s.Ref(),
			})
		}
	}
	return out
}

// Params returns the detector's effective parameters.
func (d *Detector) Params() Params { return d.params }
